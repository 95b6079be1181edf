package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zgramming/cmsgate/pkg/sdk"
)

// WriteError writes an APIError body with status.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, &sdk.APIError{Message: message, StatusCode: status})
}

// WriteAPIError relays an identity-authority 4xx APIError as-is. Upstream
// 5xx answers become 502 and anything else becomes fallbackStatus.
func WriteAPIError(w http.ResponseWriter, err error, fallbackStatus int) {
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			WriteJSON(w, apiErr.StatusCode, apiErr)
			return
		case apiErr.StatusCode >= 500:
			WriteError(w, http.StatusBadGateway, "identity service unavailable")
			return
		}
	}
	WriteError(w, fallbackStatus, http.StatusText(fallbackStatus))
}

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
