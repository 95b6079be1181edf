package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrSessionExpired means the refresh exchange failed. The session has
	// been cleared and the caller should send the user to the login page.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotAuthenticated means no session is present.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// APIError is the normalized form of an HTTP failure that is not handled
// by the refresh flow.
type APIError struct {
	Message    string              `json:"message"`
	Errors     map[string][]string `json:"errors,omitempty"`
	StatusCode int                 `json:"statusCode,omitempty"`

	cause error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.cause }

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// NewAPIError builds an APIError from a non-2xx response. The body is
// consumed but not closed.
func NewAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Message
		apiErr.Errors = payload.Errors
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if apiErr.Message == "" {
		apiErr.Message = "request failed"
	}
	return apiErr
}

// normalizeError turns a transport failure into an APIError that still
// unwraps to the cause. Sentinels and existing APIErrors pass through.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrNotAuthenticated):
		return err
	}
	return &APIError{Message: err.Error(), cause: err}
}
