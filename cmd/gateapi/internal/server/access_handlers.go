package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zgramming/cmsgate/cmd/gateapi/internal/auth"
	gatemiddleware "github.com/zgramming/cmsgate/cmd/gateapi/internal/middleware"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

// AccessResult is the body of GET /api/access/{kind}/{id}.
type AccessResult struct {
	Kind    sdk.ResourceKind `json:"kind"`
	ID      string           `json:"id"`
	Allowed bool             `json:"allowed"`
}

func handleRoutes(w http.ResponseWriter, _ *http.Request) {
	gatemiddleware.WriteJSON(w, http.StatusOK, sdk.Routes())
}

// handleAccess answers allowed=false for unauthenticated callers.
func handleAccess(resolver *gatemiddleware.SessionResolver, cookies auth.CookieWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, ok := sdk.ParseResourceKind(chi.URLParam(r, "kind"))
		if !ok {
			gatemiddleware.WriteError(w, http.StatusBadRequest, "kind must be category, module or menu")
			return
		}
		id := chi.URLParam(r, "id")

		user := resolver.ResolveRequest(w, r, cookies)
		gatemiddleware.WriteJSON(w, http.StatusOK, AccessResult{
			Kind:    kind,
			ID:      id,
			Allowed: user.CanAccess(kind, id),
		})
	}
}
