package server

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/zgramming/cmsgate/cmd/gateapi/internal/auth"
	gatemiddleware "github.com/zgramming/cmsgate/cmd/gateapi/internal/middleware"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/telemetry"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

const maxLoginBody = 1 << 20

// LoginResult is the body of a successful POST /auth/login. Tokens travel
// only in cookies.
type LoginResult struct {
	User            sdk.User `json:"user"`
	IsAuthenticated bool     `json:"isAuthenticated"`
	Redirect        string   `json:"redirect"`
}

type authHandlers struct {
	identity IdentityService
	resolver *gatemiddleware.SessionResolver
	revoker  TokenRevoker
	cookies  auth.CookieWriter
	metrics  *telemetry.Metrics
	log      logrus.FieldLogger
}

func (h *authHandlers) login(w http.ResponseWriter, r *http.Request) {
	var in sdk.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&in); err != nil {
		gatemiddleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.identity.Login(r.Context(), in)
	if err != nil {
		h.metrics.RecordLogin("failure")
		h.log.WithError(err).WithField("email", in.Email).Info("login rejected")
		gatemiddleware.WriteAPIError(w, err, http.StatusBadGateway)
		return
	}
	h.metrics.RecordLogin("success")

	h.cookies.SetTokens(w, resp.Token, resp.RefreshToken)
	gatemiddleware.WriteJSON(w, http.StatusOK, LoginResult{
		User:            resp.User,
		IsAuthenticated: true,
		Redirect:        sdk.PostLoginRedirect(r.URL.Query()),
	})
}

// logout always clears the cookies; the identity call and the denylist
// write are best-effort.
func (h *authHandlers) logout(w http.ResponseWriter, r *http.Request) {
	access, _ := auth.TokensFromRequest(r)
	if access != "" {
		if err := h.identity.Logout(r.Context(), access); err != nil {
			h.log.WithError(err).Warn("identity logout failed")
		}
		if h.revoker != nil {
			if err := h.revoker.Revoke(r.Context(), access); err != nil {
				h.log.WithError(err).Error("failed to denylist access token")
			}
		}
	}

	h.cookies.Clear(w)
	gatemiddleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *authHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	_, refreshToken := auth.TokensFromRequest(r)
	if refreshToken == "" {
		h.cookies.Clear(w)
		gatemiddleware.WriteError(w, http.StatusUnauthorized, sdk.ErrNotAuthenticated.Error())
		return
	}

	result, err := h.resolver.Refresh(r.Context(), refreshToken)
	if err != nil {
		h.cookies.Clear(w)
		gatemiddleware.WriteError(w, http.StatusUnauthorized, sdk.ErrSessionExpired.Error())
		return
	}

	h.cookies.SetTokens(w, result.Token, result.RefreshToken)
	w.WriteHeader(http.StatusNoContent)
}

// session reports the persisted-subset view; tokens are never included.
func (h *authHandlers) session(w http.ResponseWriter, r *http.Request) {
	snap := sdk.Snapshot{}
	if user := h.resolver.ResolveRequest(w, r, h.cookies); user != nil {
		u := user.User
		snap = sdk.Snapshot{User: &u, IsAuthenticated: true}
	}
	gatemiddleware.WriteJSON(w, http.StatusOK, snap)
}

// me returns the verified user with access lists.
func (h *authHandlers) me(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.GetUserFromContext(r.Context())
	gatemiddleware.WriteJSON(w, http.StatusOK, user)
}
