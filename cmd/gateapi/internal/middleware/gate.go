package middleware

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zgramming/cmsgate/cmd/gateapi/internal/auth"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/telemetry"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

// Headers forwarded to the upstream for an authenticated request. Inbound
// copies are always stripped.
const (
	UserIDHeader   = "X-Auth-User-Id"
	UserRoleHeader = "X-Auth-User-Role"
)

// GateDependencies bundles the collaborators of the route gate.
type GateDependencies struct {
	Resolver *SessionResolver
	Cookies  auth.CookieWriter
	Metrics  *telemetry.Metrics
	Log      logrus.FieldLogger
}

// NewGate enforces the route decision on page navigations before they reach
// the upstream. Paths that neither need a session nor bounce signed-in
// users are passed through without resolving cookies.
func NewGate(deps GateDependencies) func(http.Handler) http.Handler {
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(UserIDHeader)
			r.Header.Del(UserRoleHeader)

			canonical, ok := canonicalPath(r.URL)
			if !ok {
				log.WithField("path", r.URL.EscapedPath()).Info("rejected encoded path separator")
				WriteError(w, http.StatusBadRequest, "encoded path separators are not allowed")
				return
			}
			if canonical != r.URL.Path {
				target := (&url.URL{Path: canonical, RawQuery: r.URL.RawQuery}).RequestURI()
				http.Redirect(w, r, target, http.StatusPermanentRedirect)
				return
			}

			var user *sdk.AuthenticatedUser
			if sdk.NeedsSession(r.URL.Path) {
				user = deps.Resolver.ResolveRequest(w, r, deps.Cookies)
			}

			decision := sdk.DecideRoute(r.URL, user != nil)
			deps.Metrics.RecordDecision(decision)

			switch decision.Action {
			case sdk.ActionRedirectLogin, sdk.ActionRedirectHome:
				log.WithFields(logrus.Fields{
					"path":     r.URL.Path,
					"class":    decision.Class.String(),
					"location": decision.Location,
				}).Debug("route redirect")
				http.Redirect(w, r, decision.Location, http.StatusFound)
				return
			}

			if user != nil {
				if allowed, ok := user.CanAccessDeepLink(r.URL.Path); ok && !allowed {
					deps.Metrics.RecordForbidden()
					log.WithFields(logrus.Fields{
						"path":    r.URL.Path,
						"user_id": user.ID,
					}).Info("deep link denied by access list")
					WriteError(w, http.StatusForbidden, "access to this resource is not allowed")
					return
				}
				r.Header.Set(UserIDHeader, user.ID)
				if user.Role != "" {
					r.Header.Set(UserRoleHeader, user.Role)
				}
				r = r.WithContext(auth.SetUserContext(r.Context(), user))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// canonicalPath returns the cleaned form of u's path, keeping a trailing
// slash. The gate only decides on requests already in that form, so the
// upstream routes on exactly the segments that were checked. ok is false
// when the path carries an encoded slash or backslash.
func canonicalPath(u *url.URL) (p string, ok bool) {
	escaped := strings.ToLower(u.EscapedPath())
	if strings.Contains(escaped, "%2f") || strings.Contains(escaped, "%5c") || strings.Contains(u.Path, "\\") {
		return "", false
	}

	p = u.Path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned, true
}

// RequireSession rejects requests without a resolvable session with 401 and
// stores the user in the context otherwise.
func RequireSession(resolver *SessionResolver, cookies auth.CookieWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := resolver.ResolveRequest(w, r, cookies)
			if user == nil {
				WriteError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.SetUserContext(r.Context(), user)))
		})
	}
}
