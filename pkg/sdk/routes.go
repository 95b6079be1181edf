package sdk

import (
	"net/url"
	"path"
	"slices"
	"strings"
)

const (
	// LoginPath is the login entry point.
	LoginPath = "/login"
	// DashboardPath is the default post-login destination.
	DashboardPath = "/dashboard"
	// RedirectParam carries the intended destination through the login flow.
	RedirectParam = "redirect"
)

// Route tables. These are the only copies; navigation helpers read them
// through Routes().
var (
	publicRoutes      = []string{"/", LoginPath}
	authRoutes        = []string{LoginPath}
	protectedPrefixes = []string{DashboardPath, "/app"}
	apiExemptPrefixes = []string{"/api", "/_next"}
)

// RouteClass is the classification of a request path.
type RouteClass int

const (
	RouteDefault RouteClass = iota
	RoutePublic
	RouteAuthOnly
	RouteProtected
	RouteAPIExempt
)

func (c RouteClass) String() string {
	switch c {
	case RoutePublic:
		return "public"
	case RouteAuthOnly:
		return "auth-only"
	case RouteProtected:
		return "protected"
	case RouteAPIExempt:
		return "api-exempt"
	default:
		return "default"
	}
}

// RouteAction is the outcome of a route decision.
type RouteAction int

const (
	ActionAllow RouteAction = iota
	ActionRedirectLogin
	ActionRedirectHome
)

func (a RouteAction) String() string {
	switch a {
	case ActionRedirectLogin:
		return "redirect-login"
	case ActionRedirectHome:
		return "redirect-home"
	default:
		return "allow"
	}
}

// RouteDecision is the gate's verdict for one request.
type RouteDecision struct {
	Class  RouteClass
	Action RouteAction
	// Location is set for redirect actions.
	Location string
}

// RouteParams are the identifiers carried by an /app deep link.
type RouteParams struct {
	CategoryID string
	ModuleID   string
}

// RouteTable is the exported view of the fixed route tables.
type RouteTable struct {
	Public            []string `json:"public"`
	AuthOnly          []string `json:"auth_only"`
	ProtectedPrefixes []string `json:"protected_prefixes"`
	APIExemptPrefixes []string `json:"api_exempt_prefixes"`
	LoginPath         string   `json:"login_path"`
	HomePath          string   `json:"home_path"`
}

// Routes returns a copy of the route tables.
func Routes() RouteTable {
	return RouteTable{
		Public:            slices.Clone(publicRoutes),
		AuthOnly:          slices.Clone(authRoutes),
		ProtectedPrefixes: slices.Clone(protectedPrefixes),
		APIExemptPrefixes: slices.Clone(apiExemptPrefixes),
		LoginPath:         LoginPath,
		HomePath:          DashboardPath,
	}
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func hasPrefixSegment(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func matchesAnyPrefix(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasPrefixSegment(p, prefix) {
			return true
		}
	}
	return false
}

// isStaticAsset reports whether the last path segment looks like a file.
func isStaticAsset(p string) bool {
	return strings.Contains(path.Base(p), ".")
}

// ClassifyRoute returns the single class for p. Precedence is API-exempt,
// public, auth-only, protected, then default. Static assets are exempt
// unless they sit under a protected prefix.
func ClassifyRoute(p string) RouteClass {
	p = cleanPath(p)
	switch {
	case matchesAnyPrefix(p, apiExemptPrefixes):
		return RouteAPIExempt
	case slices.Contains(publicRoutes, p):
		return RoutePublic
	case slices.Contains(authRoutes, p):
		return RouteAuthOnly
	case matchesAnyPrefix(p, protectedPrefixes):
		return RouteProtected
	case isStaticAsset(p):
		return RouteAPIExempt
	default:
		return RouteDefault
	}
}

// IsAuthRoute reports whether p bounces an already authenticated caller.
func IsAuthRoute(p string) bool {
	return slices.Contains(authRoutes, cleanPath(p))
}

// NeedsSession reports whether DecideRoute for p depends on the
// authentication state. Callers use it to skip verification entirely.
func NeedsSession(p string) bool {
	if IsAuthRoute(p) {
		return true
	}
	return ClassifyRoute(p) == RouteProtected
}

// DecideRoute applies the gate to u. An auth-only path with a valid
// credential is bounced before the public allow applies, so /login is
// reachable without a session but forwards a signed-in caller.
func DecideRoute(u *url.URL, authenticated bool) RouteDecision {
	class := ClassifyRoute(u.Path)
	d := RouteDecision{Class: class, Action: ActionAllow}

	switch {
	case class == RouteAPIExempt:
	case authenticated && IsAuthRoute(u.Path):
		d.Action = ActionRedirectHome
		d.Location = PostLoginRedirect(u.Query())
	case class == RoutePublic:
	case class == RouteProtected && !authenticated:
		d.Action = ActionRedirectLogin
		d.Location = LoginRedirectURL(u.RequestURI())
	}
	return d
}

// LoginRedirectURL builds the login URL that returns to target afterwards.
func LoginRedirectURL(target string) string {
	q := url.Values{}
	q.Set(RedirectParam, target)
	return LoginPath + "?" + q.Encode()
}

// PostLoginRedirect resolves the destination after login from the login
// request's query. Only same-origin relative paths are honored.
func PostLoginRedirect(q url.Values) string {
	if target := q.Get(RedirectParam); IsSafeRedirect(target) {
		return target
	}
	return DashboardPath
}

// IsSafeRedirect reports whether target is a relative path on this origin.
// Protocol-relative and backslash variants are rejected.
func IsSafeRedirect(target string) bool {
	if len(target) == 0 || target[0] != '/' {
		return false
	}
	if len(target) > 1 && (target[1] == '/' || target[1] == '\\') {
		return false
	}
	for _, r := range target {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// ExtractRouteParams parses /app/<categoryId>/<moduleId>/... and returns
// nil when p does not have that shape.
func ExtractRouteParams(p string) *RouteParams {
	rest, ok := strings.CutPrefix(cleanPath(p), "/app/")
	if !ok {
		return nil
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil
	}
	return &RouteParams{CategoryID: parts[0], ModuleID: parts[1]}
}
