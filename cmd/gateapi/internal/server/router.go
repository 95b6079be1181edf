package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/zgramming/cmsgate/cmd/gateapi/internal/auth"
	gatemiddleware "github.com/zgramming/cmsgate/cmd/gateapi/internal/middleware"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/telemetry"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

// IdentityService is the subset of the identity authority the browser-facing
// auth endpoints call.
type IdentityService interface {
	Login(ctx context.Context, in sdk.LoginRequest) (*sdk.LoginResponse, error)
	Logout(ctx context.Context, accessToken string) error
}

// TokenRevoker denylists logged-out access tokens.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// RouterOptions controls the construction of the gateway router.
type RouterOptions struct {
	Identity IdentityService
	Resolver *gatemiddleware.SessionResolver
	Revoker  TokenRevoker // optional
	Cookies  auth.CookieWriter
	Metrics  *telemetry.Metrics
	Gatherer prometheus.Gatherer // optional; serves /metrics when set
	Log      logrus.FieldLogger

	LoginLimiter   *gatemiddleware.RateLimiter // optional
	RefreshLimiter *gatemiddleware.RateLimiter // optional

	// Upstream receives every request the gate allows; nil disables proxying.
	Upstream      http.Handler
	CORSOptions   *cors.Options // nil disables CORS
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions allows credentialed calls from the given SPA origins.
func DefaultCORSOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", sdk.RequestIDHeader},
		ExposedHeaders:   []string{sdk.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	gatemiddleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter assembles the gateway: its own auth and access endpoints, then
// the gated catch-all proxy to the upstream.
func NewRouter(opts RouterOptions) chi.Router {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(gatemiddleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)

	if opts.CORSOptions != nil {
		r.Use(cors.Handler(*opts.CORSOptions))
	}

	health := opts.HealthHandler
	if health == nil {
		health = defaultHealthHandler
	}
	r.Get("/health", health)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", telemetry.Handler(opts.Gatherer))
	}

	h := &authHandlers{
		identity: opts.Identity,
		resolver: opts.Resolver,
		revoker:  opts.Revoker,
		cookies:  opts.Cookies,
		metrics:  opts.Metrics,
		log:      log,
	}
	r.Route("/auth", func(r chi.Router) {
		r.With(limit(opts.LoginLimiter)).Post("/login", h.login)
		r.Post("/logout", h.logout)
		r.With(limit(opts.RefreshLimiter)).Post("/refresh", h.refresh)
		r.Get("/session", h.session)
		r.With(gatemiddleware.RequireSession(opts.Resolver, opts.Cookies)).Get("/me", h.me)
	})

	r.Get("/api/routes", handleRoutes)
	r.Get("/api/access/{kind}/{id}", handleAccess(opts.Resolver, opts.Cookies))

	if opts.Upstream != nil {
		gate := gatemiddleware.NewGate(gatemiddleware.GateDependencies{
			Resolver: opts.Resolver,
			Cookies:  opts.Cookies,
			Metrics:  opts.Metrics,
			Log:      log,
		})
		r.With(gate).Handle("/*", opts.Upstream)
	}

	return r
}

func limit(l *gatemiddleware.RateLimiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Middleware
}
