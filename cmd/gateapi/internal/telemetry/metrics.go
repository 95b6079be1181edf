package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

// Metrics records gate activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	decisions     *prometheus.CounterVec
	forbidden     prometheus.Counter
	verifications *prometheus.CounterVec
	verifyLatency prometheus.Histogram
	refreshes     *prometheus.CounterVec
	logins        *prometheus.CounterVec
	revocations   prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_route_decisions_total",
			Help: "Route decisions by route class and action.",
		}, []string{"class", "action"}),
		forbidden: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gate_resource_forbidden_total",
			Help: "Deep links denied by access-list checks.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_token_verifications_total",
			Help: "Token verifications by outcome.",
		}, []string{"outcome"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gate_token_verification_seconds",
			Help:    "Latency of token verification calls.",
			Buckets: prometheus.DefBuckets,
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_token_refreshes_total",
			Help: "Refresh exchanges by outcome.",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gate_token_revocations_total",
			Help: "Access tokens added to the denylist.",
		}),
	}

	reg.MustRegister(
		m.decisions,
		m.forbidden,
		m.verifications,
		m.verifyLatency,
		m.refreshes,
		m.logins,
		m.revocations,
	)
	return m
}

// RecordDecision counts a route decision.
func (m *Metrics) RecordDecision(d sdk.RouteDecision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(d.Class.String(), d.Action.String()).Inc()
}

// RecordForbidden counts a denied deep link.
func (m *Metrics) RecordForbidden() {
	if m == nil {
		return
	}
	m.forbidden.Inc()
}

// RecordVerification matches sdk.VerifyObserver.
func (m *Metrics) RecordVerification(outcome sdk.VerifyOutcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(string(outcome)).Inc()
	m.verifyLatency.Observe(elapsed.Seconds())
}

// RecordRefresh counts a refresh exchange.
func (m *Metrics) RecordRefresh(outcome sdk.RefreshOutcome) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(string(outcome)).Inc()
}

// RecordLogin counts a login attempt; result is success, failure or rate_limited.
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// RecordRevocation counts a denylisted token.
func (m *Metrics) RecordRevocation() {
	if m == nil {
		return
	}
	m.revocations.Inc()
}

// Handler serves the registry for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
