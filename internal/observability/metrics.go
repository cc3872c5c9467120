package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the portal.
type Metrics struct {
	registry             *prometheus.Registry
	handler              http.Handler
	requestsTotal        *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	loginsTotal          *prometheus.CounterVec
	guardDecisions       *prometheus.CounterVec
	remoteLogoutFailures prometheus.Counter
	sessionsExpired      prometheus.Counter
}

// NewMetrics initialises the registry and the portal collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_auth_logins_total",
		Help: "Credential exchanges by result.",
	}, []string{"result"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_guard_decisions_total",
		Help: "Route guard decisions by outcome.",
	}, []string{"decision"})
	logoutFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_auth_remote_logout_failures_total",
		Help: "Remote session invalidations that failed and were skipped.",
	})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_auth_sessions_expired_total",
		Help: "Sessions cleared because their token expired.",
	})
	registry.MustRegister(requests, duration, logins, decisions, logoutFailures, expired)
	return &Metrics{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:        requests,
		requestDuration:      duration,
		loginsTotal:          logins,
		guardDecisions:       decisions,
		remoteLogoutFailures: logoutFailures,
		sessionsExpired:      expired,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveLogin counts a credential exchange outcome (success, rejected,
// unavailable, error).
func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(result).Inc()
}

// ObserveGuardDecision counts a route guard outcome.
func (m *Metrics) ObserveGuardDecision(decision string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(decision).Inc()
}

// ObserveRemoteLogoutFailure counts a swallowed remote logout failure.
func (m *Metrics) ObserveRemoteLogoutFailure() {
	if m == nil {
		return
	}
	m.remoteLogoutFailures.Inc()
}

// ObserveSessionExpired counts a forced logout of an expired session.
func (m *Metrics) ObserveSessionExpired() {
	if m == nil {
		return
	}
	m.sessionsExpired.Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
