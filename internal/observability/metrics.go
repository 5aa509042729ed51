package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the permission core.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	PermissionChecks   *prometheus.CounterVec
	PermissionDuration prometheus.Histogram
	CacheLookups       *prometheus.CounterVec
	BroadcastDelivered prometheus.Counter
	BroadcastPruned    prometheus.Counter
	AuditDropped       prometheus.Counter
}

// NewMetrics initialises the registry and core metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storewatch_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storewatch_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	permChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storewatch_permission_checks_total",
		Help: "Permission checks by outcome.",
	}, []string{"granted"})
	permDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storewatch_permission_check_duration_seconds",
		Help:    "Permission check duration.",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
	})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storewatch_context_cache_lookups_total",
		Help: "Tenant context cache lookups by result.",
	}, []string{"result"})
	delivered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storewatch_broadcast_messages_total",
		Help: "Permission-change messages delivered to live sessions.",
	})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storewatch_broadcast_pruned_sessions_total",
		Help: "Dead sessions pruned during broadcast.",
	})
	auditDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storewatch_audit_dropped_total",
		Help: "Audit entries dropped because the queue was full.",
	})
	registry.MustRegister(requests, duration, permChecks, permDuration, cacheLookups, delivered, pruned, auditDropped)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		PermissionChecks:   permChecks,
		PermissionDuration: permDuration,
		CacheLookups:       cacheLookups,
		BroadcastDelivered: delivered,
		BroadcastPruned:    pruned,
		AuditDropped:       auditDropped,
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

// Middleware records request metrics for every HTTP request.
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

// Registerer exposes the registry for custom metric registration.
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

// Flush keeps the underlying Flusher reachable so event-stream handlers
// still work behind the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
