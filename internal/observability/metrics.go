package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Metrics holds all Prometheus metric instruments for the call-center server.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Screen metrics
	ScreensMountedTotal     *prometheus.CounterVec
	ScreensActive           *prometheus.GaugeVec
	ScreensReapedTotal      prometheus.Counter
	ScreenEventsTotal       *prometheus.CounterVec
	SubmissionsTotal        *prometheus.CounterVec
	ValidationFailuresTotal *prometheus.CounterVec

	// Backend metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge
	BackendRetriesTotal        *prometheus.CounterVec

	// Lookup metrics
	LookupCacheHitsTotal   *prometheus.CounterVec
	LookupCacheMissesTotal *prometheus.CounterVec
	DebounceFiredTotal     *prometheus.CounterVec
	DebounceStaleTotal     *prometheus.CounterVec

	// System metrics
	DefinitionsLoaded prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callcenter_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callcenter_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		// Screens
		ScreensMountedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callcenter_screens_mounted_total",
			Help: "Total number of mounted screens.",
		}, []string{"screen"}),
		ScreensActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "callcenter_screens_active",
			Help: "Number of live screen sessions.",
		}, []string{"screen"}),
		ScreensReapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callcenter_screens_reaped_total",
			Help: "Total number of idle screen sessions closed by the reaper.",
		}),
		ScreenEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callcenter_screen_events_total",
			Help: "Total number of screen events handled.",
		}, []string{"screen", "event"}),
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callcenter_submissions_total",
			Help: "Total number of form submissions sent to the backend.",
		}, []string{"screen", "outcome"}),
		ValidationFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callcenter_validation_failures_total",
			Help: "Total number of submissions blocked by validation.",
		}, []string{"screen"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callcenter_backend_requests_total",
			Help: "Total number of backend requests.",
		}, []string{"operation", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callcenter_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"operation"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "callcenter_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BackendRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callcenter_backend_retries_total",
			Help: "Total number of backend request retries.",
		}, []string{"operation"}),

		// Lookups
		LookupCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callcenter_lookup_cache_hits_total",
			Help: "Total lookup cache hits.",
		}, []string{"source"}),
		LookupCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callcenter_lookup_cache_misses_total",
			Help: "Total lookup cache misses.",
		}, []string{"source"}),
		DebounceFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callcenter_debounce_fired_total",
			Help: "Total debounced actions that reached their quiet period.",
		}, []string{"source"}),
		DebounceStaleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callcenter_debounce_stale_total",
			Help: "Total lookup results discarded because a newer request superseded them.",
		}, []string{"source"}),

		// System
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "callcenter_definitions_loaded",
			Help: "Number of loaded screen definitions.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		// Screens
		m.ScreensMountedTotal,
		m.ScreensActive,
		m.ScreensReapedTotal,
		m.ScreenEventsTotal,
		m.SubmissionsTotal,
		m.ValidationFailuresTotal,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.BackendRetriesTotal,
		// Lookups
		m.LookupCacheHitsTotal,
		m.LookupCacheMissesTotal,
		m.DebounceFiredTotal,
		m.DebounceStaleTotal,
		// System
		m.DefinitionsLoaded,
	)

	return m
}

// --- Recording helpers ---
//
// All helpers are safe to call on a nil *Metrics so that components can be
// constructed without instrumentation in tests.

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordScreenMounted records a new screen session.
func (m *Metrics) RecordScreenMounted(screen string) {
	if m == nil {
		return
	}
	m.ScreensMountedTotal.WithLabelValues(screen).Inc()
	m.ScreensActive.WithLabelValues(screen).Inc()
}

// RecordScreenClosed records the end of a screen session. reaped is true when
// the idle reaper closed it.
func (m *Metrics) RecordScreenClosed(screen string, reaped bool) {
	if m == nil {
		return
	}
	m.ScreensActive.WithLabelValues(screen).Dec()
	if reaped {
		m.ScreensReapedTotal.Inc()
	}
}

// RecordScreenEvent records a handled screen event.
func (m *Metrics) RecordScreenEvent(screen, event string) {
	if m == nil {
		return
	}
	m.ScreenEventsTotal.WithLabelValues(screen, event).Inc()
}

// RecordSubmission records a submission outcome (success, rejected, error).
func (m *Metrics) RecordSubmission(screen, outcome string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(screen, outcome).Inc()
}

// RecordValidationFailure records a submission blocked by validation.
func (m *Metrics) RecordValidationFailure(screen string) {
	if m == nil {
		return
	}
	m.ValidationFailuresTotal.WithLabelValues(screen).Inc()
}

// RecordBackendRequest records a backend request. status is the HTTP status
// code, or 0 when the request failed before a response arrived.
func (m *Metrics) RecordBackendRequest(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the circuit breaker state.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBackendCircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.BackendCircuitBreakerState.Set(state)
}

// RecordBackendRetry records a backend request retry.
func (m *Metrics) RecordBackendRetry(operation string) {
	if m == nil {
		return
	}
	m.BackendRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordLookupCacheHit records a lookup cache hit.
func (m *Metrics) RecordLookupCacheHit(source string) {
	if m == nil {
		return
	}
	m.LookupCacheHitsTotal.WithLabelValues(source).Inc()
}

// RecordLookupCacheMiss records a lookup cache miss.
func (m *Metrics) RecordLookupCacheMiss(source string) {
	if m == nil {
		return
	}
	m.LookupCacheMissesTotal.WithLabelValues(source).Inc()
}

// RecordDebounceFired records a debounced action reaching its quiet period.
func (m *Metrics) RecordDebounceFired(source string) {
	if m == nil {
		return
	}
	m.DebounceFiredTotal.WithLabelValues(source).Inc()
}

// RecordDebounceStale records a lookup result discarded as stale.
func (m *Metrics) RecordDebounceStale(source string) {
	if m == nil {
		return
	}
	m.DebounceStaleTotal.WithLabelValues(source).Inc()
}

// SetDefinitionsLoaded sets the number of loaded definitions.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	if m == nil {
		return
	}
	m.DefinitionsLoaded.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.ReplaceAll(pattern, "/*/", "/")
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
