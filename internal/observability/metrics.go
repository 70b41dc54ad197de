package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	sequenceConflicts prometheus.Counter
	probeFailOpen     prometheus.Counter
	migrationsTotal   *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_sequence_conflicts_total",
		Help: "Order number allocations lost to a concurrent allocator.",
	})
	failOpen := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_invoice_probe_failopen_total",
		Help: "Invoice-link probes that failed and were treated as not invoiced.",
	})
	migrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_migrations_total",
		Help: "Intake order migrations by outcome.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, conflicts, failOpen, migrations)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		sequenceConflicts: conflicts,
		probeFailOpen:     failOpen,
		migrationsTotal:   migrations,
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

// SequenceConflict counts an allocation lost to a concurrent allocator.
func (m *Metrics) SequenceConflict() {
	if m == nil {
		return
	}
	m.sequenceConflicts.Inc()
}

// ProbeFailOpen counts an invoice-link probe that failed open.
func (m *Metrics) ProbeFailOpen() {
	if m == nil {
		return
	}
	m.probeFailOpen.Inc()
}

// MigrationOutcome counts a finished migration by outcome (synced, error, rejected).
func (m *Metrics) MigrationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.migrationsTotal.WithLabelValues(outcome).Inc()
}

// Registerer exposes the registry for registering custom metrics.
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
