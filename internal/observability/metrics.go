package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics the application exposes.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	reconcilesTotal   *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	importedRows      prometheus.Counter
}

// NewMetrics initialises the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "balanza_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "balanza_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	reconciles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "balanza_ledger_reconciles_total",
		Help: "Ledger reconciliations by outcome.",
	}, []string{"outcome"})
	reconcileDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "balanza_ledger_reconcile_duration_seconds",
		Help:    "Time spent recomputing the ledger.",
		Buckets: prometheus.DefBuckets,
	})
	importedRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balanza_ledger_imported_rows_total",
		Help: "Delivery rows accepted through batch imports.",
	})
	registry.MustRegister(requests, duration, reconciles, reconcileDuration, importedRows)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		reconcilesTotal:   reconciles,
		reconcileDuration: reconcileDuration,
		importedRows:      importedRows,
	}
}

// Handler returns the http.Handler backing the /metrics endpoint.
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

// ObserveReconcile records one reconciliation run.
func (m *Metrics) ObserveReconcile(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reconcilesTotal.WithLabelValues(outcome).Inc()
	m.reconcileDuration.Observe(elapsed.Seconds())
}

// AddImportedRows counts rows accepted by a batch import.
func (m *Metrics) AddImportedRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importedRows.Add(float64(n))
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

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
