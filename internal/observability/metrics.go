package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	confirmations   *prometheus.CounterVec
	confirmDuration *prometheus.HistogramVec
	lockWait        *prometheus.HistogramVec
}

// NewMetrics initialises the registry with HTTP and ledger metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_document_confirmations_total",
		Help: "Document confirmations by type and outcome.",
	}, []string{"type", "outcome"})
	confirmDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockledger_document_confirm_duration_seconds",
		Help:    "Time spent confirming a document, lock wait included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockledger_row_lock_wait_seconds",
		Help:    "Time spent acquiring inventory row locks.",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"acquired"})
	registry.MustRegister(requests, duration, confirmations, confirmDuration, lockWait)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		confirmations:   confirmations,
		confirmDuration: confirmDuration,
		lockWait:        lockWait,
	}
}

// Handler returns the http.Handler serving /metrics.
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

// ObserveConfirmation implements documents.Observer.
func (m *Metrics) ObserveConfirmation(docType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if docType == "" {
		docType = "unknown"
	}
	m.confirmations.WithLabelValues(docType, outcome).Inc()
	m.confirmDuration.WithLabelValues(docType).Observe(d.Seconds())
}

// ObserveLockWait implements inventory.LockObserver.
func (m *Metrics) ObserveLockWait(d time.Duration, acquired bool) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(strconv.FormatBool(acquired)).Observe(d.Seconds())
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
