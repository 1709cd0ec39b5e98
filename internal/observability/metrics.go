// Package observability collects Prometheus metrics for the service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and the instruments the service records into.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	postingsTotal   *prometheus.CounterVec
	reversalsTotal  *prometheus.CounterVec
	stockMovements  *prometheus.CounterVec
}

// NewMetrics initialises the registry and base instruments.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agriledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_postings_total",
		Help: "Committed posting groups by source type and outcome.",
	}, []string{"source_type", "outcome"})
	reversals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_reversals_total",
		Help: "Committed reversal groups by source type.",
	}, []string{"source_type"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_stock_movements_total",
		Help: "Stock movements written by movement type.",
	}, []string{"type"})
	registry.MustRegister(requests, duration, postings, reversals, movements)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		postingsTotal:   postings,
		reversalsTotal:  reversals,
		stockMovements:  movements,
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per chi route pattern.
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

// RecordPosting counts a committed (or replayed) posting group.
func (m *Metrics) RecordPosting(sourceType string, replayed bool) {
	if m == nil {
		return
	}
	outcome := "committed"
	if replayed {
		outcome = "replayed"
	}
	m.postingsTotal.WithLabelValues(sourceType, outcome).Inc()
}

// RecordReversal counts a committed reversal group.
func (m *Metrics) RecordReversal(sourceType string) {
	if m == nil {
		return
	}
	m.reversalsTotal.WithLabelValues(sourceType).Inc()
}

// RecordStockMovement counts one stock movement row.
func (m *Metrics) RecordStockMovement(movementType string) {
	if m == nil {
		return
	}
	m.stockMovements.WithLabelValues(movementType).Inc()
}

// Registerer exposes the registry for custom instruments.
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
