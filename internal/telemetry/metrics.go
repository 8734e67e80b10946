// Package telemetry provides Prometheus instrumentation for conversions, synchronizations, sweeps and HTTP.
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
)

const namespace = "hebday"

// Metrics holds every instrument. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	conversions        *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	syncs              *prometheus.CounterVec
	sweepRecords       *prometheus.GaugeVec
	sweepsTotal        prometheus.Counter
	requestDuration    *prometheus.HistogramVec
	requestsTotal      *prometheus.CounterVec
}

// NewMetrics registers every instrument on a fresh registry, alongside the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Upstream calendar conversions by direction and result.",
		}, []string{"direction", "result"}),
		conversionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Duration of upstream conversions, retries included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"direction"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synchronizations_total",
			Help:      "Record synchronizations by outcome.",
		}, []string{"outcome"}),
		sweepRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sweep_records",
			Help:      "Records scanned, updated and failed by the last sweep.",
		}, []string{"state"}),
		sweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed sweeps.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "status_code"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.conversions, m.conversionDuration, m.syncs, m.sweepRecords, m.sweepsTotal,
		m.requestDuration, m.requestsTotal,
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveConversion implements engine.ConversionObserver.
func (m *Metrics) ObserveConversion(direction string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(direction, conversionResult(err)).Inc()
	m.conversionDuration.WithLabelValues(direction).Observe(elapsed.Seconds())
}

// ObserveSync implements engine.SyncObserver.
func (m *Metrics) ObserveSync(outcome string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(outcome).Inc()
}

// ObserveSweep implements engine.SyncObserver.
func (m *Metrics) ObserveSweep(scanned, updated, failed int) {
	if m == nil {
		return
	}
	m.sweepsTotal.Inc()
	m.sweepRecords.WithLabelValues("scanned").Set(float64(scanned))
	m.sweepRecords.WithLabelValues("updated").Set(float64(updated))
	m.sweepRecords.WithLabelValues("failed").Set(float64(failed))
}

// Middleware records duration and count of every request, labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, routePattern(r), strconv.Itoa(status)}
		m.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(labels...).Inc()
	})
}

// routePattern returns the chi pattern, or a constant to bound label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unknown_route"
}

func conversionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrConversionMalformed):
		return "malformed"
	default:
		return "unavailable"
	}
}
