package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// Metrics collects Prometheus metrics for the API and the ledger.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	consumptions    *prometheus.CounterVec
	consumedCost    *prometheus.CounterVec
	lockWait        *prometheus.HistogramVec
	lockTimeouts    prometheus.Counter
	ledgerDrift     prometheus.Counter
	alertsRaised    *prometheus.CounterVec
}

// NewMetrics initialises the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "garage_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "garage_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		consumptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_consumptions_total",
			Help: "Committed part consumptions by costing method.",
		}, []string{"method"}),
		consumedCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_consumed_cost_total",
			Help: "Cost of goods booked to jobs by costing method.",
		}, []string{"method"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inventory_lock_wait_seconds",
			Help:    "Time spent acquiring part locks.",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"outcome"}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_lock_timeouts_total",
			Help: "Part lock acquisitions that timed out.",
		}),
		ledgerDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_ledger_drift_total",
			Help: "Reads or writes that found the transaction chain disagreeing with batch totals.",
		}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_alerts_raised_total",
			Help: "Stock alert evaluations that raised or refreshed an alert.",
		}, []string{"type", "severity"}),
	}
	registry.MustRegister(m.requestsTotal, m.requestDuration, m.consumptions, m.consumedCost,
		m.lockWait, m.lockTimeouts, m.ledgerDrift, m.alertsRaised)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
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

// Middleware records request count and latency.
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

// Registerer exposes the registry for additional collectors such as job metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveConsumption counts a committed consumption and its cost.
func (m *Metrics) ObserveConsumption(method string, cost float64) {
	if m == nil {
		return
	}
	m.consumptions.WithLabelValues(method).Inc()
	m.consumedCost.WithLabelValues(method).Add(cost)
}

// ObserveLockWait records how long a part lock took and whether it timed out.
func (m *Metrics) ObserveLockWait(wait time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "acquired"
	switch {
	case errors.Is(err, shared.ErrLockTimeout):
		outcome = "timeout"
		m.lockTimeouts.Inc()
	case err != nil:
		outcome = "error"
	}
	m.lockWait.WithLabelValues(outcome).Observe(wait.Seconds())
}

// IncLedgerDrift counts a detected ledger inconsistency.
func (m *Metrics) IncLedgerDrift() {
	if m == nil {
		return
	}
	m.ledgerDrift.Inc()
}

// ObserveAlert counts a raised alert.
func (m *Metrics) ObserveAlert(alertType, severity string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(alertType, severity).Inc()
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
