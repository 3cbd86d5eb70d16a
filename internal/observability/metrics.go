package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	lockWaits   prometheus.Histogram
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecoguard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ecoguard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecoguard",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Failed requests by route, method and error code",
		}, []string{"route", "method", "code"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ecoguard",
			Subsystem: "workflow",
			Name:      "stage_transitions_total",
			Help:      "Ticket stage transitions",
		}, []string{"from", "to"}),
		lockWaits: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ecoguard",
			Subsystem: "workflow",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a ticket lock",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 3},
		}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.durations.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordTransition counts a persisted stage change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// ObserveLockWait records how long a caller waited for a ticket lock.
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWaits.Observe(d.Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
