package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderservice"

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Metrics struct {
	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	catalogCalls    *prometheus.CounterVec
	catalogDuration prometheus.Histogram
	events          *prometheus.CounterVec
}

// New registers every collector on reg. Passing a fresh prometheus.NewRegistry
// keeps tests independent of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		catalogCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "calls_total",
			Help:      "Product catalog validation calls by outcome.",
		}, []string{"outcome"}),
		catalogDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "call_duration_seconds",
			Help:      "Product catalog round trip latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events published by type and outcome.",
		}, []string{"type", "outcome"}),
	}

	reg.MustRegister(m.requests, m.latency, m.catalogCalls, m.catalogDuration, m.events)
	return m
}

func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCatalogCall(err error, elapsed time.Duration) {
	m.catalogCalls.WithLabelValues(outcome(err)).Inc()
	m.catalogDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveEvent(eventType string, err error) {
	m.events.WithLabelValues(eventType, outcome(err)).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
