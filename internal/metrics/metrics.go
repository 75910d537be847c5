// Package metrics exposes Prometheus metrics for the analytics service.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eliksir"

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	pageViewsIngested prometheus.Counter
	pageViewsRejected *prometheus.CounterVec
	ingestDuration    prometheus.Histogram

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	streamSubscribers prometheus.Gauge
	authFailures      prometheus.Counter
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auto := promauto.With(reg)

	return &Metrics{
		registry: reg,
		pageViewsIngested: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pageviews_ingested_total",
			Help:      "Page views stored.",
		}),
		pageViewsRejected: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pageviews_rejected_total",
			Help:      "Page views not stored, by reason.",
		}, []string{"reason"}),
		ingestDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent appending one page view to storage.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "code"}),
		httpRequestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		streamSubscribers: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Connected live-feed clients.",
		}),
		authFailures: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Failed login and token checks.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// PageViewIngested records one stored page view.
func (m *Metrics) PageViewIngested(d time.Duration) {
	if m == nil {
		return
	}
	m.pageViewsIngested.Inc()
	m.ingestDuration.Observe(d.Seconds())
}

// PageViewRejected records one page view that was not stored.
func (m *Metrics) PageViewRejected(reason string) {
	if m == nil {
		return
	}
	m.pageViewsRejected.WithLabelValues(reason).Inc()
}

// ObserveHTTP records one completed request. route is the router pattern, not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// StreamSubscribers sets the number of connected live-feed clients.
func (m *Metrics) StreamSubscribers(n int) {
	if m == nil {
		return
	}
	m.streamSubscribers.Set(float64(n))
}

// AuthFailure records a rejected credential.
func (m *Metrics) AuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}
