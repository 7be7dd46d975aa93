package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters, gauges and histograms for the renderer.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	rendersTotal     prometheus.Counter
	renderFailures   *prometheus.CounterVec
	framesTotal      prometheus.Counter
	renderDuration   prometheus.Histogram
	boundariesLoaded prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nlcd_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nlcd_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	rendersTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nlcd_renders_total",
		Help: "Total number of animations rendered successfully",
	})
	renderFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nlcd_render_failures_total",
		Help: "Total number of failed renders by error kind",
	}, []string{"kind"})
	framesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nlcd_frames_rendered_total",
		Help: "Total number of yearly frames clipped and recolored",
	})
	renderDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nlcd_render_duration_seconds",
		Help:    "Wall-clock duration of a full render",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	boundariesLoaded := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nlcd_boundaries_loaded",
		Help: "Number of administrative boundary records loaded",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		rendersTotal,
		renderFailures,
		framesTotal,
		renderDuration,
		boundariesLoaded,
	)

	return &Metrics{
		registry:         registry,
		requestsTotal:    requestsTotal,
		errorsTotal:      errorsTotal,
		rendersTotal:     rendersTotal,
		renderFailures:   renderFailures,
		framesTotal:      framesTotal,
		renderDuration:   renderDuration,
		boundariesLoaded: boundariesLoaded,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncFrames increments the rendered frames counter.
func (m *Metrics) IncFrames() {
	m.framesTotal.Inc()
}

// ObserveRender records a successful render and its duration.
func (m *Metrics) ObserveRender(d time.Duration) {
	m.rendersTotal.Inc()
	m.renderDuration.Observe(d.Seconds())
}

// IncRenderFailures counts a failed render under the given error kind.
func (m *Metrics) IncRenderFailures(kind string) {
	m.renderFailures.WithLabelValues(kind).Inc()
}

// SetBoundariesLoaded sets the loaded boundaries gauge.
func (m *Metrics) SetBoundariesLoaded(n int) {
	m.boundariesLoaded.Set(float64(n))
}

// Registry returns the private registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
