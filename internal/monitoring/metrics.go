// Package monitoring exposes build, watch and reload activity as prometheus
// metrics and a JSON health report.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics set.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "hammer").
	Namespace string

	// Buckets are the histogram buckets for pass duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry receives the collectors. Default: a fresh registry with the Go
	// and process collectors.
	Registry *prometheus.Registry
}

// MetricsOption configures the metrics set.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the prometheus registry.
func WithRegistry(registry *prometheus.Registry) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the collectors. A nil *Metrics is valid and records nothing,
// so components can take one unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	passes        prometheus.Counter
	passDuration  prometheus.Histogram
	passFailures  prometheus.Counter
	actions       *prometheus.CounterVec
	watchEvents   prometheus.Counter
	reloads       prometheus.Counter
	clients       prometheus.Gauge
	restarts      prometheus.Counter
	lastPassEpoch prometheus.Gauge
}

// NewMetrics registers the collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "hammer",
		Buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
		config.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		registry: config.Registry,

		passes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "passes_total",
			Help:      "Total number of build passes",
		}),

		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "pass_duration_seconds",
			Help:      "Build pass duration in seconds",
			Buckets:   config.Buckets,
		}),

		passFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "pass_failures_total",
			Help:      "Total number of failed build passes",
		}),

		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "actions_total",
			Help:      "Cache actions dispatched to the builder by type",
		}, []string{"type"}),

		watchEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "watch_events_total",
			Help:      "Debounced watch events received",
		}),

		reloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "reloads_total",
			Help:      "Reload signals sent to clients",
		}),

		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "reload_clients",
			Help:      "Connected live-reload clients",
		}),

		restarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "process_restarts_total",
			Help:      "Supervised process restarts",
		}),

		lastPassEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "last_pass_timestamp_seconds",
			Help:      "Unix time of the last completed pass",
		}),
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// RecordPass records a completed pass and the actions it dispatched, keyed
// by action type name.
func (m *Metrics) RecordPass(duration time.Duration, actions map[string]int, err error) {
	if m == nil {
		return
	}
	m.passes.Inc()
	m.passDuration.Observe(duration.Seconds())
	if err != nil {
		m.passFailures.Inc()
	}
	for kind, n := range actions {
		m.actions.WithLabelValues(kind).Add(float64(n))
	}
	m.lastPassEpoch.SetToCurrentTime()
}

// RecordWatchEvent counts a debounced watch event.
func (m *Metrics) RecordWatchEvent() {
	if m == nil {
		return
	}
	m.watchEvents.Inc()
}

// RecordReload counts a reload broadcast.
func (m *Metrics) RecordReload() {
	if m == nil {
		return
	}
	m.reloads.Inc()
}

// SetClients sets the live-reload client gauge.
func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}

// RecordRestart counts a supervised process restart.
func (m *Metrics) RecordRestart() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}
