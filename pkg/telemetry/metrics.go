package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the command queue, its services and
// the command server. A Metrics built from a disabled config is a no-op.
type Metrics struct {
	config MetricsConfig

	// Queue metrics
	commandsIssued   *prometheus.CounterVec
	callbacksRouted  *prometheus.CounterVec
	callbacksDropped *prometheus.CounterVec

	// Request metrics
	requestsPending   prometheus.Gauge
	requestsCompleted *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec

	// Server metrics
	serverCommands        *prometheus.CounterVec
	serverCommandDuration *prometheus.HistogramVec

	// Resource metrics
	resourcesLive *prometheus.GaugeVec
	globalAssets  *prometheus.GaugeVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		commandsIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_issued_total",
				Help:      "Total number of commands submitted to the command queue",
			},
			[]string{"kind", "command"},
		),
		callbacksRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callbacks_routed_total",
				Help:      "Total number of callbacks routed to a listener",
			},
			[]string{"kind", "callback"},
		),
		callbacksDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callbacks_dropped_total",
				Help:      "Total number of callbacks with no listener or no pending request",
			},
			[]string{"reason"},
		),

		requestsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_pending",
				Help:      "Current number of awaited requests without a callback",
			},
		),
		requestsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_completed_total",
				Help:      "Total number of awaited requests by outcome",
			},
			[]string{"operation", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from issuing a request to receiving its callback",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		serverCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "server_commands_total",
				Help:      "Total number of commands executed by the command server",
			},
			[]string{"command", "status"},
		),
		serverCommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "server_command_duration_seconds",
				Help:      "Duration of command execution in the engine",
				Buckets:   buckets,
			},
			[]string{"command"},
		),

		resourcesLive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resources_live",
				Help:      "Current number of resource wrappers that have not been released",
			},
			[]string{"kind"},
		),
		globalAssets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "global_assets",
				Help:      "Current number of named global assets",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.commandsIssued,
		m.callbacksRouted,
		m.callbacksDropped,
		m.requestsPending,
		m.requestsCompleted,
		m.requestDuration,
		m.serverCommands,
		m.serverCommandDuration,
		m.resourcesLive,
		m.globalAssets,
	)

	return m, nil
}

// Queue Metrics

// RecordCommandIssued counts a command handed to the transport.
func (m *Metrics) RecordCommandIssued(kind, command string) {
	if m.commandsIssued == nil {
		return
	}
	m.commandsIssued.WithLabelValues(kind, command).Inc()
}

// RecordCallbackRouted counts a callback delivered to a listener.
func (m *Metrics) RecordCallbackRouted(kind, callback string) {
	if m.callbacksRouted == nil {
		return
	}
	m.callbacksRouted.WithLabelValues(kind, callback).Inc()
}

// RecordCallbackDropped counts a callback that found nothing to deliver to.
// reason is "no_listener" or "not_pending".
func (m *Metrics) RecordCallbackDropped(reason string) {
	if m.callbacksDropped == nil {
		return
	}
	m.callbacksDropped.WithLabelValues(reason).Inc()
}

// Request Metrics

// RecordRequestStarted marks an awaited request as pending.
func (m *Metrics) RecordRequestStarted() {
	if m.requestsPending == nil {
		return
	}
	m.requestsPending.Inc()
}

// RecordRequestCompleted records the outcome of an awaited request. Requests
// abandoned by their caller stay counted as pending.
func (m *Metrics) RecordRequestCompleted(operation, status string, duration time.Duration) {
	if m.requestsCompleted == nil {
		return
	}
	m.requestsCompleted.WithLabelValues(operation, status).Inc()
	if status != "abandoned" {
		m.requestsPending.Dec()
		m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// Server Metrics

// RecordServerCommand records a command executed by the command server.
func (m *Metrics) RecordServerCommand(command, status string, duration time.Duration) {
	if m.serverCommands == nil {
		return
	}
	m.serverCommands.WithLabelValues(command, status).Inc()
	m.serverCommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// Resource Metrics

// RecordResourceCreated increments the live wrapper count for kind.
func (m *Metrics) RecordResourceCreated(kind string) {
	if m.resourcesLive == nil {
		return
	}
	m.resourcesLive.WithLabelValues(kind).Inc()
}

// RecordResourceReleased decrements the live wrapper count for kind.
func (m *Metrics) RecordResourceReleased(kind string) {
	if m.resourcesLive == nil {
		return
	}
	m.resourcesLive.WithLabelValues(kind).Dec()
}

// SetGlobalAssets sets the number of named global assets of kind.
func (m *Metrics) SetGlobalAssets(kind string, count int) {
	if m.globalAssets == nil {
		return
	}
	m.globalAssets.WithLabelValues(kind).Set(float64(count))
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Registry exposes the private registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. Serve errors
// are reported on the returned channel.
func (m *Metrics) StartMetricsServer() <-chan error {
	errCh := make(chan error, 1)
	if !m.config.Enabled || m.config.ListenAddress == "" {
		close(errCh)
		return errCh
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		defer close(errCh)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return errCh
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
