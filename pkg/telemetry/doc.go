// Package telemetry provides logging, tracing, metrics and lifecycle events
// for animkit workers.
//
// Logging uses zerolog, tracing uses OpenTelemetry with OTLP or stdout
// exporters, and metrics are Prometheus collectors on a private registry.
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	logger := tel.Logger.NewComponentLogger("commandqueue")
//	logger.WithHandle(protocol.KindImage, h).Debug("image decoded")
//
// Tests and embedders that do not care about telemetry use NewNop.
//
// # Metrics
//
// The command queue counts issued commands and routed or dropped callbacks.
// Services record awaited request latency, and the command server records
// per-command execution time. Live wrapper counts and global asset counts are
// exposed as gauges. Metrics are served at /metrics on the configured listen
// address when StartMetricsServer is called.
//
// # Events
//
// The event publisher delivers worker, resource and global asset lifecycle
// events to subscribers, optionally through a buffered asynchronous loop.
// Subscribers receive events in publish order.
package telemetry
