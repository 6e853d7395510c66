// Package observability provides structured logging, Prometheus metrics
// and OpenTelemetry tracing for the multiplexer.
//
// # Logging
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer func() { _ = logger.Sync() }()
//
//	logger.Info("dispatched", observability.String("backend", "10.0.0.1:8080"))
//
// # Metrics
//
// Metrics owns a private registry so tests can create as many instances
// as they like. It satisfies the scheduler's metrics recorder interface.
//
//	m := observability.NewMetrics("avamux")
//	http.Handle("/metrics", m.Handler())
//
// # Tracing
//
// Tracer wraps an OTLP/gRPC exporter. When tracing is disabled the
// global no-op provider is used, so spans are always safe to start.
package observability
