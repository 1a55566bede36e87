// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the proxy.
//
// # Logging
//
//	logger, err := observability.NewLogger(observability.LogConfig{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request forwarded",
//	    observability.String("target", "https://example.com:443/"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
//	metrics := observability.NewMetrics("dynproxy")
//	handler := observability.MetricsMiddleware(metrics)(next)
//	http.Handle("/metrics", metrics.Handler())
//
// # Tracing
//
// Server spans are started by TracingMiddleware; InjectTraceContext copies
// the active span context onto outbound requests. With tracing disabled the
// global propagator is a no-op and nothing is injected.
package observability
