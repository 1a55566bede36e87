package main

import (
	"github.com/vyrodovalexey/dynproxy/internal/config"
	"github.com/vyrodovalexey/dynproxy/internal/gateway"
	"github.com/vyrodovalexey/dynproxy/internal/health"
	"github.com/vyrodovalexey/dynproxy/internal/middleware"
	"github.com/vyrodovalexey/dynproxy/internal/observability"
	"github.com/vyrodovalexey/dynproxy/internal/proxy"
)

// application holds all application components.
type application struct {
	gateway       *gateway.Gateway
	healthChecker *health.Checker
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	config        *config.ProxyConfig
}

// initApplication initializes all application components. Any error is
// fatal.
func initApplication(cfg *config.ProxyConfig, logger observability.Logger) *application {
	app, err := newApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", observability.Error(err))
		return nil
	}
	return app
}

// newApplication wires metrics, tracing, health and the gateway for cfg.
func newApplication(cfg *config.ProxyConfig, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics("")
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	proxy.InitProxyMetrics(metrics.Registry())
	middleware.InitMiddlewareMetrics(metrics.Registry())

	tracer, err := observability.NewTracer(tracerConfig(cfg))
	if err != nil {
		return nil, err
	}

	healthChecker := health.NewChecker(version)

	gw, err := gateway.New(cfg,
		gateway.WithLogger(logger),
		gateway.WithMiddlewares(buildMiddlewares(cfg, logger, metrics, tracer)...),
		gateway.WithAdminHandler(newAdminRouter(cfg, metrics, healthChecker)),
	)
	if err != nil {
		return nil, err
	}

	healthChecker.RegisterCheck("upstream", health.UpstreamCheck(gw.UpstreamInfo))

	return &application{
		gateway:       gw,
		healthChecker: healthChecker,
		metrics:       metrics,
		tracer:        tracer,
		config:        cfg,
	}, nil
}

// tracerConfig maps the tracing section onto the tracer settings.
func tracerConfig(cfg *config.ProxyConfig) observability.TracerConfig {
	tracing := cfg.Spec.Observability.Tracing

	return observability.TracerConfig{
		ServiceName:  firstNonEmpty(tracing.ServiceName, config.DefaultServiceName),
		OTLPEndpoint: tracing.OTLPEndpoint,
		SamplingRate: tracing.SamplingRate,
		Enabled:      tracing.Enabled,
		Insecure:     tracing.Insecure,
	}
}

// buildMiddlewares returns the chain wrapped around the proxy, outermost
// first. Rate limiting is part of the reloadable snapshot and is not
// listed here.
func buildMiddlewares(
	cfg *config.ProxyConfig,
	logger observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) []middleware.Middleware {
	recovery := middleware.Recovery(logger)
	if cfg.Spec.Development {
		recovery = middleware.DevelopmentRecovery(logger)
	}

	mws := []middleware.Middleware{
		recovery,
		middleware.RequestID(),
		observability.TracingMiddleware(tracer),
		middleware.Logging(logger),
	}

	if cfg.Spec.Observability.Metrics.Enabled {
		mws = append(mws, observability.MetricsMiddleware(metrics))
	}

	return mws
}
