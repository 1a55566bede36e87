package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/dynproxy/internal/config"
	"github.com/vyrodovalexey/dynproxy/internal/gateway"
	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

// runProxy starts the gateway and blocks until a shutdown signal.
func runProxy(app *application, configPath string, logger observability.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.gateway.Start(ctx); err != nil {
		logger.Fatal("failed to start gateway", observability.Error(err))
		return
	}

	watcher := startConfigWatcher(ctx, app, configPath, logger)

	waitForShutdown(app, watcher, logger)
}

// waitForShutdown waits for SIGINT or SIGTERM and shuts down gracefully.
func waitForShutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdown(app, watcher, logger)
}

// shutdown marks the instance as draining, stops the watcher, drains the
// listeners within the configured timeout and flushes traces.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	app.healthChecker.SetDraining(true)

	timeout := app.config.Spec.Listener.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = gateway.DefaultShutdownTimeout
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("failed to stop config watcher", observability.Error(err))
		}
	}

	if err := app.gateway.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop gateway gracefully", observability.Error(err))
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("dynproxy stopped")
}
