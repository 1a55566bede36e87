package main

import (
	"context"

	"github.com/vyrodovalexey/dynproxy/internal/config"
	"github.com/vyrodovalexey/dynproxy/internal/observability"
)

// startConfigWatcher starts the configuration watcher when spec.watch is
// set. Watcher failures are logged; the proxy keeps serving the loaded
// configuration.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	if !app.config.Spec.Watch {
		return nil
	}

	watcher, err := config.NewWatcher(configPath, func(newCfg *config.ProxyConfig) {
		applyReload(app, newCfg, logger)
	},
		config.WithLogger(logger),
		config.WithErrorCallback(func(_ error) {
			app.metrics.RecordConfigReload(observability.ReloadFailure)
		}),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		_ = watcher.Stop()
		return nil
	}

	return watcher
}

// applyReload swaps the gateway onto newCfg and records the outcome.
func applyReload(app *application, newCfg *config.ProxyConfig, logger observability.Logger) {
	logger.Info("configuration changed, reloading")

	if err := app.gateway.Reload(newCfg); err != nil {
		app.metrics.RecordConfigReload(observability.ReloadFailure)
		logger.Error("failed to reload configuration", observability.Error(err))
		return
	}

	app.metrics.RecordConfigReload(observability.ReloadSuccess)
}
