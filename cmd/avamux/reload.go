package main

import (
	"context"
	"reflect"

	"github.com/vyrodovalexey/avamux/internal/config"
	"github.com/vyrodovalexey/avamux/internal/observability"
)

// startConfigWatcher starts the configuration watcher. A watcher that
// cannot be created only disables hot reload.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		logger.Info("configuration changed, reloading")
		reloadComponents(app, newCfg, logger)
	},
		config.WithLogger(logger),
		config.WithErrorCallback(func(error) {
			app.metrics.RecordReload(false)
		}),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}

	return watcher
}

// reloadComponents applies the hot-reloadable part of newCfg.
//
// NOTE: backend addresses, listener settings, the stats store and tracing
// are NOT reloaded. Slots live for the process lifetime, so a changed
// address list only produces a warning.
func reloadComponents(app *application, newCfg *config.Config, logger observability.Logger) {
	if backendsChanged(app.config, newCfg) {
		logger.Warn("backend addresses changed but are NOT hot-reloaded; restart to apply",
			observability.Strings("current", app.config.Spec.Backends.Addresses),
			observability.Strings("configured", newCfg.Spec.Backends.Addresses),
		)
	}
	if staticSectionsChanged(app.config, newCfg) {
		logger.Warn("listener, stats, cors or tracing settings changed; restart to apply")
	}

	app.scheduler.Configure(schedulerSettings(newCfg))
	app.handler.SetUsePriority(newCfg.Spec.Dispatch.UsePriority())

	// Keep the running sections so later comparisons stay against what
	// is actually in effect.
	merged := *app.config
	merged.Spec.Backends.MaxRequestsPerBackend = newCfg.Spec.Backends.MaxRequestsPerBackend
	merged.Spec.Backends.Randomize = newCfg.Spec.Backends.Randomize
	merged.Spec.Dispatch = newCfg.Spec.Dispatch
	app.config = &merged

	app.metrics.RecordReload(true)
	logger.Info("configuration reloaded",
		observability.Int("max_requests_per_backend", newCfg.Spec.Backends.MaxRequestsPerBackend),
		observability.Bool("randomize", newCfg.Spec.Backends.Randomize),
		observability.Int("request_debounce_ms", newCfg.Spec.Dispatch.RequestDebounceMs),
		observability.Bool("use_priority_header", newCfg.Spec.Dispatch.UsePriority()),
	)
}

// backendsChanged reports whether the slot list would differ.
func backendsChanged(oldCfg, newCfg *config.Config) bool {
	if oldCfg == nil || newCfg == nil {
		return oldCfg != newCfg
	}
	return !reflect.DeepEqual(oldCfg.Spec.Backends.Addresses, newCfg.Spec.Backends.Addresses)
}

func staticSectionsChanged(oldCfg, newCfg *config.Config) bool {
	o, n := oldCfg.Spec, newCfg.Spec
	return !reflect.DeepEqual(o.Listener, n.Listener) ||
		!reflect.DeepEqual(o.Stats, n.Stats) ||
		!reflect.DeepEqual(o.CORS, n.CORS) ||
		!reflect.DeepEqual(o.Observability.Tracing, n.Observability.Tracing) ||
		o.Backends.UseTLS != n.Backends.UseTLS ||
		o.Backends.Timeout != n.Backends.Timeout ||
		o.Backends.InsecureSkipVerify != n.Backends.InsecureSkipVerify
}
