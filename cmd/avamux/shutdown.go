package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/avamux/internal/config"
	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/server"
)

// shutdownTimeout bounds the drain of queued and in-flight requests.
const shutdownTimeout = 30 * time.Second

// runApplication starts every component and blocks until a shutdown signal.
func runApplication(app *application, configPath string, logger observability.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	app.scheduler.Start(ctx)

	startServer(app.dispatchServer, logger)
	if app.adminServer != nil {
		startServer(app.adminServer, logger)
	}

	logger.Info("avamux dispatching",
		observability.Int("port", app.config.Spec.Listener.Port),
		observability.Int("backends", app.pool.Len()),
	)

	watcher := startConfigWatcher(ctx, app, configPath, logger)

	waitForShutdown(app, watcher, logger)
}

func startServer(srv *server.Server, logger observability.Logger) {
	go func() {
		if err := srv.Start(context.Background()); err != nil {
			fatalWithSync(logger, "server failed", observability.Error(err))
		}
	}()
}

// waitForShutdown waits for a shutdown signal and performs graceful shutdown.
func waitForShutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	shutdownApplication(shutdownCtx, app, logger)
	logger.Info("avamux stopped")
}

// shutdownApplication stops admitting work first so in-flight handlers
// finish before the listeners close.
func shutdownApplication(ctx context.Context, app *application, logger observability.Logger) {
	if err := app.scheduler.Shutdown(ctx); err != nil {
		logger.Error("scheduler did not drain before the deadline", observability.Error(err))
	}

	if err := app.dispatchServer.Stop(ctx); err != nil {
		logger.Error("failed to stop dispatch server gracefully", observability.Error(err))
	}

	if app.adminServer != nil {
		if err := app.adminServer.Stop(ctx); err != nil {
			logger.Error("failed to stop admin server gracefully", observability.Error(err))
		}
	}

	if app.cancel != nil {
		app.cancel()
	}

	app.transport.Close()

	if app.store != nil {
		if err := app.store.Close(); err != nil {
			logger.Error("failed to close stats store", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}
}
