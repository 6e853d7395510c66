package main

import (
	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/server"
	"github.com/vyrodovalexey/avamux/internal/server/middleware"
)

// buildDispatchEngine builds the inbound engine. Recovery is outermost so
// a panic anywhere below it still gets an error response.
func buildDispatchEngine(app *application, logger observability.Logger) *gin.Engine {
	cfg := app.config

	return server.DispatchEngine(app.handler, cfg.Spec.Listener.MaxRequestBodySize,
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.Tracing(app.tracer),
		middleware.Metrics(app.metrics),
		middleware.CORSWithConfig(corsConfig(cfg.Spec.CORS)),
	)
}

// buildAdminEngine builds the engine served on the metrics port.
func buildAdminEngine(app *application, logger observability.Logger) *gin.Engine {
	return server.AdminEngine(server.AdminConfig{
		MetricsPath: app.config.Spec.Observability.Metrics.Path,
		Metrics:     app.metrics.Handler(),
		Scheduler:   app.scheduler,
		Summarizer:  app.store,
		Health:      app.health,
		Logger:      logger,
	})
}
