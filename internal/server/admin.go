package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avamux/internal/health"
	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/scheduler"
	"github.com/vyrodovalexey/avamux/internal/stats"
)

// DefaultStatsPath is where the admin engine reports dispatch statistics.
const DefaultStatsPath = "/stats"

// SchedulerStats reports scheduler state.
type SchedulerStats interface {
	Stats() scheduler.Stats
}

// AdminConfig wires the admin engine.
type AdminConfig struct {
	// MetricsPath serves Metrics when both are set.
	MetricsPath string
	Metrics     http.Handler
	// Scheduler and Summarizer feed the statistics endpoint. A nil
	// Summarizer omits the dispatch totals.
	Scheduler  SchedulerStats
	Summarizer stats.Summarizer
	Health     *health.Handler
	Logger     observability.Logger
}

// statsResponse is the body of the statistics endpoint.
type statsResponse struct {
	Scheduler scheduler.Stats `json:"scheduler"`
	Dispatch  *stats.Summary  `json:"dispatch,omitempty"`
}

// AdminEngine builds the engine served on the metrics port.
func AdminEngine(cfg AdminConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	engine := NewEngine()
	engine.Use(gin.Recovery())

	if cfg.MetricsPath != "" && cfg.Metrics != nil {
		engine.GET(cfg.MetricsPath, gin.WrapH(cfg.Metrics))
	}

	if cfg.Scheduler != nil {
		engine.GET(DefaultStatsPath, func(c *gin.Context) {
			resp := statsResponse{Scheduler: cfg.Scheduler.Stats()}
			if cfg.Summarizer != nil {
				summary, err := cfg.Summarizer.Summary(c.Request.Context())
				if err != nil {
					logger.Warn("failed to read dispatch statistics", observability.Error(err))
					c.JSON(http.StatusServiceUnavailable, gin.H{
						"error":   true,
						"message": "statistics store unavailable",
					})
					return
				}
				resp.Dispatch = &summary
			}
			c.JSON(http.StatusOK, resp)
		})
	}

	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(engine)
	}

	return engine
}
