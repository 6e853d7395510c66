package main

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/avamux/internal/backend"
	"github.com/vyrodovalexey/avamux/internal/config"
	"github.com/vyrodovalexey/avamux/internal/health"
	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/proxy"
	"github.com/vyrodovalexey/avamux/internal/scheduler"
	"github.com/vyrodovalexey/avamux/internal/server"
	"github.com/vyrodovalexey/avamux/internal/server/middleware"
	"github.com/vyrodovalexey/avamux/internal/stats"
)

// application holds all application components.
type application struct {
	config    *config.Config
	pool      *backend.Pool
	transport *backend.Transport
	scheduler *scheduler.Scheduler
	handler   *proxy.Handler
	store     stats.Store
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	health    *health.Handler

	dispatchServer *server.Server
	adminServer    *server.Server

	// cancel stops the bundle eviction loop.
	cancel context.CancelFunc
}

// initApplication wires every component from cfg. Nothing is started.
func initApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics("avamux")
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracer, err := initTracer(cfg)
	if err != nil {
		return nil, err
	}

	store, err := initStatsStore(context.Background(), cfg.Spec.Stats)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, err
	}

	pool := backend.NewPool(cfg.Spec.Backends.Addresses)

	transportCfg := backend.DefaultTransportConfig()
	transportCfg.InsecureSkipVerify = cfg.Spec.Backends.InsecureSkipVerify
	transport := backend.NewTransport(transportCfg)

	forwarder := proxy.NewHTTPForwarder(transport.Client(),
		proxy.WithTimeout(cfg.Spec.Backends.Timeout.Duration()),
		proxy.WithForwarderTracer(tracer),
	)

	executorOpts := []proxy.ExecutorOption{
		proxy.WithTLS(cfg.Spec.Backends.UseTLS),
		proxy.WithExecutorMetrics(metrics),
		proxy.WithExecutorLogger(logger),
	}
	if store != nil {
		executorOpts = append(executorOpts, proxy.WithStatsRecorder(store))
	}
	executor := proxy.NewExecutor(forwarder, executorOpts...)

	sched := scheduler.New(pool, executor, schedulerSettings(cfg),
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(metrics),
		scheduler.WithTracer(tracer),
	)

	handler := proxy.NewHandler(sched,
		proxy.WithHandlerLogger(logger),
		proxy.WithUsePriority(cfg.Spec.Dispatch.UsePriority()),
	)

	healthHandler := health.NewHandler(logger, health.WithVersion(version))
	healthHandler.AddCheck(health.SchedulerCheck(sched))
	if pinger, ok := store.(health.Pinger); ok {
		healthHandler.AddCheck(health.PingCheck("redis", pinger))
	}

	app := &application{
		config:    cfg,
		pool:      pool,
		transport: transport,
		scheduler: sched,
		handler:   handler,
		store:     store,
		metrics:   metrics,
		tracer:    tracer,
		health:    healthHandler,
	}

	app.dispatchServer = server.New(listenerConfig(cfg.Spec.Listener),
		buildDispatchEngine(app, logger),
		server.WithName("dispatch"),
		server.WithLogger(logger),
	)

	if cfg.Spec.Observability.Metrics.Enabled {
		app.adminServer = server.New(
			&server.Config{
				Address:           cfg.Spec.Listener.Address,
				Port:              cfg.Spec.Observability.Metrics.Port,
				ReadHeaderTimeout: cfg.Spec.Listener.ReadHeaderTimeout.Duration(),
				IdleTimeout:       cfg.Spec.Listener.IdleTimeout.Duration(),
			},
			buildAdminEngine(app, logger),
			server.WithName("admin"),
			server.WithLogger(logger),
		)
	}

	return app, nil
}

// initTracer initializes the tracer.
func initTracer(cfg *config.Config) (*observability.Tracer, error) {
	t := cfg.Spec.Observability.Tracing
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  t.ServiceName,
		OTLPEndpoint: t.OTLPEndpoint,
		SamplingRate: t.SamplingRate,
		Enabled:      t.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	return tracer, nil
}

// initStatsStore returns nil when statistics are disabled.
func initStatsStore(ctx context.Context, cfg config.StatsConfig) (stats.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if cfg.Store != config.StatsStoreRedis {
		return stats.NewMemoryStore(stats.WithMemoryTrackPaths(cfg.TrackPaths)), nil
	}

	rdb, err := stats.DialRedis(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect stats store: %w", err)
	}

	return stats.NewRedisStore(rdb,
		stats.WithPrefix(cfg.Prefix),
		stats.WithTTL(cfg.TTL.Duration()),
		stats.WithBucket(cfg.Bucket),
		stats.WithTrackPaths(cfg.TrackPaths),
	), nil
}

// schedulerSettings extracts the hot-reloadable scheduler settings.
func schedulerSettings(cfg *config.Config) scheduler.Settings {
	return scheduler.Settings{
		MaxPerBackend: int64(cfg.Spec.Backends.MaxRequestsPerBackend),
		Randomize:     cfg.Spec.Backends.Randomize,
		Debounce:      cfg.Spec.Dispatch.Debounce(),
		BundleTTL:     cfg.Spec.Dispatch.BundleTTL.Duration(),
	}
}

func listenerConfig(l config.ListenerConfig) *server.Config {
	return &server.Config{
		Address:            l.Address,
		Port:               l.Port,
		ReadHeaderTimeout:  l.ReadHeaderTimeout.Duration(),
		IdleTimeout:        l.IdleTimeout.Duration(),
		MaxRequestBodySize: l.MaxRequestBodySize,
	}
}

func corsConfig(c *config.CORSConfig) middleware.CORSConfig {
	if c == nil {
		return middleware.DefaultCORSConfig()
	}
	return middleware.CORSConfig{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge,
	}
}
