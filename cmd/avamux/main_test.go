package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avamux/internal/config"
	"github.com/vyrodovalexey/avamux/internal/health"
	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/stats"
)

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("AVAMUX_TEST_VALUE", "set")

	assert.Equal(t, "set", getEnvOrDefault("AVAMUX_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", getEnvOrDefault("AVAMUX_TEST_MISSING", "fallback"))
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a", firstNonEmpty("", "a", "b"))
	assert.Equal(t, "", firstNonEmpty("", ""))
	assert.Equal(t, "", firstNonEmpty())
}

func TestSchedulerSettings(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Spec.Backends.MaxRequestsPerBackend = 4
	cfg.Spec.Backends.Randomize = true
	cfg.Spec.Dispatch.RequestDebounceMs = 250
	cfg.Spec.Dispatch.BundleTTL = config.Duration(time.Minute)

	s := schedulerSettings(cfg)

	assert.Equal(t, int64(4), s.MaxPerBackend)
	assert.True(t, s.Randomize)
	assert.Equal(t, 250*time.Millisecond, s.Debounce)
	assert.Equal(t, time.Minute, s.BundleTTL)
}

func TestCORSConfig(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"*"}, corsConfig(nil).AllowOrigins)

	c := corsConfig(&config.CORSConfig{
		AllowOrigins:     []string{"https://a.example"},
		AllowMethods:     []string{http.MethodGet},
		AllowCredentials: true,
		MaxAge:           60,
	})
	assert.Equal(t, []string{"https://a.example"}, c.AllowOrigins)
	assert.Equal(t, []string{http.MethodGet}, c.AllowMethods)
	assert.True(t, c.AllowCredentials)
	assert.Equal(t, 60, c.MaxAge)
}

func TestBackendsChanged(t *testing.T) {
	t.Parallel()

	base := config.DefaultConfig()
	base.Spec.Backends.Addresses = []string{"a:1", "b:2"}

	same := config.DefaultConfig()
	same.Spec.Backends.Addresses = []string{"a:1", "b:2"}

	reordered := config.DefaultConfig()
	reordered.Spec.Backends.Addresses = []string{"b:2", "a:1"}

	assert.False(t, backendsChanged(base, same))
	assert.True(t, backendsChanged(base, reordered))
	assert.True(t, backendsChanged(base, nil))
	assert.False(t, backendsChanged(nil, nil))
}

func TestInitStatsStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		store, err := initStatsStore(ctx, config.StatsConfig{Store: config.StatsStoreRedis})
		require.NoError(t, err)
		assert.Nil(t, store)
	})

	t.Run("memory", func(t *testing.T) {
		t.Parallel()

		store, err := initStatsStore(ctx, config.StatsConfig{Enabled: true, Store: config.StatsStoreMemory})
		require.NoError(t, err)
		assert.IsType(t, &stats.MemoryStore{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		store, err := initStatsStore(ctx, config.StatsConfig{
			Enabled: true,
			Store:   config.StatsStoreRedis,
			Redis:   config.RedisConfig{Address: mr.Addr()},
			Prefix:  "test:stats",
			TTL:     config.Duration(time.Hour),
			Bucket:  config.StatsBucketNone,
		})
		require.NoError(t, err)
		defer store.Close()

		pinger, ok := store.(health.Pinger)
		require.True(t, ok)
		assert.NoError(t, pinger.Ping(ctx))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		_, err = initStatsStore(ctx, config.StatsConfig{
			Enabled: true,
			Store:   config.StatsStoreRedis,
			Redis:   config.RedisConfig{Address: addr},
		})
		assert.Error(t, err)
	})
}

func testConfig(addrs ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Spec.Listener.Address = "127.0.0.1"
	cfg.Spec.Listener.Port = 0
	cfg.Spec.Backends.Addresses = addrs
	cfg.Spec.Stats.Enabled = true
	return cfg
}

func reloadCount(t *testing.T, m *observability.Metrics, result string) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	return counterValue(families, "config_reloads_total", "result", result)
}

func counterValue(families []*dto.MetricFamily, suffix, labelName, labelValue string) float64 {
	for _, f := range families {
		if !strings.HasSuffix(f.GetName(), suffix) {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == labelName && label.GetValue() == labelValue {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestApplication_Lifecycle(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pong "+r.URL.Path)
	}))
	defer upstream.Close()

	cfg := testConfig(strings.TrimPrefix(upstream.URL, "http://"))
	app, err := initApplication(cfg, observability.NopLogger())
	require.NoError(t, err)
	assert.Nil(t, app.adminServer)

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.scheduler.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- app.dispatchServer.Start(context.Background()) }()
	require.Eventually(t, func() bool { return app.dispatchServer.Addr() != nil },
		2*time.Second, 5*time.Millisecond)

	base := "http://" + app.dispatchServer.Addr().String()

	resp, err := http.Get(base + "/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong /ping", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	require.Eventually(t, func() bool {
		summary, err := app.store.Summary(context.Background())
		return err == nil && summary.Requests == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Hot reload.
	disabled := false
	next := testConfig(cfg.Spec.Backends.Addresses...)
	next.Spec.Backends.MaxRequestsPerBackend = 3
	next.Spec.Dispatch.UsePriorityHeader = &disabled
	reloadComponents(app, next, observability.NopLogger())

	assert.Equal(t, int64(3), app.scheduler.Settings().MaxPerBackend)
	assert.False(t, app.handler.UsePriority())
	assert.Equal(t, 3, app.config.Spec.Backends.MaxRequestsPerBackend)
	assert.Equal(t, float64(1), reloadCount(t, app.metrics, "success"))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	shutdownApplication(shutdownCtx, app, observability.NopLogger())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch server did not stop")
	}
	assert.True(t, app.scheduler.Stats().Closed)
}

func TestApplication_AdminServer(t *testing.T) {
	t.Parallel()

	cfg := testConfig("127.0.0.1:1")
	cfg.Spec.Observability.Metrics.Enabled = true
	cfg.Spec.Observability.Metrics.Port = 0

	app, err := initApplication(cfg, observability.NopLogger())
	require.NoError(t, err)
	require.NotNil(t, app.adminServer)

	engine := app.adminServer.Engine()

	for _, path := range []string{"/metrics", "/stats", "/healthz", "/readyz"} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	shutdownApplication(context.Background(), app, observability.NopLogger())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLoadAndValidateConfig_Invalid(t *testing.T) {
	var exitCode int
	exitFunc = func(code int) { exitCode = code }
	t.Cleanup(func() { exitFunc = os.Exit })

	cfg := loadAndValidateConfig("testdata/does-not-exist.yaml", observability.NopLogger())

	assert.Nil(t, cfg)
	assert.Equal(t, 1, exitCode)
}

func TestExampleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.NewLoader().Load("../../configs/avamux.yaml")
	require.NoError(t, err)
	require.NoError(t, config.ValidateConfig(cfg))

	assert.Equal(t, 3000, cfg.Spec.Listener.Port)
	assert.Equal(t, []string{"127.0.0.1:8081", "127.0.0.1:8082"}, cfg.Spec.Backends.Addresses)
	assert.True(t, cfg.Spec.Dispatch.UsePriority())
	assert.Equal(t, config.StatsStoreMemory, cfg.Spec.Stats.Store)
}
