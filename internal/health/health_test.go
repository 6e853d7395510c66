package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avamux/internal/backend"
	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/scheduler"
	"github.com/vyrodovalexey/avamux/internal/stats"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSource struct {
	stats scheduler.Stats
}

func (f *fakeSource) Stats() scheduler.Stats { return f.stats }

func newEngine(h *Handler) *gin.Engine {
	engine := gin.New()
	h.RegisterRoutes(engine)
	return engine
}

func get(t *testing.T, engine *gin.Engine, path string) (int, HealthStatus) {
	t.Helper()
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestSchedulerCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		stats     scheduler.Stats
		expectErr error
	}{
		{
			name:  "ready",
			stats: scheduler.Stats{Backends: []backend.SlotStatus{{Index: 0, Address: "a:1"}}},
		},
		{
			name:      "closed",
			stats:     scheduler.Stats{Closed: true, Backends: []backend.SlotStatus{{Address: "a:1"}}},
			expectErr: ErrSchedulerClosed,
		},
		{
			name:      "no backends",
			stats:     scheduler.Stats{},
			expectErr: ErrNoBackends,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			check := SchedulerCheck(&fakeSource{stats: tt.stats})
			assert.Equal(t, "scheduler", check.Name())

			err := check.Check(context.Background())
			if tt.expectErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.expectErr)
			}
		})
	}
}

func TestSchedulerCheck_RealScheduler(t *testing.T) {
	t.Parallel()

	sched := scheduler.New(backend.NewPool([]string{"127.0.0.1:1"}),
		scheduler.ExecutorFunc(func(context.Context, *backend.Slot, scheduler.Job) {}),
		scheduler.Settings{MaxPerBackend: 1})
	check := SchedulerCheck(sched)

	require.NoError(t, check.Check(context.Background()))

	require.NoError(t, sched.Shutdown(context.Background()))
	assert.ErrorIs(t, check.Check(context.Background()), ErrSchedulerClosed)
}

func TestPingCheck_Redis(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	check := PingCheck("stats_store", stats.NewRedisStore(rdb))
	require.NoError(t, check.Check(context.Background()))

	mr.Close()
	err = check.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stats_store unreachable")
}

func TestHandler_Probes(t *testing.T) {
	t.Parallel()

	h := NewHandler(observability.NopLogger(), WithVersion("1.2.3"), WithCheckTimeout(time.Second))
	h.AddCheck(NewHealthCheckFunc("always", func(context.Context) error { return nil }))
	engine := newEngine(h)

	code, body := get(t, engine, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusOK, body.Status)
	require.Contains(t, body.Checks, "always")
	assert.Equal(t, StatusOK, body.Checks["always"].Status)

	code, body = get(t, engine, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.2.3", body.Version)
	assert.NotEmpty(t, body.Uptime)

	code, body = get(t, engine, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusOK, body.Status)
}

func TestHandler_FailingCheck(t *testing.T) {
	t.Parallel()

	h := NewHandler(nil)
	h.AddCheck(NewHealthCheckFunc("ok", func(context.Context) error { return nil }))
	h.AddCheck(NewHealthCheckFunc("broken", func(context.Context) error { return errors.New("down") }))
	engine := newEngine(h)

	code, body := get(t, engine, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusError, body.Status)
	assert.Equal(t, "down", body.Checks["broken"].Error)
	assert.Equal(t, StatusOK, body.Checks["ok"].Status)

	h.RemoveCheck("broken")
	code, _ = get(t, engine, "/ready")
	assert.Equal(t, http.StatusOK, code)

	// Liveness ignores checks.
	code, _ = get(t, engine, "/livez")
	assert.Equal(t, http.StatusOK, code)
}
