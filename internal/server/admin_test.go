package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avamux/internal/backend"
	"github.com/vyrodovalexey/avamux/internal/health"
	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/scheduler"
	"github.com/vyrodovalexey/avamux/internal/stats"
)

type fixedStats struct {
	stats scheduler.Stats
}

func (f fixedStats) Stats() scheduler.Stats { return f.stats }

type failingSummarizer struct{}

func (failingSummarizer) Summary(context.Context) (stats.Summary, error) {
	return stats.Summary{}, errors.New("redis down")
}

func TestAdminEngine_Metrics(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("admintest")
	metrics.SetQueueDepth(3)

	engine := AdminEngine(AdminConfig{MetricsPath: "/metrics", Metrics: metrics.Handler()})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admintest_scheduler_queue_depth 3")
}

func TestAdminEngine_Stats(t *testing.T) {
	t.Parallel()

	store := stats.NewMemoryStore()
	require.NoError(t, store.Record(context.Background(), stats.Event{
		Backend: "a:1", Status: 200, Duration: 10 * time.Millisecond,
	}))

	engine := AdminEngine(AdminConfig{
		Scheduler: fixedStats{stats: scheduler.Stats{
			QueueDepth:    2,
			MaxPerBackend: 4,
			Backends:      []backend.SlotStatus{{Index: 0, Address: "a:1", Active: 1}},
		}},
		Summarizer: store,
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, DefaultStatsPath, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Scheduler scheduler.Stats `json:"scheduler"`
		Dispatch  *stats.Summary  `json:"dispatch"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, 2, body.Scheduler.QueueDepth)
	assert.Equal(t, int64(4), body.Scheduler.MaxPerBackend)
	require.Len(t, body.Scheduler.Backends, 1)
	assert.Equal(t, "a:1", body.Scheduler.Backends[0].Address)
	require.NotNil(t, body.Dispatch)
	assert.Equal(t, int64(1), body.Dispatch.Requests)
	assert.Equal(t, int64(1), body.Dispatch.ByBackend["a:1"]["2xx"])
}

func TestAdminEngine_StatsWithoutStore(t *testing.T) {
	t.Parallel()

	engine := AdminEngine(AdminConfig{Scheduler: fixedStats{}})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, DefaultStatsPath, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"dispatch"`)
}

func TestAdminEngine_StatsStoreFailure(t *testing.T) {
	t.Parallel()

	engine := AdminEngine(AdminConfig{Scheduler: fixedStats{}, Summarizer: failingSummarizer{}})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, DefaultStatsPath, nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminEngine_Health(t *testing.T) {
	t.Parallel()

	h := health.NewHandler(nil)
	h.AddCheck(health.SchedulerCheck(fixedStats{stats: scheduler.Stats{Closed: true}}))
	engine := AdminEngine(AdminConfig{Health: h})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "scheduler"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
