package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, int64(500<<20), cfg.MaxRequestBodySize)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.NotSame(t, cfg, DefaultConfig())

	cfg.Address = "127.0.0.1"
	assert.Equal(t, "127.0.0.1:3000", cfg.Addr())
}

type recordingHandler struct {
	mu      sync.Mutex
	methods []string
	paths   []string
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.methods = append(h.methods, r.Method)
	h.paths = append(h.paths, r.URL.RequestURI())
	h.mu.Unlock()

	_, _ = io.Copy(io.Discard, r.Body)
	w.WriteHeader(http.StatusAccepted)
}

func TestDispatchEngine_CatchAll(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{}
	engine := DispatchEngine(h, 0)

	tests := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/"},
		{http.MethodPost, "/api/v1/jobs"},
		{http.MethodPut, "/deep/nested/path?x=1&y=2"},
		{http.MethodOptions, "/anything"},
		{http.MethodDelete, "/items/7"},
		{http.MethodPatch, "/items/7/"},
		{"PROPFIND", "/dav"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.target, nil))
		assert.Equal(t, http.StatusAccepted, w.Code, "%s %s", tt.method, tt.target)
	}

	require.Len(t, h.methods, len(tests))
	for i, tt := range tests {
		assert.Equal(t, tt.method, h.methods[i])
		assert.Equal(t, tt.target, h.paths[i])
	}
}

func TestDispatchEngine_MiddlewareOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			order = append(order, name)
			c.Next()
		}
	}

	engine := DispatchEngine(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), 0, mark("first"), mark("second"))

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestDispatchEngine_BodyLimit(t *testing.T) {
	t.Parallel()

	h := &recordingHandler{}
	engine := DispatchEngine(h, 4)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too large")))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, h.methods)
}

func TestServer_StartStop(t *testing.T) {
	t.Parallel()

	engine := DispatchEngine(&recordingHandler{}, 0)
	srv := New(&Config{Address: "127.0.0.1", Port: 0}, engine, WithName("dispatch"))
	assert.Same(t, engine, srv.Engine())
	assert.Nil(t, srv.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(context.Background())
	}()

	require.Eventually(t, func() bool { return srv.IsRunning() && srv.Addr() != nil },
		2*time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr().String() + "/ping")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.IsRunning())
}

func TestServer_ServeTwice(t *testing.T) {
	t.Parallel()

	srv := New(nil, DispatchEngine(&recordingHandler{}, 0))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	require.Eventually(t, srv.IsRunning, 2*time.Second, 5*time.Millisecond)

	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Serve(ln2), ErrAlreadyRunning)

	require.NoError(t, srv.Stop(context.Background()))
}

func TestServer_StopWhenNotRunning(t *testing.T) {
	t.Parallel()

	srv := New(nil, NewEngine())
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServer_StartInvalidAddress(t *testing.T) {
	t.Parallel()

	srv := New(&Config{Address: "256.0.0.1", Port: 1}, NewEngine())
	assert.Error(t, srv.Start(context.Background()))
}
