package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/server/middleware"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("server already running")

// Config holds configuration for an HTTP server.
type Config struct {
	Address           string
	Port              int
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	// MaxRequestBodySize caps request bodies in bytes. Zero disables the cap.
	MaxRequestBodySize int64
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Port:               3000,
		ReadHeaderTimeout:  10 * time.Second,
		IdleTimeout:        120 * time.Second,
		MaxRequestBodySize: 500 << 20,
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Address, fmt.Sprintf("%d", c.Port))
}

// Server is a gin-backed HTTP server.
type Server struct {
	name       string
	engine     *gin.Engine
	config     *Config
	logger     observability.Logger
	httpServer *http.Server

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// Option is a functional option for Server.
type Option func(*Server)

// WithName sets the name used in log lines.
func WithName(name string) Option {
	return func(s *Server) {
		s.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server around engine.
func New(config *Config, engine *gin.Engine, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Server{
		name:   "http",
		engine: engine,
		config: config,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewEngine returns a gin engine in release mode with no middleware.
func NewEngine() *gin.Engine {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})
	return gin.New()
}

// DispatchEngine builds the dispatch engine: the middlewares run in the
// given order, then every method and path reaches handler.
func DispatchEngine(handler http.Handler, maxBodySize int64, middlewares ...gin.HandlerFunc) *gin.Engine {
	engine := NewEngine()
	engine.Use(middlewares...)
	engine.Use(middleware.BodyLimit(maxBodySize))

	h := gin.WrapH(handler)
	engine.Any("/*path", h)
	engine.NoRoute(h)
	return engine
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start listens on the configured address and serves until Stop. It
// returns nil after a graceful stop.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrAlreadyRunning
	}

	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
	s.listener = ln
	s.running = true
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("server listening",
		observability.String("server", s.name),
		observability.String("address", ln.Addr().String()),
	)

	err := srv.Serve(ln)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server error: %w", s.name, err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	srv, running := s.httpServer, s.running
	s.mu.RUnlock()

	if !running || srv == nil {
		return nil
	}

	s.logger.Info("stopping server", observability.String("server", s.name))
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown %s server: %w", s.name, err)
	}
	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
