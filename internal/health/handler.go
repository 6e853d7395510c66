package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avamux/internal/observability"
)

// Probe status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// DefaultCheckTimeout bounds one readiness evaluation.
const DefaultCheckTimeout = 5 * time.Second

// HealthCheck is one readiness condition.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthCheck.
type HealthCheckFunc struct {
	name  string
	check func(ctx context.Context) error
}

// NewHealthCheckFunc creates a named check from fn.
func NewHealthCheckFunc(name string, fn func(ctx context.Context) error) *HealthCheckFunc {
	return &HealthCheckFunc{name: name, check: fn}
}

// Name implements HealthCheck.
func (f *HealthCheckFunc) Name() string {
	return f.name
}

// Check implements HealthCheck.
func (f *HealthCheckFunc) Check(ctx context.Context) error {
	return f.check(ctx)
}

// HealthStatus is the body of the readiness and health endpoints.
type HealthStatus struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Uptime    string                  `json:"uptime,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Handler serves the probe endpoints.
type Handler struct {
	logger    observability.Logger
	version   string
	timeout   time.Duration
	startTime time.Time

	mu     sync.RWMutex
	checks []HealthCheck
}

// Option is a functional option for Handler.
type Option func(*Handler)

// WithVersion sets the version reported by the health endpoint.
func WithVersion(version string) Option {
	return func(h *Handler) {
		h.version = version
	}
}

// WithCheckTimeout bounds one readiness evaluation.
func WithCheckTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHandler creates a probe handler.
func NewHandler(logger observability.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	h := &Handler{
		logger:    logger,
		timeout:   DefaultCheckTimeout,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddCheck registers a readiness check.
func (h *Handler) AddCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// RemoveCheck removes the check called name.
func (h *Handler) RemoveCheck(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, check := range h.checks {
		if check.Name() == name {
			h.checks = append(h.checks[:i], h.checks[i+1:]...)
			return
		}
	}
}

// LivenessHandler answers 200 while the process runs.
func (h *Handler) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    StatusOK,
			"timestamp": time.Now().UTC(),
		})
	}
}

// ReadinessHandler answers 503 when any check fails.
func (h *Handler) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := h.Run(c.Request.Context())
		c.JSON(statusCode(status), status)
	}
}

// HealthHandler is ReadinessHandler plus version and uptime.
func (h *Handler) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := h.Run(c.Request.Context())
		status.Version = h.version
		status.Uptime = time.Since(h.startTime).Round(time.Second).String()
		c.JSON(statusCode(status), status)
	}
}

// RegisterRoutes registers the probe routes on engine.
func (h *Handler) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/health", h.HealthHandler())
	engine.GET("/healthz", h.LivenessHandler())
	engine.GET("/livez", h.LivenessHandler())
	engine.GET("/readyz", h.ReadinessHandler())
	engine.GET("/ready", h.ReadinessHandler())
}

// Run evaluates every check concurrently.
func (h *Handler) Run(ctx context.Context) *HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := &HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]*CheckResult, len(checks)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range checks {
		wg.Add(1)
		go func(hc HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := hc.Check(ctx)
			result := &CheckResult{
				Status:   StatusOK,
				Duration: time.Since(start).String(),
			}

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				result.Status = StatusError
				result.Error = err.Error()
				status.Status = StatusError
				h.logger.Warn("health check failed",
					observability.String("check", hc.Name()),
					observability.Error(err),
				)
			}
			status.Checks[hc.Name()] = result
		}(check)
	}
	wg.Wait()

	return status
}

func statusCode(status *HealthStatus) int {
	if status.Status != StatusOK {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
