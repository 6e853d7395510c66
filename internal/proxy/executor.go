package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avamux/internal/backend"
	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/scheduler"
	"github.com/vyrodovalexey/avamux/internal/stats"
)

// ErrUnsupportedJob is returned for jobs not created by a Handler.
var ErrUnsupportedJob = errors.New("unsupported job type")

// responseSkipHeaders are backend response headers not copied to the caller.
// Content-Encoding is relayed: the backend transport disables
// decompression, so the body is passed through still encoded.
var responseSkipHeaders = map[string]bool{
	"Connection":        true,
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Keep-Alive":        true,
}

// MetricsRecorder receives forward outcomes.
type MetricsRecorder interface {
	RecordForward(backend string, status int)
}

type nopMetrics struct{}

func (nopMetrics) RecordForward(string, int) {}

// Executor relays scheduled exchanges to their backend.
type Executor struct {
	forwarder Forwarder
	useTLS    bool
	recorder  stats.Recorder
	metrics   MetricsRecorder
	logger    observability.Logger
}

// ExecutorOption is a functional option for Executor.
type ExecutorOption func(*Executor)

// WithTLS selects https for backend URLs.
func WithTLS(useTLS bool) ExecutorOption {
	return func(x *Executor) {
		x.useTLS = useTLS
	}
}

// WithStatsRecorder sets the recorder notified after every forward.
func WithStatsRecorder(r stats.Recorder) ExecutorOption {
	return func(x *Executor) {
		if r != nil {
			x.recorder = r
		}
	}
}

// WithExecutorMetrics sets the metrics recorder.
func WithExecutorMetrics(m MetricsRecorder) ExecutorOption {
	return func(x *Executor) {
		if m != nil {
			x.metrics = m
		}
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger observability.Logger) ExecutorOption {
	return func(x *Executor) {
		if logger != nil {
			x.logger = logger
		}
	}
}

// NewExecutor creates an executor forwarding through f.
func NewExecutor(f Forwarder, opts ...ExecutorOption) *Executor {
	x := &Executor{
		forwarder: f,
		recorder:  stats.NopRecorder{},
		metrics:   nopMetrics{},
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

var _ scheduler.Executor = (*Executor)(nil)

// Execute implements scheduler.Executor.
func (x *Executor) Execute(ctx context.Context, slot *backend.Slot, job scheduler.Job) {
	ex, ok := job.(*exchange)
	if !ok {
		job.Abandon(fmt.Errorf("%w: %T", ErrUnsupportedJob, job))
		return
	}

	start := time.Now()
	answered := ex.answer(func() {
		ex.status = x.relay(ctx, slot, ex)
	})
	if !answered {
		// The caller went away while the job was queued.
		return
	}

	x.metrics.RecordForward(slot.Address, ex.status)

	ev := stats.Event{
		Backend:  slot.Address,
		Method:   ex.r.Method,
		Path:     ex.r.URL.Path,
		Status:   ex.status,
		Kind:     ex.kind(),
		Duration: time.Since(start),
		At:       start,
	}
	if err := x.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		x.logger.Debug("failed to record dispatch stats",
			observability.String("backend", slot.Address),
			observability.Error(err),
		)
	}
}

// relay forwards the exchange and writes the answer. It returns the
// status sent to the caller.
func (x *Executor) relay(ctx context.Context, slot *backend.Slot, ex *exchange) int {
	r := ex.r
	logger := x.logger.WithContext(ctx)

	target := slot.URL(x.useTLS) + r.URL.RequestURI()
	logger.Debug("executing request",
		observability.String("backend", slot.Address),
		observability.String("target", target),
	)

	body, contentType, err := TranslateBody(r)
	if err != nil {
		return x.fail(ex, slot, err)
	}

	header := outboundHeader(r.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	setForwardedHeaders(header, r)

	resp, err := x.forwarder.Forward(ctx, r.Method, target, header, body)
	if err != nil {
		return x.fail(ex, slot, err)
	}
	defer resp.Body.Close()

	dst := ex.w.Header()
	for key, values := range resp.Header {
		if responseSkipHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst.Del(key)
		for _, v := range values {
			dst.Add(key, v)
		}
	}
	ex.w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(ex.w, resp.Body); err != nil {
		logger.Warn("response relay interrupted",
			observability.String("backend", slot.Address),
			observability.Int("status", resp.StatusCode),
			observability.Error(err),
		)
	}

	return resp.StatusCode
}

// fail answers the caller with the classified status of err.
func (x *Executor) fail(ex *exchange, slot *backend.Slot, err error) int {
	status := ClassifyError(err)
	x.logger.WithContext(ex.r.Context()).Warn("error processing request",
		observability.String("backend", slot.Address),
		observability.String("method", ex.r.Method),
		observability.String("path", ex.r.URL.Path),
		observability.Int("status", status),
		observability.Error(err),
	)
	WriteError(ex.w, ex.r.Header.Get("Accept"), status)
	return status
}

func setForwardedHeaders(h http.Header, r *http.Request) {
	if clientIP, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		h.Set("X-Forwarded-For", clientIP)
	}

	if r.TLS != nil {
		h.Set("X-Forwarded-Proto", "https")
	} else {
		h.Set("X-Forwarded-Proto", "http")
	}

	if r.Host != "" {
		h.Set("X-Forwarded-Host", r.Host)
	}
}
