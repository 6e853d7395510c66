package proxy

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/scheduler"
)

// Submitter accepts jobs for scheduling.
type Submitter interface {
	Submit(job scheduler.Job, priority int) error
	SubmitBundleMember(id string, seq *int, size, priority int, job scheduler.Job) error
}

// Handler admits every inbound request to the scheduler and waits for
// its answer.
type Handler struct {
	submitter   Submitter
	usePriority atomic.Bool
	logger      observability.Logger
}

// HandlerOption is a functional option for Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger.
func WithHandlerLogger(logger observability.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithUsePriority sets whether the priority header is honored.
func WithUsePriority(use bool) HandlerOption {
	return func(h *Handler) {
		h.usePriority.Store(use)
	}
}

// NewHandler creates a handler submitting to s. Priorities are honored
// unless disabled.
func NewHandler(s Submitter, opts ...HandlerOption) *Handler {
	h := &Handler{
		submitter: s,
		logger:    observability.NopLogger(),
	}
	h.usePriority.Store(true)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetUsePriority changes whether the priority header is honored.
func (h *Handler) SetUsePriority(use bool) {
	h.usePriority.Store(use)
}

// UsePriority reports whether the priority header is honored.
func (h *Handler) UsePriority() bool {
	return h.usePriority.Load()
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	info := ParseDispatchHeaders(r.Header, h.usePriority.Load())
	ex := newExchange(w, r, info)

	var err error
	if info.InBundle() {
		err = h.submitter.SubmitBundleMember(info.BundleID, info.BundleOrder, info.BundleSize, info.Priority, ex)
	} else {
		err = h.submitter.Submit(ex, info.Priority)
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Warn("request rejected",
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
		ex.Abandon(err)
		return
	}

	select {
	case <-ex.done:
	case <-r.Context().Done():
		// Claim the exchange so a later dispatch does not touch w.
		ex.answer(func() {})
	}
}

// exchange is one inbound request travelling through the scheduler. It
// is answered exactly once, either by the executor or by Abandon.
type exchange struct {
	w    http.ResponseWriter
	r    *http.Request
	info DispatchInfo

	once   sync.Once
	done   chan struct{}
	status int
}

func newExchange(w http.ResponseWriter, r *http.Request, info DispatchInfo) *exchange {
	return &exchange{
		w:    w,
		r:    r,
		info: info,
		done: make(chan struct{}),
	}
}

// Context implements scheduler.Job.
func (e *exchange) Context() context.Context {
	return e.r.Context()
}

// Abandon implements scheduler.Job.
func (e *exchange) Abandon(err error) {
	e.answer(func() {
		e.status = ClassifyError(err)
		WriteError(e.w, e.r.Header.Get("Accept"), e.status)
	})
}

// answer runs fn unless the exchange was already answered and reports
// whether fn ran.
func (e *exchange) answer(fn func()) bool {
	ran := false
	e.once.Do(func() {
		defer close(e.done)
		fn()
		ran = true
	})
	return ran
}

func (e *exchange) kind() string {
	if e.info.InBundle() {
		return scheduler.KindBundle.String()
	}
	return scheduler.KindSingle.String()
}
