package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/util"
)

// Forwarder sends one request to a backend.
type Forwarder interface {
	// Forward returns the backend response. The caller must close the
	// response body.
	Forward(ctx context.Context, method, target string, header http.Header, body io.Reader) (*http.Response, error)
}

// HTTPForwarder forwards requests through an http.Client.
type HTTPForwarder struct {
	client  *http.Client
	timeout time.Duration
	tracer  *observability.Tracer
}

// ForwarderOption is a functional option for HTTPForwarder.
type ForwarderOption func(*HTTPForwarder)

// WithTimeout bounds every forward, including reading the response body.
// Zero means no bound.
func WithTimeout(d time.Duration) ForwarderOption {
	return func(f *HTTPForwarder) {
		f.timeout = d
	}
}

// WithForwarderTracer sets the tracer used for forward spans.
func WithForwarderTracer(t *observability.Tracer) ForwarderOption {
	return func(f *HTTPForwarder) {
		if t != nil {
			f.tracer = t
		}
	}
}

// NewHTTPForwarder creates a forwarder using client.
func NewHTTPForwarder(client *http.Client, opts ...ForwarderOption) *HTTPForwarder {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPForwarder{
		client: client,
		tracer: observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward implements Forwarder.
func (f *HTTPForwarder) Forward(
	ctx context.Context,
	method, target string,
	header http.Header,
	body io.Reader,
) (*http.Response, error) {
	ctx, span := f.tracer.StartSpan(ctx, "proxy.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target),
		),
	)

	cancel := context.CancelFunc(func() {})
	if f.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		cancel()
		f.fail(span, err)
		return nil, NewProxyError("build_request", "", "invalid outbound request", err)
	}
	if header != nil {
		req.Header = header
	}
	observability.InjectTraceContext(ctx, req)

	resp, err := f.client.Do(req)
	if err != nil {
		err = f.wrapTransportError(ctx, req.URL.Host, err)
		cancel()
		f.fail(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: func() {
		cancel()
		span.End()
	}}
	return resp, nil
}

func (f *HTTPForwarder) wrapTransportError(ctx context.Context, host string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewProxyError("forward", host, "backend did not answer in time",
			util.BackendTimeout(host, fmt.Errorf("%w: %w", ErrUpstreamTimeout, err)))
	}
	return NewProxyError("forward", host, "backend unreachable",
		util.BackendUnreachable(host, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)))
}

func (f *HTTPForwarder) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

// releasingBody runs release once when the body is closed.
type releasingBody struct {
	io.ReadCloser
	release func()
	closed  bool
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	if !b.closed {
		b.closed = true
		b.release()
	}
	return err
}
