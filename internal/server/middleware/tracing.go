package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/proxy"
)

// SpanKey is the gin context key for the request span.
const SpanKey = "otel-span"

// Tracing returns a middleware that opens a server span per request and
// continues any inbound trace context.
func Tracing(tracer *observability.Tracer) gin.HandlerFunc {
	if tracer == nil {
		tracer = observability.NopTracer()
	}

	return func(c *gin.Context) {
		ctx := observability.ExtractTraceContext(c.Request.Context(), c.Request.Header)

		path := c.Request.URL.Path
		ctx, span := tracer.StartSpan(ctx, fmt.Sprintf("%s %s", c.Request.Method, path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("url.path", path),
				attribute.String("server.address", c.Request.Host),
				attribute.String("client.address", c.ClientIP()),
				attribute.String("user_agent.original", c.Request.UserAgent()),
			),
		)
		defer span.End()

		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}
		if id := c.GetHeader(proxy.HeaderBundleID); id != "" {
			span.SetAttributes(attribute.String("avamux.bundle.id", id))
		}
		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = observability.ContextWithTraceID(ctx, sc.TraceID().String())
		}

		c.Set(SpanKey, span)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.Int("http.response.status_code", status),
			attribute.Int("http.response.body.size", c.Writer.Size()),
		)
		if len(c.Errors) > 0 {
			span.RecordError(fmt.Errorf("%s", c.Errors.String()))
		}
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}
	}
}

// GetSpan returns the request span from the context.
func GetSpan(c *gin.Context) trace.Span {
	if span, exists := c.Get(SpanKey); exists {
		if s, ok := span.(trace.Span); ok {
			return s
		}
	}
	return nil
}
