package observability

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{ServiceName: "avamux"})
	require.NoError(t, err)

	_, span := tracer.StartSpan(context.Background(), "noop")
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sdktrace.AlwaysSample().Description(), createSampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), createSampler(0).Description())
	assert.Contains(t, createSampler(0.5).Description(), "TraceIDRatioBased")
}

func TestTracer_RecordsSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := NewTracerFromProvider(tp, "test")
	_, span := tracer.StartSpan(context.Background(), "dispatch")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "dispatch", spans[0].Name)
}

func TestNopTracer(t *testing.T) {
	t.Parallel()

	_, span := NopTracer().StartSpan(context.Background(), "x")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInjectExtractTraceContext(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "outbound")
	defer span.End()

	prop := propagation.TraceContext{}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)
	prop.Inject(ctx, propagation.HeaderCarrier(req.Header))

	assert.NotEmpty(t, req.Header.Get("traceparent"))
	InjectTraceContext(ctx, req)
	_ = ExtractTraceContext(context.Background(), req.Header)
}
