package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLogConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  LogConfig
		wantErr bool
	}{
		{name: "default config", config: DefaultLogConfig()},
		{name: "console format", config: LogConfig{Level: "debug", Format: "console", Output: "stdout"}},
		{name: "stderr output", config: LogConfig{Level: "warn", Format: "json", Output: "stderr"}},
		{name: "empty level means info", config: LogConfig{}},
		{name: "invalid level", config: LogConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.NotNil(t, logger.Zap())
		})
	}
}

func TestLogger_WithContext(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLoggerFromZap(zap.New(core))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithTraceID(ctx, "trace-1")

	logger.WithContext(ctx).Info("dispatched", String("backend", "b1"))
	logger.WithContext(context.Background()).Debug("plain")

	entries := logs.All()
	require.Len(t, entries, 2)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "b1", fields["backend"])

	assert.Empty(t, entries[1].ContextMap())
}

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, TraceIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "abc")
	assert.Equal(t, "abc", RequestIDFromContext(ctx))
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	logger.Info("ignored")
	logger.With(Int("n", 1)).Warn("ignored")
	assert.NoError(t, logger.Sync())
}
