package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avamux/internal/util"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "avamux.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfigYAML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Metadata.Name)
	assert.Equal(t, 3100, cfg.Spec.Listener.Port)
	assert.Equal(t, []string{"localhost:8081", "localhost:8082"}, cfg.Spec.Backends.Addresses)
	assert.Equal(t, 2, cfg.Spec.Backends.MaxRequestsPerBackend)
	assert.Equal(t, 25*time.Millisecond, cfg.Spec.Dispatch.Debounce())
	assert.True(t, cfg.Spec.Dispatch.UsePriority())
	assert.Equal(t, int64(DefaultMaxRequestBodySize), cfg.Spec.Listener.MaxRequestBodySize)
	assert.NoError(t, ValidateConfig(cfg))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:  "empty document gets defaults",
			input: "",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultPort, cfg.Spec.Listener.Port)
				assert.Equal(t, 1, cfg.Spec.Backends.MaxRequestsPerBackend)
				assert.Equal(t, StatsStoreMemory, cfg.Spec.Stats.Store)
				assert.Equal(t, []string{"*"}, cfg.Spec.CORS.AllowOrigins)
			},
		},
		{
			name: "priority header disabled",
			input: `
spec:
  dispatch:
    usePriorityHeader: false
    bundleTTL: 30s
`,
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Spec.Dispatch.UsePriority())
				assert.Equal(t, 30*time.Second, cfg.Spec.Dispatch.BundleTTL.Duration())
			},
		},
		{
			name:    "unknown field rejected",
			input:   "spec:\n  listener:\n    prot: 1\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			input:   "spec: [",
			wantErr: true,
		},
		{
			name:    "bad duration",
			input:   "spec:\n  backends:\n    timeout: soon\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := NewLoader().LoadFromReader(strings.NewReader(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, util.ErrConfigInvalid)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoader_SubstituteEnvVars(t *testing.T) {
	t.Parallel()

	env := map[string]string{"BACKEND": "10.0.0.5:9000", "EMPTY": ""}
	l := &Loader{lookupEnv: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}

	tests := []struct {
		in   string
		want string
	}{
		{in: "${BACKEND}", want: "10.0.0.5:9000"},
		{in: "${MISSING:-fallback}", want: "fallback"},
		{in: "${MISSING}", want: ""},
		{in: "${EMPTY:-fallback}", want: ""},
		{in: "cost: $$5", want: "cost: $5"},
		{in: "plain", want: "plain"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, l.substituteEnvVars(tt.in), tt.in)
	}
}

func TestLoader_EnvInDocument(t *testing.T) {
	t.Parallel()

	l := &Loader{lookupEnv: func(k string) (string, bool) {
		if k == "AVAMUX_TEST_BACKEND" {
			return "backend-1:7000", true
		}
		return "", false
	}}

	cfg, err := l.LoadFromReader(strings.NewReader(`
spec:
  backends:
    addresses: ["${AVAMUX_TEST_BACKEND}", "${OTHER:-backend-2:7000}"]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"backend-1:7000", "backend-2:7000"}, cfg.Spec.Backends.Addresses)
}
