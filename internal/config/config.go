package config

import "time"

// Default values.
const (
	DefaultAPIVersion            = "avamux.io/v1"
	DefaultKind                  = "Multiplexer"
	DefaultPort                  = 3000
	DefaultMaxRequestBodySize    = 500 << 20
	DefaultMaxRequestsPerBackend = 1
	DefaultReadHeaderTimeout     = 10 * time.Second
	DefaultIdleTimeout           = 120 * time.Second
	DefaultMetricsPort           = 9090
	DefaultMetricsPath           = "/metrics"
	DefaultServiceName           = "avamux"
	DefaultStatsPrefix           = "avamux:stats"
	DefaultStatsTTL              = 24 * time.Hour
)

// Stats store kinds.
const (
	StatsStoreMemory = "memory"
	StatsStoreRedis  = "redis"
)

// Stats bucket granularities.
const (
	StatsBucketMinute = "minute"
	StatsBucketNone   = "none"
)

// Config is the root configuration document.
type Config struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Spec       Spec     `yaml:"spec" json:"spec"`
}

// Metadata identifies one deployment.
type Metadata struct {
	Name   string            `yaml:"name" json:"name"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Spec holds every configurable section.
type Spec struct {
	Listener      ListenerConfig      `yaml:"listener" json:"listener"`
	Backends      BackendsConfig      `yaml:"backends" json:"backends"`
	Dispatch      DispatchConfig      `yaml:"dispatch" json:"dispatch"`
	CORS          *CORSConfig         `yaml:"cors,omitempty" json:"cors,omitempty"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Stats         StatsConfig         `yaml:"stats" json:"stats"`
}

// ListenerConfig configures the inbound HTTP server.
type ListenerConfig struct {
	Address            string   `yaml:"address,omitempty" json:"address,omitempty"`
	Port               int      `yaml:"port" json:"port"`
	ReadHeaderTimeout  Duration `yaml:"readHeaderTimeout,omitempty" json:"readHeaderTimeout,omitempty"`
	IdleTimeout        Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	MaxRequestBodySize int64    `yaml:"maxRequestBodySize,omitempty" json:"maxRequestBodySize,omitempty"`
}

// BackendsConfig describes the backend pool. Address order defines the
// slot index.
type BackendsConfig struct {
	Addresses             []string `yaml:"addresses" json:"addresses"`
	MaxRequestsPerBackend int      `yaml:"maxRequestsPerBackend,omitempty" json:"maxRequestsPerBackend,omitempty"`
	Randomize             bool     `yaml:"randomize,omitempty" json:"randomize,omitempty"`
	UseTLS                bool     `yaml:"useTLS,omitempty" json:"useTLS,omitempty"`
	Timeout               Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	InsecureSkipVerify    bool     `yaml:"insecureSkipVerify,omitempty" json:"insecureSkipVerify,omitempty"`
}

// DispatchConfig tunes the scheduler.
type DispatchConfig struct {
	RequestDebounceMs int `yaml:"requestDebounceMs,omitempty" json:"requestDebounceMs,omitempty"`

	// UsePriorityHeader defaults to true. When false every unit is
	// queued with priority 0.
	UsePriorityHeader *bool `yaml:"usePriorityHeader,omitempty" json:"usePriorityHeader,omitempty"`

	// BundleTTL evicts bundles that stay incomplete for longer than the
	// given duration. Zero keeps them forever.
	BundleTTL Duration `yaml:"bundleTTL,omitempty" json:"bundleTTL,omitempty"`
}

// CORSConfig configures cross-origin headers.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins,omitempty" json:"allowOrigins,omitempty"`
	AllowMethods     []string `yaml:"allowMethods,omitempty" json:"allowMethods,omitempty"`
	AllowHeaders     []string `yaml:"allowHeaders,omitempty" json:"allowHeaders,omitempty"`
	ExposeHeaders    []string `yaml:"exposeHeaders,omitempty" json:"exposeHeaders,omitempty"`
	MaxAge           int      `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`
	AllowCredentials bool     `yaml:"allowCredentials,omitempty" json:"allowCredentials,omitempty"`
}

// ObservabilityConfig groups logging, metrics and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port,omitempty" json:"port,omitempty"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// TracingConfig configures OTLP tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// StatsConfig configures dispatch statistics.
type StatsConfig struct {
	Enabled    bool        `yaml:"enabled" json:"enabled"`
	Store      string      `yaml:"store,omitempty" json:"store,omitempty"`
	Redis      RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	Prefix     string      `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	TTL        Duration    `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	Bucket     string      `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	TrackPaths bool        `yaml:"trackPaths,omitempty" json:"trackPaths,omitempty"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `yaml:"address,omitempty" json:"address,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int    `yaml:"db,omitempty" json:"db,omitempty"`
}

// DefaultConfig returns a configuration with every default applied and
// no backends.
func DefaultConfig() *Config {
	cfg := &Config{
		APIVersion: DefaultAPIVersion,
		Kind:       DefaultKind,
		Metadata:   Metadata{Name: "avamux"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	l := &c.Spec.Listener
	if l.Port == 0 {
		l.Port = DefaultPort
	}
	if l.ReadHeaderTimeout == 0 {
		l.ReadHeaderTimeout = Duration(DefaultReadHeaderTimeout)
	}
	if l.IdleTimeout == 0 {
		l.IdleTimeout = Duration(DefaultIdleTimeout)
	}
	if l.MaxRequestBodySize == 0 {
		l.MaxRequestBodySize = DefaultMaxRequestBodySize
	}

	if c.Spec.Backends.MaxRequestsPerBackend == 0 {
		c.Spec.Backends.MaxRequestsPerBackend = DefaultMaxRequestsPerBackend
	}

	if c.Spec.Dispatch.UsePriorityHeader == nil {
		enabled := true
		c.Spec.Dispatch.UsePriorityHeader = &enabled
	}

	if c.Spec.CORS == nil {
		c.Spec.CORS = &CORSConfig{AllowOrigins: []string{"*"}}
	}

	o := &c.Spec.Observability
	if o.Logging.Level == "" {
		o.Logging.Level = "info"
	}
	if o.Logging.Format == "" {
		o.Logging.Format = "json"
	}
	if o.Logging.Output == "" {
		o.Logging.Output = "stdout"
	}
	if o.Metrics.Port == 0 {
		o.Metrics.Port = DefaultMetricsPort
	}
	if o.Metrics.Path == "" {
		o.Metrics.Path = DefaultMetricsPath
	}
	if o.Tracing.ServiceName == "" {
		o.Tracing.ServiceName = DefaultServiceName
	}

	s := &c.Spec.Stats
	if s.Store == "" {
		s.Store = StatsStoreMemory
	}
	if s.Prefix == "" {
		s.Prefix = DefaultStatsPrefix
	}
	if s.TTL == 0 {
		s.TTL = Duration(DefaultStatsTTL)
	}
	if s.Bucket == "" {
		s.Bucket = StatsBucketMinute
	}
}

// UsePriority reports whether the priority header is honored.
func (d DispatchConfig) UsePriority() bool {
	return d.UsePriorityHeader == nil || *d.UsePriorityHeader
}

// Debounce returns the admission debounce window.
func (d DispatchConfig) Debounce() time.Duration {
	return time.Duration(d.RequestDebounceMs) * time.Millisecond
}
