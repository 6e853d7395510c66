package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/avamux/internal/util"
)

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
)

// Validator checks a configuration and collects every problem it finds.
type Validator struct {
	err *util.ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig validates cfg. The returned error, if any, is a
// *util.ValidationError.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.err = util.NewValidationError("invalid configuration")

	if cfg == nil {
		v.err.AddField("", "configuration is nil")
		return v.err
	}

	v.validateRoot(cfg)
	v.validateListener(&cfg.Spec.Listener)
	v.validateBackends(&cfg.Spec.Backends)
	v.validateDispatch(&cfg.Spec.Dispatch)
	v.validateObservability(&cfg.Spec.Observability)
	v.validateStats(&cfg.Spec.Stats)

	if v.err.HasErrors() {
		return v.err
	}
	return nil
}

func (v *Validator) validateRoot(cfg *Config) {
	if !strings.HasPrefix(cfg.APIVersion, "avamux.io/") {
		v.err.AddField("apiVersion", "must start with 'avamux.io/'")
	}
	if cfg.Kind != DefaultKind {
		v.err.AddField("kind", fmt.Sprintf("must be '%s'", DefaultKind))
	}
	if cfg.Metadata.Name == "" {
		v.err.AddField("metadata.name", "name is required")
	}
}

func (v *Validator) validateListener(l *ListenerConfig) {
	if !validPort(l.Port) {
		v.err.AddField("spec.listener.port", "must be between 1 and 65535")
	}
	if l.MaxRequestBodySize < 0 {
		v.err.AddField("spec.listener.maxRequestBodySize", "must not be negative")
	}
	if l.Address != "" && net.ParseIP(l.Address) == nil && l.Address != "localhost" {
		v.err.AddField("spec.listener.address", "must be an IP address or localhost")
	}
}

func (v *Validator) validateBackends(b *BackendsConfig) {
	if len(b.Addresses) == 0 {
		v.err.AddField("spec.backends.addresses", "at least one backend is required")
	}

	seen := make(map[string]bool, len(b.Addresses))
	for i, addr := range b.Addresses {
		path := fmt.Sprintf("spec.backends.addresses[%d]", i)
		if err := validateHostPort(addr); err != nil {
			v.err.AddField(path, err.Error())
			continue
		}
		if seen[addr] {
			v.err.AddField(path, "duplicate backend address")
		}
		seen[addr] = true
	}

	if b.MaxRequestsPerBackend < 1 {
		v.err.AddField("spec.backends.maxRequestsPerBackend", "must be at least 1")
	}
	if b.Timeout < 0 {
		v.err.AddField("spec.backends.timeout", "must not be negative")
	}
}

func (v *Validator) validateDispatch(d *DispatchConfig) {
	if d.RequestDebounceMs < 0 {
		v.err.AddField("spec.dispatch.requestDebounceMs", "must not be negative")
	}
	if d.BundleTTL < 0 {
		v.err.AddField("spec.dispatch.bundleTTL", "must not be negative")
	}
}

func (v *Validator) validateObservability(o *ObservabilityConfig) {
	if !validLogLevels[o.Logging.Level] {
		v.err.AddField("spec.observability.logging.level", "must be one of debug, info, warn, error")
	}
	if !validLogFormats[o.Logging.Format] {
		v.err.AddField("spec.observability.logging.format", "must be json or console")
	}
	if o.Metrics.Enabled {
		if !validPort(o.Metrics.Port) {
			v.err.AddField("spec.observability.metrics.port", "must be between 1 and 65535")
		}
		if !strings.HasPrefix(o.Metrics.Path, "/") {
			v.err.AddField("spec.observability.metrics.path", "must start with '/'")
		}
	}
	if o.Tracing.SamplingRate < 0 || o.Tracing.SamplingRate > 1 {
		v.err.AddField("spec.observability.tracing.samplingRate", "must be between 0 and 1")
	}
}

func (v *Validator) validateStats(s *StatsConfig) {
	if !s.Enabled {
		return
	}
	switch s.Store {
	case StatsStoreMemory:
	case StatsStoreRedis:
		if s.Redis.Address == "" {
			v.err.AddField("spec.stats.redis.address", "required when store is redis")
		}
	default:
		v.err.AddField("spec.stats.store", "must be memory or redis")
	}
	if s.Bucket != StatsBucketMinute && s.Bucket != StatsBucketNone {
		v.err.AddField("spec.stats.bucket", "must be minute or none")
	}
	if s.TTL < 0 {
		v.err.AddField("spec.stats.ttl", "must not be negative")
	}
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// validateHostPort accepts "host" or "host:port". Schemes and paths are
// rejected because the scheme comes from useTLS.
func validateHostPort(addr string) error {
	if addr == "" {
		return fmt.Errorf("address is required")
	}
	if strings.Contains(addr, "/") {
		return fmt.Errorf("must be host or host:port without scheme or path")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// No port present.
		return nil
	}
	if host == "" {
		return fmt.Errorf("host is required")
	}
	n, err := strconv.Atoi(port)
	if err != nil || !validPort(n) {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
