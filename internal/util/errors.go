package util

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinels matched through errors.Is by the typed errors below.
var (
	ErrTimeout        = errors.New("timeout")
	ErrBackendUnavail = errors.New("backend unavailable")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// ConfigError is a configuration document that could not be read.
// Field is empty when the failure is not tied to one key.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config error")
	if e.Field != "" {
		b.WriteString(" at ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is reports a match against ErrConfigInvalid.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// NewConfigError returns a ConfigError; cause may be nil.
func NewConfigError(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// ValidationError collects every invalid field found in one pass.
type ValidationError struct {
	Fields  map[string]string
	Message string
}

// Error lists fields in sorted order so messages are stable.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation error: %s", e.Message)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("validation error: %s (%s)", e.Message, strings.Join(parts, "; "))
}

// Is reports a match against ErrConfigInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// NewValidationError returns an empty ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message, Fields: make(map[string]string)}
}

// AddField records msg for field, replacing an earlier entry.
func (e *ValidationError) AddField(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

// HasErrors reports whether any field error was recorded.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// BackendError is a failed exchange with one backend address. A timed
// out exchange matches ErrTimeout; any other failure matches
// ErrBackendUnavail.
type BackendError struct {
	Backend  string
	TimedOut bool
	Cause    error
}

func (e *BackendError) Error() string {
	state := "unreachable"
	if e.TimedOut {
		state = "timed out"
	}
	if e.Cause == nil {
		return fmt.Sprintf("backend %s %s", e.Backend, state)
	}
	return fmt.Sprintf("backend %s %s: %v", e.Backend, state, e.Cause)
}

func (e *BackendError) Unwrap() error {
	return e.Cause
}

func (e *BackendError) Is(target error) bool {
	if e.TimedOut {
		return target == ErrTimeout
	}
	return target == ErrBackendUnavail
}

// BackendTimeout reports that backend did not answer in time.
func BackendTimeout(backend string, cause error) *BackendError {
	return &BackendError{Backend: backend, TimedOut: true, Cause: cause}
}

// BackendUnreachable reports that backend could not be reached.
func BackendUnreachable(backend string, cause error) *BackendError {
	return &BackendError{Backend: backend, Cause: cause}
}
