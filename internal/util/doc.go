// Package util provides shared error types for the multiplexer.
//
// # Error Conventions
//
// Packages follow one error pattern:
//
//   - Sentinel errors (errors.New) for stable conditions checked with
//     errors.Is(). Example: ErrBackendUnavail.
//   - Structured error types for errors that carry extra fields
//     (ConfigError, ValidationError, BackendError). Each type implements
//     Error(), Unwrap() when it wraps, and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping.
package util
