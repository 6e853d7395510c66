package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/avamux/internal/scheduler"
	"github.com/vyrodovalexey/avamux/internal/util"
)

// Sentinel errors for dispatch operations.
var (
	// ErrUpstreamUnavailable indicates that the backend could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamTimeout indicates that the backend did not answer in time.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrBodyTranslation indicates that the inbound body could not be re-encoded.
	ErrBodyTranslation = errors.New("request body translation failed")

	// ErrBundleExpired indicates that a bundle was evicted before completion.
	ErrBundleExpired = scheduler.ErrBundleExpired

	// ErrSchedulerClosed indicates that the gateway is shutting down.
	ErrSchedulerClosed = scheduler.ErrClosed
)

// errorMessage is the caller-facing message of every failure.
const errorMessage = "An error occurred while processing your request"

// ProxyError represents a dispatch error with details.
type ProxyError struct {
	Op      string // Operation that failed
	Backend string // Backend address if applicable
	Message string // Human-readable message
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	var b strings.Builder
	b.WriteString("proxy error [")
	b.WriteString(e.Op)
	b.WriteString("]")
	if e.Backend != "" {
		b.WriteString(" backend=")
		b.WriteString(e.Backend)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// NewProxyError creates a new ProxyError.
func NewProxyError(op, backendAddr, message string, cause error) *ProxyError {
	return &ProxyError{
		Op:      op,
		Backend: backendAddr,
		Message: message,
		Cause:   cause,
	}
}

// IsProxyError checks if an error is a ProxyError.
func IsProxyError(err error) bool {
	var proxyErr *ProxyError
	return errors.As(err, &proxyErr)
}

// ClassifyError maps a dispatch failure to the status code returned to
// the caller.
func ClassifyError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrSchedulerClosed):
		return http.StatusServiceUnavailable
	case isBodyTooLarge(err):
		return http.StatusRequestEntityTooLarge
	case isTimeout(err):
		return http.StatusGatewayTimeout
	case isTransportFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrUpstreamTimeout) ||
		errors.Is(err, ErrBundleExpired) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, util.ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTransportFailure(err error) bool {
	if errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, util.ErrBackendUnavail) {
		return true
	}
	// url.Parse failures are malformed targets, not transport failures.
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op != "parse" {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// errorBody is the JSON shape of a failure answer.
type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// WriteError answers the caller with status. The body is JSON when accept
// mentions application/json and plain text otherwise.
func WriteError(w http.ResponseWriter, accept string, status int) {
	if strings.Contains(accept, "application/json") {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(errorBody{Error: true, Message: errorMessage, Status: status})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "Error: %s (%d)", errorMessage, status)
}
