// Package middleware provides the gin middlewares wrapped around the
// dispatch handler: request IDs, access logging, panic recovery, CORS,
// tracing and request metrics.
package middleware
