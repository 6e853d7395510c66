package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestRecorder receives one observation per completed request.
type RequestRecorder interface {
	RecordRequest(method string, status int, duration time.Duration)
}

// Metrics returns a middleware that records request counts and latency.
func Metrics(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		recorder.RecordRequest(c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
