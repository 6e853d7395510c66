package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avamux/internal/observability"
	"github.com/vyrodovalexey/avamux/internal/proxy"
)

// Recovery returns a middleware that turns a panic into a 500 answer in
// the dispatch error format.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithContext(c.Request.Context()).Error("panic recovered",
					observability.Any("error", err),
					observability.String("method", c.Request.Method),
					observability.String("path", c.Request.URL.Path),
					observability.String("client_ip", c.ClientIP()),
					observability.String("stack", string(debug.Stack())),
				)

				if span := GetSpan(c); span != nil {
					span.RecordError(fmt.Errorf("panic: %v", err))
				}

				if !c.Writer.Written() {
					proxy.WriteError(c.Writer, c.GetHeader("Accept"), http.StatusInternalServerError)
				}
				c.Abort()
			}
		}()

		c.Next()
	}
}
