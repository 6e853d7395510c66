package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avamux/internal/proxy"
)

// BodyLimit caps the request body at limit bytes. A declared length over
// the limit is answered with 413 before the request is queued; reads past
// the limit fail with *http.MaxBytesError. A limit of 0 disables the cap.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}

		if c.Request.ContentLength > limit {
			proxy.WriteError(c.Writer, c.GetHeader("Accept"), http.StatusRequestEntityTooLarge)
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
