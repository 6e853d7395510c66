package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowOrigins is a list of origins that may access the resource.
	// Use "*" to allow all origins.
	AllowOrigins []string

	// AllowMethods is a list of methods allowed when accessing the resource.
	AllowMethods []string

	// AllowHeaders is a list of headers that can be used in the actual
	// request. Empty reflects the preflight's requested headers.
	AllowHeaders []string

	// ExposeHeaders is a list of headers that browsers are allowed to access.
	ExposeHeaders []string

	// AllowCredentials indicates whether the request can include user credentials.
	AllowCredentials bool

	// MaxAge is how long, in seconds, a preflight result may be cached.
	// Zero omits the header.
	MaxAge int
}

// DefaultCORSConfig allows every origin.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
	}
}

// CORS returns a middleware that allows every origin.
func CORS() gin.HandlerFunc {
	return CORSWithConfig(DefaultCORSConfig())
}

// corsContext holds pre-computed values for CORS middleware.
type corsContext struct {
	config           CORSConfig
	allowAllOrigins  bool
	allowMethodsStr  string
	allowHeadersStr  string
	exposeHeadersStr string
	maxAgeStr        string
}

func newCORSContext(config CORSConfig) *corsContext {
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = []string{"*"}
	}
	if len(config.AllowMethods) == 0 {
		config.AllowMethods = DefaultCORSConfig().AllowMethods
	}

	allowAllOrigins := false
	for _, origin := range config.AllowOrigins {
		if origin == "*" {
			allowAllOrigins = true
			break
		}
	}

	ctx := &corsContext{
		config:           config,
		allowAllOrigins:  allowAllOrigins,
		allowMethodsStr:  strings.Join(config.AllowMethods, ","),
		allowHeadersStr:  strings.Join(config.AllowHeaders, ","),
		exposeHeadersStr: strings.Join(config.ExposeHeaders, ","),
	}
	if config.MaxAge > 0 {
		ctx.maxAgeStr = strconv.Itoa(config.MaxAge)
	}
	return ctx
}

// setOriginHeaders sets the headers shared by preflight and actual
// requests. It reports whether the origin is allowed.
func (ctx *corsContext) setOriginHeaders(c *gin.Context, origin string) bool {
	switch {
	case ctx.allowAllOrigins && !ctx.config.AllowCredentials:
		c.Header("Access-Control-Allow-Origin", "*")
	case origin != "" && (ctx.allowAllOrigins || isOriginAllowed(origin, ctx.config.AllowOrigins)):
		c.Header("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Add("Vary", "Origin")
	default:
		return false
	}

	if ctx.config.AllowCredentials {
		c.Header("Access-Control-Allow-Credentials", "true")
	}
	if ctx.exposeHeadersStr != "" {
		c.Header("Access-Control-Expose-Headers", ctx.exposeHeadersStr)
	}
	return true
}

func (ctx *corsContext) setPreflightHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", ctx.allowMethodsStr)

	allowHeaders := ctx.allowHeadersStr
	if allowHeaders == "" {
		allowHeaders = c.GetHeader("Access-Control-Request-Headers")
		c.Writer.Header().Add("Vary", "Access-Control-Request-Headers")
	}
	if allowHeaders != "" {
		c.Header("Access-Control-Allow-Headers", allowHeaders)
	}

	if ctx.maxAgeStr != "" {
		c.Header("Access-Control-Max-Age", ctx.maxAgeStr)
	}
}

// CORSWithConfig returns a CORS middleware with custom configuration.
// Preflight requests are answered with 204 and never reach a backend;
// a plain OPTIONS request is dispatched like any other.
func CORSWithConfig(config CORSConfig) gin.HandlerFunc {
	ctx := newCORSContext(config)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := ctx.setOriginHeaders(c, origin)

		if allowed && isPreflight(c.Request) {
			ctx.setPreflightHeaders(c)
			c.Header("Content-Length", "0")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}

// isOriginAllowed checks if the origin is in the allowed list.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
