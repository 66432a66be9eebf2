package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Auth mode names. The mode decides whether the wrapped credential check
// runs at all for a given request; the check itself (single key, key
// list) stays whatever the caller built.
const (
	AuthModeOff             = "off"
	AuthModeStrict          = "strict"
	AuthModeAllExceptHealth = "all-except-health"
	AuthModeAuto            = "auto"
)

// AuthModeGate wraps an auth middleware with the configured auth mode:
//
//	off               — never enforce.
//	strict            — enforce on every route; with no key configured
//	                    every request is rejected, since nothing could
//	                    ever match.
//	all-except-health — enforce everywhere but /health and /healthz.
//	auto (default)    — enforce iff a key is configured.
func AuthModeGate(mode string, hasKey bool, enforce gin.HandlerFunc) gin.HandlerFunc {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case AuthModeOff:
		return func(c *gin.Context) { c.Next() }
	case AuthModeStrict:
		if !hasKey {
			return func(c *gin.Context) { respondUnauthorized(c, "API key required") }
		}
		return enforce
	case AuthModeAllExceptHealth:
		return func(c *gin.Context) {
			if isHealthPath(c.Request.URL.Path) {
				c.Next()
				return
			}
			enforce(c)
		}
	default: // auto
		if !hasKey {
			return func(c *gin.Context) { c.Next() }
		}
		return enforce
	}
}

func isHealthPath(path string) bool {
	return strings.HasSuffix(path, "/health") || strings.HasSuffix(path, "/healthz")
}
