package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DebugKeyHeader carries the operator key for privileged /qb endpoints.
const DebugKeyHeader = "x-debug-key"

// MetricsAuthMiddleware protects the metrics endpoint with a Bearer token.
// An empty token disables the check.
func MetricsAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.Header("WWW-Authenticate", `Bearer realm="Metrics"`)
			abortUnauthorized(c, "Bearer token required")
			return
		}

		if !secretEqual(strings.TrimPrefix(authHeader, "Bearer "), token) {
			c.Header("WWW-Authenticate", `Bearer realm="Metrics"`)
			abortUnauthorized(c, "Invalid token")
			return
		}

		c.Next()
	}
}

// DebugKeyMiddleware requires the x-debug-key header to match key.
// An empty key disables the check.
func DebugKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(DebugKeyHeader)
		if provided == "" {
			abortUnauthorized(c, "Debug key required")
			return
		}
		if !secretEqual(provided, key) {
			abortUnauthorized(c, "Invalid debug key")
			return
		}

		c.Next()
	}
}

func secretEqual(provided, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

func abortUnauthorized(c *gin.Context, message string) {
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"message": message,
	})
}
