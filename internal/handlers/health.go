package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-authgate/qbgate/internal/store"
	"github.com/go-authgate/qbgate/internal/version"

	"github.com/gin-gonic/gin"
)

const healthProbeTimeout = 3 * time.Second

// HealthHandler reports liveness of the token store backend.
func HealthHandler(checks map[string]store.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
		defer cancel()

		status := http.StatusOK
		body := gin.H{
			"status":  "healthy",
			"version": version.Get(),
		}
		for name, check := range checks {
			if err := check.Health(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body[name] = "disconnected"
				continue
			}
			body[name] = "connected"
		}
		c.JSON(status, body)
	}
}
