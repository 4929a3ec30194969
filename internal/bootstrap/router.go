package bootstrap

import (
	"github.com/go-authgate/qbgate/internal/config"
	"github.com/go-authgate/qbgate/internal/handlers"
	"github.com/go-authgate/qbgate/internal/logger"
	"github.com/go-authgate/qbgate/internal/metrics"
	"github.com/go-authgate/qbgate/internal/middleware"
	"github.com/go-authgate/qbgate/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	h handlerSet,
	healthChecks map[string]store.HealthChecker,
	m metrics.Recorder,
	redisClient *redis.Client,
	log *zap.Logger,
) (*gin.Engine, error) {
	setupGinMode(cfg)
	r := gin.New()

	r.Use(middleware.RequestIDMiddleware())
	r.Use(metrics.HTTPMetricsMiddleware(m))
	r.Use(logger.GinMiddleware(log), gin.Recovery())

	r.GET("/health", handlers.HealthHandler(healthChecks))
	setupMetricsEndpoint(r, cfg, log)

	rateLimiter, err := setupRateLimiting(cfg, redisClient, log)
	if err != nil {
		return nil, err
	}
	setupQuickBooksRoutes(r, cfg, h, rateLimiter)

	log.Info("qbgate server configured",
		zap.String("addr", cfg.ServerAddr),
		zap.String("environment", cfg.Environment),
		zap.String("redirect_uri", cfg.RedirectURI),
		zap.Bool("debug_guard", cfg.DebugKey != ""),
	)
	return r, nil
}

// setupQuickBooksRoutes registers the /qb operator surface. Endpoints that
// return or destroy token material sit behind the debug key.
func setupQuickBooksRoutes(
	r *gin.Engine,
	cfg *config.Config,
	h handlerSet,
	rateLimiter gin.HandlerFunc,
) {
	debug := middleware.DebugKeyMiddleware(cfg.DebugKey)

	qb := r.Group("/qb")
	qb.Use(rateLimiter)
	{
		qb.GET("/auth_request", h.qb.AuthRequest)
		qb.GET("/auth_token", h.qb.AuthToken)
		qb.GET("/refresh_token", debug, h.qb.RefreshToken)
		qb.POST("/validateToken", debug, h.qb.ValidateToken)
		qb.GET("/token_status", h.qb.TokenStatus)
		qb.GET("/get_updates", h.qb.GetUpdates)
		qb.GET("/customer_by_email", h.qb.CustomerByEmail)
		qb.POST("/revoke", debug, h.qb.Revoke)
	}
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config, log *zap.Logger) {
	switch {
	case !cfg.MetricsEnabled:
		log.Info("prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Info("prometheus metrics enabled at /metrics with bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Info("prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupGinMode sets Gin mode based on the QuickBooks environment
func setupGinMode(cfg *config.Config) {
	gin.SetMode(ginModeMap[cfg.Environment == config.EnvironmentProduction])
}

var ginModeMap = map[bool]string{
	true:  gin.ReleaseMode,
	false: gin.DebugMode,
}
