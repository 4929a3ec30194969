package bootstrap

import (
	"fmt"

	"github.com/go-authgate/qbgate/internal/config"
	"github.com/go-authgate/qbgate/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// setupRateLimiting returns the per-IP limiter for /qb, or a pass-through
// handler when rate limiting is disabled.
func setupRateLimiting(
	cfg *config.Config,
	redisClient *redis.Client,
	log *zap.Logger,
) (gin.HandlerFunc, error) {
	if !cfg.EnableRateLimit {
		return func(c *gin.Context) { c.Next() }, nil
	}

	storeType := middleware.RateLimitStoreType(cfg.RateLimitStore)
	limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.QBRateLimit,
		StoreType:         storeType,
		RedisClient:       redisClient,
		KeyPrefix:         "qbgate:ratelimit:qb",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter for /qb: %w", err)
	}

	log.Info("rate limiting enabled",
		zap.String("store", cfg.RateLimitStore),
		zap.Int("requests_per_minute", cfg.QBRateLimit),
	)
	return limiter, nil
}
