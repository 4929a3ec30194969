package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-authgate/qbgate/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisConnTimeout = 5 * time.Second

// initializeRedisClient connects to Redis when OAuth states or rate limits
// are shared through it. Returns nil otherwise.
// Rate limiting must use go-redis because ulule/limiter depends on go-redis types.
func initializeRedisClient(
	ctx context.Context,
	cfg *config.Config,
	log *zap.Logger,
) (*redis.Client, error) {
	if !cfg.UsesRedis() {
		return nil, nil //nolint:nilnil // redis client not needed in this configuration
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, redisConnTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}

	log.Info("redis client initialized",
		zap.String("addr", cfg.RedisAddr),
		zap.Int("db", cfg.RedisDB),
	)
	return client, nil
}
