// Package cache holds the Redis client and the in-flight idempotency guard.
// Redis is optional: when it is unreachable the client is nil and callers degrade gracefully.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smarttransit/seat-booking-core/internal/config"
)

// NewRedisClient connects to Redis. Returns nil when no address is configured or ping fails.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
