package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "booking_idem:"

// IdempotencyGuard marks a booking request as in flight so a concurrent retry
// carrying the same key is rejected instead of racing the first one.
// The durable duplicate check is the (user_id, idempotency_key) unique index on orders.
type IdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyGuard returns a guard. A nil client makes every Acquire succeed.
func NewIdempotencyGuard(client *redis.Client, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{client: client, ttl: ttl}
}

func guardKey(userID uuid.UUID, key string) string {
	return fmt.Sprintf("%s%s:%s", idempotencyKeyPrefix, userID, key)
}

// Acquire claims the key. ok is false when another request holds it.
// The returned token must be passed to Release.
func (g *IdempotencyGuard) Acquire(ctx context.Context, userID uuid.UUID, key string) (token string, ok bool, err error) {
	if g == nil || g.client == nil {
		return "", true, nil
	}
	token = uuid.NewString()
	ok, err = g.client.SetNX(ctx, guardKey(userID, key), token, g.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("idempotency guard: %w", err)
	}
	return token, ok, nil
}

// Release drops the key if it is still owned by token
func (g *IdempotencyGuard) Release(ctx context.Context, userID uuid.UUID, key, token string) error {
	if g == nil || g.client == nil || token == "" {
		return nil
	}
	k := guardKey(userID, key)
	val, err := g.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if val != token {
		return nil
	}
	return g.client.Del(ctx, k).Err()
}
