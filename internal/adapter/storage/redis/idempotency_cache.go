package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultAppliedTTL is how long an applied deposit reference stays in the
// fast-path cache. The database remains the source of truth after expiry.
const DefaultAppliedTTL = 24 * time.Hour

// IdempotencyCache implements ports.IdempotencyCache using Redis.
type IdempotencyCache struct {
	client goredis.UniversalClient
	prefix string
}

// NewIdempotencyCache creates a new Redis-backed idempotency cache.
func NewIdempotencyCache(client goredis.UniversalClient) *IdempotencyCache {
	return &IdempotencyCache{
		client: client,
		prefix: "idempotency:deposit:",
	}
}

// IsApplied reports whether key was marked applied and has not expired.
func (c *IdempotencyCache) IsApplied(ctx context.Context, key string) (bool, error) {
	err := c.client.Get(ctx, c.prefix+key).Err()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis idempotency get: %w", err)
	}
	return true, nil
}

// MarkApplied records key with the given TTL. A non-positive ttl falls back
// to DefaultAppliedTTL.
func (c *IdempotencyCache) MarkApplied(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultAppliedTTL
	}
	if err := c.client.Set(ctx, c.prefix+key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}
