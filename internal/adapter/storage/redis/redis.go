// Package redis backs the ledger's best-effort layers: the applied-deposit
// cache in front of the payments table and the payout/deposit rate limits.
// Nothing here is authoritative; the database decides.
package redis

import (
	"context"
	"fmt"

	"care-ledger/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient connects the client shared by the idempotency cache and the rate
// limiter. A failed ping closes the client; callers then run without either.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Msg("redis connected: deposit cache and rate limits enabled")

	return client, nil
}
