package service

import (
	"context"
	"fmt"
	"time"

	"care-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

const appliedCacheTTL = 24 * time.Hour

// IdempotencyGuardImpl implements ports.IdempotencyGuard in two layers: the
// Redis cache as a fast path, then the durable payment record lookup.
type IdempotencyGuardImpl struct {
	cache    ports.IdempotencyCache
	payments ports.PaymentRepository
	log      zerolog.Logger
}

// NewIdempotencyGuard creates a guard. cache may be nil.
func NewIdempotencyGuard(cache ports.IdempotencyCache, payments ports.PaymentRepository, log zerolog.Logger) *IdempotencyGuardImpl {
	return &IdempotencyGuardImpl{cache: cache, payments: payments, log: log}
}

// HasBeenApplied reports whether a payment record already carries ref.
func (g *IdempotencyGuardImpl) HasBeenApplied(ctx context.Context, ref string) (bool, error) {
	// Layer 1: Redis
	if g.cache != nil {
		applied, err := g.cache.IsApplied(ctx, ref)
		if err != nil {
			g.log.Warn().Err(err).Str("ref", ref).Msg("redis idempotency check failed, falling through to DB")
		} else if applied {
			return true, nil
		}
	}

	// Layer 2: DB
	exists, err := g.payments.ExistsByExternalReference(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("db idempotency check: %w", err)
	}
	return exists, nil
}

// MarkApplied warms the cache after commit. Failures are only logged.
func (g *IdempotencyGuardImpl) MarkApplied(ctx context.Context, ref string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.MarkApplied(ctx, ref, appliedCacheTTL); err != nil {
		g.log.Warn().Err(err).Str("ref", ref).Msg("failed to cache applied reference in redis")
	}
}
