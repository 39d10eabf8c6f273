package ports

import (
	"context"
	"time"

	"care-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// PaymentProcessor is the external processor used for deposits and payouts.
type PaymentProcessor interface {
	CreateCustomer(ctx context.Context, familyID, walletID uuid.UUID) (string, error)
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	PayoutsEnabled(ctx context.Context, accountID string) (bool, error)
}

type PaymentIntentRequest struct {
	AmountMinor int64
	Currency    string
	CustomerID  string
	Description *string
	Metadata    map[string]string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
}

type TransferRequest struct {
	AmountMinor    int64
	Currency       string
	Destination    string
	IdempotencyKey string
	Metadata       map[string]string
}

type Transfer struct {
	ID string
}

// WebhookVerifier authenticates a raw webhook body and decodes it into the
// typed event union. Returns domain.ErrInvalidSignature,
// domain.ErrMalformedEvent or domain.ErrMissingMetadata on rejection.
type WebhookVerifier interface {
	Parse(payload []byte, signatureHeader string) (*domain.ProcessorEvent, error)
}

// EventPublisher emits ledger events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LedgerEvent) error
	Close() error
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	IsApplied(ctx context.Context, key string) (bool, error)
	MarkApplied(ctx context.Context, key string, ttl time.Duration) error
}

// TokenService issues and validates bearer tokens.
type TokenService interface {
	Generate(principal domain.Principal, ttl time.Duration) (string, error)
	Validate(tokenString string) (*domain.Principal, error)
}
