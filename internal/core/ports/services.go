package ports

import (
	"context"

	"care-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Service Ports (Business Logic) ---

// IdempotencyGuard answers whether a processor reference has been applied.
type IdempotencyGuard interface {
	HasBeenApplied(ctx context.Context, ref string) (bool, error)
	MarkApplied(ctx context.Context, ref string)
}

// WalletMutator applies a deposit atomically.
type WalletMutator interface {
	ApplyDeposit(ctx context.Context, cmd DepositCommand) (*domain.Payment, error)
}

// DepositCommand is a validated deposit to apply.
type DepositCommand struct {
	UserID            uuid.UUID
	FamilyID          uuid.UUID
	WalletID          *uuid.UUID
	Amount            decimal.Decimal
	ExternalReference string
	Description       *string
}

// WebhookProcessor verifies and routes inbound processor webhooks.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error)
}

// WebhookOutcome is the acknowledged result of a webhook delivery.
type WebhookOutcome string

const (
	WebhookApplied    WebhookOutcome = "applied"
	WebhookDuplicate  WebhookOutcome = "duplicate"
	WebhookIgnored    WebhookOutcome = "ignored"
	WebhookReconciled WebhookOutcome = "reconciled"
	WebhookUnmatched  WebhookOutcome = "unmatched"
)

type WebhookResult struct {
	EventID   string
	EventType string
	Outcome   WebhookOutcome
	PaymentID *uuid.UUID
}

// TransferReconciler applies transfer status events to payout records.
type TransferReconciler interface {
	Reconcile(ctx context.Context, event *domain.TransferEvent) (*ReconcileResult, error)
}

type ReconcileResult struct {
	Recognized   bool
	Matched      bool
	MatchedBy    string
	Status       domain.PaymentStatus
	RowsAffected int64
}

// PayoutService dispatches caregiver payouts for approved timesheets.
type PayoutService interface {
	Dispatch(ctx context.Context, principal domain.Principal, timesheetID uuid.UUID) (*PayoutResult, error)
}

type PayoutResult struct {
	TransferID string
	PaymentID  uuid.UUID
}

// WalletService covers family-facing wallet operations and the ledger audit.
type WalletService interface {
	CreateDepositIntent(ctx context.Context, principal domain.Principal, req DepositIntentRequest) (*DepositIntent, error)
	GetWallet(ctx context.Context, principal domain.Principal) (*WalletView, error)
	AuditBalance(ctx context.Context, walletID uuid.UUID) (*domain.BalanceAudit, error)
}

type DepositIntentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description *string
}

type DepositIntent struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

type WalletView struct {
	WalletID       uuid.UUID                  `json:"walletId"`
	Balance        decimal.Decimal            `json:"balance"`
	Transactions   []domain.LedgerTransaction `json:"transactions"`
	RecentPayments []domain.Payment           `json:"recentPayments"`
}

// AuditService records audit entries asynchronously.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// PrincipalResolver completes a token principal with directory data.
type PrincipalResolver interface {
	Resolve(ctx context.Context, principal domain.Principal) (domain.Principal, error)
}
