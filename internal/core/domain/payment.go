package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrDuplicateExternalReference is returned by the store when a deposit with
// the same processor reference has already been recorded.
var ErrDuplicateExternalReference = errors.New("payment with this external reference already exists")

var ErrPaymentNotFound = errors.New("payment not found")

// PaymentKind distinguishes money coming in from money going out.
type PaymentKind string

const (
	PaymentKindDeposit          PaymentKind = "DEPOSIT"
	PaymentKindCaregiverPayment PaymentKind = "CAREGIVER_PAYMENT"
)

// PaymentStatus is the lifecycle state of a payment record.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// Payment is a deposit or caregiver payout as seen by the ledger.
// StripePaymentID holds the payment intent id for deposits and the transfer
// id for payouts; for deposits it doubles as the idempotency key.
type Payment struct {
	ID                uuid.UUID         `json:"id"`
	UserID            uuid.UUID         `json:"user_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Kind              PaymentKind       `json:"kind"`
	Status            PaymentStatus     `json:"status"`
	StripePaymentID   *string           `json:"stripe_payment_id,omitempty"`
	MarketplaceHireID *uuid.UUID        `json:"marketplace_hire_id,omitempty"`
	Description       *string           `json:"description,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsTerminal returns true once the processor has confirmed an outcome.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}

// ExternalReference returns the processor reference or "".
func (p *Payment) ExternalReference() string {
	if p.StripePaymentID == nil {
		return ""
	}
	return *p.StripePaymentID
}

// PaymentMatch restricts a conditional status update. Exactly one of
// StripePaymentID and MarketplaceHireID is expected to be set.
// ExcludeTerminal leaves COMPLETED and FAILED rows untouched.
type PaymentMatch struct {
	Kind              PaymentKind
	StripePaymentID   *string
	MarketplaceHireID *uuid.UUID
	ExcludeTerminal   bool
}
