package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrWalletNotFound = errors.New("wallet not found")

// Wallet is a family's prepaid balance. Balance only moves inside the
// wallet mutator's unit of work and always equals the sum of its completed
// ledger transactions.
type Wallet struct {
	ID               uuid.UUID       `json:"id"`
	FamilyID         uuid.UUID       `json:"family_id"`
	Balance          decimal.Decimal `json:"balance"`
	StripeCustomerID *string         `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// HasCustomer reports whether the processor customer has been created.
func (w *Wallet) HasCustomer() bool {
	return w.StripeCustomerID != nil && *w.StripeCustomerID != ""
}
