package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerKind is the direction of a ledger entry.
type LedgerKind string

const (
	LedgerKindDeposit    LedgerKind = "DEPOSIT"
	LedgerKindWithdrawal LedgerKind = "WITHDRAWAL"
)

// LedgerStatus mirrors payment status for ledger entries. Entries written
// by the wallet mutator are always COMPLETED.
type LedgerStatus string

const (
	LedgerStatusCompleted LedgerStatus = "COMPLETED"
)

// LedgerTransaction is an append-only wallet movement. Amount is always
// positive; Kind carries the sign.
type LedgerTransaction struct {
	ID        uuid.UUID       `json:"id"`
	WalletID  uuid.UUID       `json:"wallet_id"`
	PaymentID *uuid.UUID      `json:"payment_id,omitempty"`
	Kind      LedgerKind      `json:"kind"`
	Status    LedgerStatus    `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// SignedAmount returns the entry's contribution to the wallet balance.
func (t *LedgerTransaction) SignedAmount() decimal.Decimal {
	if t.Kind == LedgerKindWithdrawal {
		return t.Amount.Neg()
	}
	return t.Amount
}

// BalanceAudit compares a wallet's stored balance with its ledger.
type BalanceAudit struct {
	WalletID   uuid.UUID       `json:"walletId"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledgerSum"`
	Consistent bool            `json:"consistent"`
}
