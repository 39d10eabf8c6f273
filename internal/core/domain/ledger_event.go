package domain

import (
	"time"
)

// LedgerEventType names an event published after a ledger change commits.
type LedgerEventType string

const (
	LedgerEventDepositApplied     LedgerEventType = "ledger.deposit_applied"
	LedgerEventPayoutDispatched   LedgerEventType = "ledger.payout_dispatched"
	LedgerEventTransferReconciled LedgerEventType = "ledger.transfer_reconciled"
)

// LedgerEvent is the envelope written to the event stream. Key partitions
// the stream (wallet id for deposits, payment id for payouts).
type LedgerEvent struct {
	Type       LedgerEventType   `json:"type"`
	Key        string            `json:"key"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes"`
}
