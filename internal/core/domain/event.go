package domain

import (
	"errors"
	"strings"

	"care-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrMalformedEvent   = errors.New("malformed processor event")
	ErrMissingMetadata  = errors.New("missing required metadata")
)

const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventTransferPaid           = "transfer.paid"
	EventTransferFailed         = "transfer.failed"
	EventTransferReversed       = "transfer.reversed"
	EventTransferCanceled       = "transfer.canceled"
	EventTransferCreated        = "transfer.created"

	transferEventPrefix = "transfer."
)

// Metadata keys written on processor objects and read back from events.
const (
	MetaFamilyID    = "familyId"
	MetaUserID      = "userId"
	MetaWalletID    = "walletId"
	MetaTimesheetID = "timesheetId"
	MetaShiftID     = "shiftId"
	MetaHireID      = "hireId"
	MetaOperatorID  = "operatorId"
	MetaCaregiverID = "caregiverId"
	MetaPaymentID   = "paymentId"
)

// ProcessorEvent is a verified inbound webhook. At most one of Deposit and
// Transfer is set, according to Type; unrecognized types carry neither.
type ProcessorEvent struct {
	ID       string
	Type     string
	Deposit  *DepositEvent
	Transfer *TransferEvent
}

// IsTransferEvent reports whether t belongs to the transfer family.
func IsTransferEvent(t string) bool {
	return strings.HasPrefix(t, transferEventPrefix)
}

// DepositEvent is a succeeded payment intent with validated metadata.
type DepositEvent struct {
	PaymentIntentID string
	AmountMinor     int64
	FamilyID        uuid.UUID
	UserID          uuid.UUID
	WalletID        *uuid.UUID // resolution hint only
	Description     *string
}

// Amount converts the minor-unit integer to a ledger amount.
func (d *DepositEvent) Amount() decimal.Decimal {
	return money.FromMinorUnits(d.AmountMinor)
}

// TransferEvent is a transfer status change for a caregiver payout.
type TransferEvent struct {
	TransferID string
	EventType  string
	HireID     *uuid.UUID
	Metadata   map[string]string
}

// TransferStatusFor maps a transfer event type to the payment status it
// implies. ok is false for transfer events that carry no status change.
func TransferStatusFor(eventType string) (status PaymentStatus, ok bool) {
	switch eventType {
	case EventTransferPaid:
		return PaymentStatusCompleted, true
	case EventTransferFailed, EventTransferReversed, EventTransferCanceled:
		return PaymentStatusFailed, true
	case EventTransferCreated:
		return PaymentStatusProcessing, true
	default:
		return "", false
	}
}
