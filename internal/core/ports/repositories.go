package ports

import (
	"context"
	"time"

	"care-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside a unit of work; the ForUpdate
// variants take the wallet row lock.
type WalletRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByFamilyID(ctx context.Context, familyID uuid.UUID) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	GetByFamilyIDForUpdate(ctx context.Context, tx pgx.Tx, familyID uuid.UUID) (*domain.Wallet, error)
	// CreateIfAbsent inserts a zero-balance wallet unless the family already has one.
	CreateIfAbsent(ctx context.Context, tx pgx.Tx, familyID uuid.UUID) error
	IncrementBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta decimal.Decimal) error
	// SetCustomerReference stores the processor customer id only if none is set yet.
	// It reports whether the value was written.
	SetCustomerReference(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, customerID string) (bool, error)
}

// PaymentRepository defines persistence operations for payment records.
type PaymentRepository interface {
	// Create inserts a payment. A duplicate deposit reference yields
	// domain.ErrDuplicateExternalReference.
	Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByExternalReference(ctx context.Context, ref string) (*domain.Payment, error)
	ExistsByExternalReference(ctx context.Context, ref string) (bool, error)
	ExistsByExternalReferenceTx(ctx context.Context, tx pgx.Tx, ref string) (bool, error)
	GetCaregiverPaymentByHire(ctx context.Context, hireID uuid.UUID) (*domain.Payment, error)
	// MarkProcessing records an accepted transfer. It only applies if the row
	// is unchanged since it was read (updated_at matches) and not COMPLETED.
	MarkProcessing(ctx context.Context, tx pgx.Tx, cmd MarkProcessingCommand) (bool, error)
	// UpdateStatusWhere is a conditional update; backfillRef, when non-nil,
	// is written as the external reference. Returns rows affected.
	UpdateStatusWhere(ctx context.Context, tx pgx.Tx, match domain.PaymentMatch, status domain.PaymentStatus, backfillRef *string) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Payment, error)
}

// MarkProcessingCommand carries the accepted transfer onto a payout record.
type MarkProcessingCommand struct {
	PaymentID         uuid.UUID
	TransferID        string
	Amount            decimal.Decimal
	ExpectedUpdatedAt time.Time // state the dispatch was computed from
}

// LedgerRepository defines the append-only wallet ledger.
type LedgerRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerTransaction) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.LedgerTransaction, error)
	SumCompletedByWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
}

// TimesheetRepository reads scheduling data owned by other subsystems.
type TimesheetRepository interface {
	GetPayoutContext(ctx context.Context, timesheetID uuid.UUID) (*domain.PayoutContext, error)
}

// DirectoryRepository resolves families and users.
type DirectoryRepository interface {
	GetFamily(ctx context.Context, id uuid.UUID) (*domain.Family, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// CaregiverPreferenceRepository returns the caregiver's payout destination,
// or "" if none is configured.
type CaregiverPreferenceRepository interface {
	GetPayoutAccount(ctx context.Context, caregiverID uuid.UUID) (string, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// UnitOfWork runs fn in a database transaction, committing only if fn
// returns nil. Every ledger mutation happens inside one.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}
