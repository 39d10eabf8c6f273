package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	depositRefConstraint    = "payments_deposit_ref_uniq"
	caregiverHireConstraint = "payments_caregiver_hire_uniq"

	paymentColumns = `id, user_id, amount, kind, status, stripe_payment_id, marketplace_hire_id,
		description, metadata, created_at, updated_at`
)

// ErrDuplicateHirePayment is returned when a second caregiver payment is
// created for the same marketplace hire.
var ErrDuplicateHirePayment = errors.New("caregiver payment for hire already exists")

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a new payment record within a database transaction.
func (r *PaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `INSERT INTO payments (id, user_id, amount, kind, status, stripe_payment_id, marketplace_hire_id,
		description, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	_, err := tx.Exec(ctx, query,
		p.ID, p.UserID, p.Amount, p.Kind, p.Status, p.StripePaymentID, p.MarketplaceHireID,
		p.Description, metadata, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, depositRefConstraint):
			return domain.ErrDuplicateExternalReference
		case isUniqueViolation(err, caregiverHireConstraint):
			return ErrDuplicateHirePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by UUID.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get payment by id: %w", err)
	}
	return p, nil
}

// GetByExternalReference fetches the most recent payment carrying ref.
func (r *PaymentRepo) GetByExternalReference(ctx context.Context, ref string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE stripe_payment_id = $1
		ORDER BY created_at DESC LIMIT 1`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, ref))
	if err != nil {
		return nil, fmt.Errorf("get payment by external reference: %w", err)
	}
	return p, nil
}

// ExistsByExternalReference reports whether any payment carries ref.
func (r *PaymentRepo) ExistsByExternalReference(ctx context.Context, ref string) (bool, error) {
	return existsByRef(ctx, r.pool, ref)
}

// ExistsByExternalReferenceTx is the in-transaction variant used to re-check
// the idempotency key inside the mutation's atomic scope.
func (r *PaymentRepo) ExistsByExternalReferenceTx(ctx context.Context, tx pgx.Tx, ref string) (bool, error) {
	return existsByRef(ctx, tx, ref)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func existsByRef(ctx context.Context, q rowQuerier, ref string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM payments WHERE stripe_payment_id = $1)`

	var exists bool
	if err := q.QueryRow(ctx, query, ref).Scan(&exists); err != nil {
		return false, fmt.Errorf("check payment reference exists: %w", err)
	}
	return exists, nil
}

// GetCaregiverPaymentByHire fetches the single caregiver payment for a hire.
func (r *PaymentRepo) GetCaregiverPaymentByHire(ctx context.Context, hireID uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE marketplace_hire_id = $1 AND kind = 'CAREGIVER_PAYMENT'`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, hireID))
	if err != nil {
		return nil, fmt.Errorf("get caregiver payment by hire: %w", err)
	}
	return p, nil
}

// MarkProcessing moves a payout to PROCESSING with the accepted transfer id.
// It is a compare-and-set on updated_at so a concurrent dispatch or a
// reconciliation that already touched the row wins.
func (r *PaymentRepo) MarkProcessing(ctx context.Context, tx pgx.Tx, cmd ports.MarkProcessingCommand) (bool, error) {
	query := `UPDATE payments
		SET status = 'PROCESSING', stripe_payment_id = $1, amount = $2, updated_at = NOW()
		WHERE id = $3 AND updated_at = $4 AND status <> 'COMPLETED'`

	tag, err := tx.Exec(ctx, query, cmd.TransferID, cmd.Amount, cmd.PaymentID, cmd.ExpectedUpdatedAt)
	if err != nil {
		return false, fmt.Errorf("mark payment processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatusWhere applies status to every payment matching the filter.
func (r *PaymentRepo) UpdateStatusWhere(ctx context.Context, tx pgx.Tx, match domain.PaymentMatch, status domain.PaymentStatus, backfillRef *string) (int64, error) {
	sets := []string{"status = $1", "updated_at = NOW()"}
	args := []any{status}
	argIdx := 2

	if backfillRef != nil {
		sets = append(sets, fmt.Sprintf("stripe_payment_id = $%d", argIdx))
		args = append(args, *backfillRef)
		argIdx++
	}

	conditions := []string{fmt.Sprintf("kind = $%d", argIdx)}
	args = append(args, match.Kind)
	argIdx++

	switch {
	case match.StripePaymentID != nil:
		conditions = append(conditions, fmt.Sprintf("stripe_payment_id = $%d", argIdx))
		args = append(args, *match.StripePaymentID)
	case match.MarketplaceHireID != nil:
		conditions = append(conditions, fmt.Sprintf("marketplace_hire_id = $%d", argIdx))
		args = append(args, *match.MarketplaceHireID)
	default:
		return 0, fmt.Errorf("update payment status: match has no key")
	}

	if match.ExcludeTerminal {
		conditions = append(conditions, "status NOT IN ('COMPLETED', 'FAILED')")
	}

	query := fmt.Sprintf("UPDATE payments SET %s WHERE %s",
		strings.Join(sets, ", "), strings.Join(conditions, " AND "))

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update payment status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByUser returns the user's most recent payments.
func (r *PaymentRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.Amount, &p.Kind, &p.Status, &p.StripePaymentID, &p.MarketplaceHireID,
		&p.Description, &p.Metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
