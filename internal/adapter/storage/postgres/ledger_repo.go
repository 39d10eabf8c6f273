package postgres

import (
	"context"
	"fmt"

	"care-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerRepository. Entries are never updated
// or deleted.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Create appends a ledger entry within the caller's transaction.
func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerTransaction) error {
	query := `INSERT INTO ledger_transactions (id, wallet_id, payment_id, kind, status, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		entry.ID, entry.WalletID, entry.PaymentID, entry.Kind, entry.Status, entry.Amount, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger transaction: %w", err)
	}
	return nil
}

// ListByWallet returns the wallet's most recent entries, newest first.
func (r *LedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]domain.LedgerTransaction, error) {
	query := `SELECT id, wallet_id, payment_id, kind, status, amount, created_at
		FROM ledger_transactions WHERE wallet_id = $1
		ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger transactions: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerTransaction
	for rows.Next() {
		var e domain.LedgerTransaction
		if err := rows.Scan(&e.ID, &e.WalletID, &e.PaymentID, &e.Kind, &e.Status, &e.Amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}

// SumCompletedByWallet returns the signed sum of COMPLETED entries, which
// must equal the wallet's stored balance.
func (r *LedgerRepo) SumCompletedByWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(CASE WHEN kind = 'WITHDRAWAL' THEN -amount ELSE amount END), 0)
		FROM ledger_transactions WHERE wallet_id = $1 AND status = 'COMPLETED'`

	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, walletID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger transactions: %w", err)
	}
	return sum, nil
}
