package postgres

import (
	"context"
	"errors"
	"fmt"

	"care-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, family_id, balance, stripe_customer_id, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// GetByID fetches a wallet by its UUID (without locking).
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByFamilyID fetches the family's wallet (non-locking read).
func (r *WalletRepo) GetByFamilyID(ctx context.Context, familyID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE family_id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, familyID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by family id: %w", err)
	}
	return w, nil
}

// GetByIDForUpdate fetches a wallet by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by id: %w", err)
	}
	return w, nil
}

// GetByFamilyIDForUpdate fetches the family's wallet with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByFamilyIDForUpdate(ctx context.Context, tx pgx.Tx, familyID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE family_id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, familyID))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by family: %w", err)
	}
	return w, nil
}

// CreateIfAbsent inserts a zero-balance wallet for the family. Concurrent
// callers race on the family_id unique constraint; the loser is a no-op.
func (r *WalletRepo) CreateIfAbsent(ctx context.Context, tx pgx.Tx, familyID uuid.UUID) error {
	query := `INSERT INTO wallets (id, family_id, balance, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		ON CONFLICT (family_id) DO NOTHING`

	if _, err := tx.Exec(ctx, query, uuid.New(), familyID); err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

// IncrementBalance adds delta to the balance in a single statement; the row
// must already be locked by the caller's transaction.
func (r *WalletRepo) IncrementBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta decimal.Decimal) error {
	query := `UPDATE wallets SET balance = balance + $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, delta, walletID)
	if err != nil {
		return fmt.Errorf("increment wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrWalletNotFound, walletID)
	}
	return nil
}

// SetCustomerReference stores the processor customer id if none is set.
func (r *WalletRepo) SetCustomerReference(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, customerID string) (bool, error) {
	query := `UPDATE wallets SET stripe_customer_id = $1, updated_at = NOW()
		WHERE id = $2 AND stripe_customer_id IS NULL`

	tag, err := tx.Exec(ctx, query, customerID, walletID)
	if err != nil {
		return false, fmt.Errorf("set wallet customer reference: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(&w.ID, &w.FamilyID, &w.Balance, &w.StripeCustomerID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
