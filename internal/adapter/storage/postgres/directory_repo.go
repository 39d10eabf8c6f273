package postgres

import (
	"context"
	"errors"
	"fmt"

	"care-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DirectoryRepo implements ports.DirectoryRepository.
type DirectoryRepo struct {
	pool Pool
}

// NewDirectoryRepo creates a new DirectoryRepo.
func NewDirectoryRepo(pool Pool) *DirectoryRepo {
	return &DirectoryRepo{pool: pool}
}

// GetFamily returns nil, nil when the family does not exist.
func (r *DirectoryRepo) GetFamily(ctx context.Context, id uuid.UUID) (*domain.Family, error) {
	f := &domain.Family{}
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM families WHERE id = $1`, id).Scan(&f.ID, &f.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

// GetUser returns nil, nil when the user does not exist.
func (r *DirectoryRepo) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT id, email, role, family_id, operator_id FROM users WHERE id = $1`

	u := &domain.User{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email, &u.Role, &u.FamilyID, &u.OperatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
