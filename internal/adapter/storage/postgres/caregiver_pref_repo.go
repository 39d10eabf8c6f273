package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CaregiverPreferenceRepo implements ports.CaregiverPreferenceRepository.
type CaregiverPreferenceRepo struct {
	pool Pool
}

// NewCaregiverPreferenceRepo creates a new CaregiverPreferenceRepo.
func NewCaregiverPreferenceRepo(pool Pool) *CaregiverPreferenceRepo {
	return &CaregiverPreferenceRepo{pool: pool}
}

// GetPayoutAccount returns "" when the caregiver has no preferences row or
// has not connected a payout account.
func (r *CaregiverPreferenceRepo) GetPayoutAccount(ctx context.Context, caregiverID uuid.UUID) (string, error) {
	query := `SELECT payout_account_id FROM caregiver_preferences WHERE caregiver_id = $1`

	var account *string
	if err := r.pool.QueryRow(ctx, query, caregiverID).Scan(&account); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get payout account: %w", err)
	}
	if account == nil {
		return "", nil
	}
	return *account, nil
}
