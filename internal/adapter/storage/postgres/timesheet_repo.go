package postgres

import (
	"context"
	"errors"
	"fmt"

	"care-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TimesheetRepo implements ports.TimesheetRepository over tables owned by
// the scheduling subsystem. It only reads.
type TimesheetRepo struct {
	pool Pool
}

// NewTimesheetRepo creates a new TimesheetRepo.
func NewTimesheetRepo(pool Pool) *TimesheetRepo {
	return &TimesheetRepo{pool: pool}
}

// GetPayoutContext loads the timesheet with its shift, home and hire.
// Returns nil, nil if the timesheet does not exist.
func (r *TimesheetRepo) GetPayoutContext(ctx context.Context, timesheetID uuid.UUID) (*domain.PayoutContext, error) {
	query := `SELECT t.id, s.id, h.id, h.operator_id, t.status, t.start_time, t.end_time, t.break_minutes,
			s.hourly_rate, mh.id, mh.caregiver_id
		FROM timesheets t
		JOIN shifts s ON s.id = t.shift_id
		JOIN homes h ON h.id = s.home_id
		LEFT JOIN marketplace_hires mh ON mh.shift_id = s.id
		WHERE t.id = $1`

	pc := &domain.PayoutContext{}
	err := r.pool.QueryRow(ctx, query, timesheetID).Scan(
		&pc.TimesheetID, &pc.ShiftID, &pc.HomeID, &pc.HomeOperatorID, &pc.Status,
		&pc.StartTime, &pc.EndTime, &pc.BreakMinutes, &pc.HourlyRate, &pc.HireID, &pc.CaregiverID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payout context: %w", err)
	}
	return pc, nil
}
