package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrTimesheetNotFound = errors.New("timesheet not found")

// TimesheetStatus is owned by the scheduling subsystem; only APPROVED
// timesheets can be paid.
type TimesheetStatus string

const (
	TimesheetStatusDraft     TimesheetStatus = "DRAFT"
	TimesheetStatusSubmitted TimesheetStatus = "SUBMITTED"
	TimesheetStatusApproved  TimesheetStatus = "APPROVED"
	TimesheetStatusRejected  TimesheetStatus = "REJECTED"
)

// PayoutContext is the timesheet joined with its shift, home and (optional)
// marketplace hire: everything the payout precondition chain consults.
type PayoutContext struct {
	TimesheetID    uuid.UUID
	ShiftID        uuid.UUID
	HomeID         uuid.UUID
	HomeOperatorID uuid.UUID
	Status         TimesheetStatus
	StartTime      time.Time
	EndTime        time.Time
	BreakMinutes   int
	HourlyRate     decimal.Decimal
	HireID         *uuid.UUID
	CaregiverID    *uuid.UUID
}

// WorkedDuration is end - start - break, never negative.
func (c *PayoutContext) WorkedDuration() time.Duration {
	worked := c.EndTime.Sub(c.StartTime) - time.Duration(c.BreakMinutes)*time.Minute
	if worked < 0 {
		return 0
	}
	return worked
}

func (c *PayoutContext) HasHire() bool {
	return c.HireID != nil && c.CaregiverID != nil
}
