package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"
	"care-ledger/pkg/apperror"
	"care-ledger/pkg/metrics"
	"care-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// PayoutServiceImpl implements ports.PayoutService.
type PayoutServiceImpl struct {
	timesheets  ports.TimesheetRepository
	payments    ports.PaymentRepository
	preferences ports.CaregiverPreferenceRepository
	processor   ports.PaymentProcessor
	uow         ports.UnitOfWork
	events      ports.EventPublisher
	metrics     *metrics.LedgerMetrics
	currency    string
	log         zerolog.Logger
}

// NewPayoutService creates a new PayoutServiceImpl.
func NewPayoutService(
	timesheets ports.TimesheetRepository,
	payments ports.PaymentRepository,
	preferences ports.CaregiverPreferenceRepository,
	processor ports.PaymentProcessor,
	uow ports.UnitOfWork,
	events ports.EventPublisher,
	m *metrics.LedgerMetrics,
	currency string,
	log zerolog.Logger,
) *PayoutServiceImpl {
	return &PayoutServiceImpl{
		timesheets:  timesheets,
		payments:    payments,
		preferences: preferences,
		processor:   processor,
		uow:         uow,
		events:      events,
		metrics:     m,
		currency:    currency,
		log:         log,
	}
}

// Dispatch pays the caregiver for an approved timesheet. Each precondition
// short-circuits with its own error. The payment record only moves to
// PROCESSING after the processor has accepted the transfer.
func (s *PayoutServiceImpl) Dispatch(ctx context.Context, principal domain.Principal, timesheetID uuid.UUID) (*ports.PayoutResult, error) {
	res, err := s.dispatch(ctx, principal, timesheetID)
	if err != nil {
		s.metrics.IncPayoutDispatch(dispatchOutcome(err))
		return nil, err
	}
	s.metrics.IncPayoutDispatch("dispatched")
	return res, nil
}

func (s *PayoutServiceImpl) dispatch(ctx context.Context, principal domain.Principal, timesheetID uuid.UUID) (*ports.PayoutResult, error) {
	if principal.UserID == uuid.Nil {
		return nil, apperror.ErrUnauthorized()
	}
	if !principal.HasRole(domain.RoleOperator) {
		return nil, apperror.ErrForbidden()
	}

	pc, err := s.timesheets.GetPayoutContext(ctx, timesheetID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load timesheet: %w", err))
	}
	if pc == nil {
		return nil, apperror.ErrTimesheetNotFound()
	}
	if principal.OperatorID == nil || *principal.OperatorID != pc.HomeOperatorID {
		return nil, apperror.ErrTimesheetNotOwned()
	}
	if pc.Status != domain.TimesheetStatusApproved {
		return nil, apperror.ErrTimesheetNotApproved(string(pc.Status))
	}
	if !pc.HasHire() {
		return nil, apperror.ErrNoMarketplaceHire()
	}

	existing, err := s.payments.GetCaregiverPaymentByHire(ctx, *pc.HireID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load payment for hire: %w", err))
	}
	if existing != nil && existing.Status == domain.PaymentStatusCompleted {
		return nil, apperror.ErrAlreadyPaid(existing.ID.String(), existing.ExternalReference())
	}

	account, err := s.preferences.GetPayoutAccount(ctx, *pc.CaregiverID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load payout account: %w", err))
	}
	if account == "" {
		return nil, apperror.ErrPayoutAccountMissing()
	}

	// Re-checked on every attempt: the account can change between attempts.
	enabled, err := s.processor.PayoutsEnabled(ctx, account)
	if err != nil {
		return nil, apperror.ErrProcessorFailure(err)
	}
	if !enabled {
		return nil, apperror.ErrPayoutsNotEnabled()
	}

	record, err := s.preparePayment(ctx, principal, pc, existing)
	if err != nil {
		return nil, err
	}

	// A transfer is already in flight for this record; a new one would pay
	// the caregiver twice.
	if record.Status == domain.PaymentStatusProcessing && record.ExternalReference() != "" {
		s.log.Info().
			Str("payment_id", record.ID.String()).
			Str("transfer_id", record.ExternalReference()).
			Msg("payout already in flight")
		return &ports.PayoutResult{TransferID: record.ExternalReference(), PaymentID: record.ID}, nil
	}

	minor, err := money.ToMinorUnits(record.Amount)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("convert payout amount: %w", err))
	}

	metadata := payoutMetadata(pc)
	metadata[domain.MetaPaymentID] = record.ID.String()

	transfer, err := s.processor.CreateTransfer(ctx, ports.TransferRequest{
		AmountMinor:    minor,
		Currency:       s.currency,
		Destination:    account,
		IdempotencyKey: transferIdempotencyKey(record),
		Metadata:       metadata,
	})
	if err != nil {
		s.log.Error().Err(err).
			Str("payment_id", record.ID.String()).
			Str("timesheet_id", timesheetID.String()).
			Msg("transfer creation failed, payment left unchanged")
		return nil, apperror.ErrProcessorFailure(err)
	}

	var marked bool
	err = s.uow.WithinTx(ctx, func(tx pgx.Tx) error {
		var err error
		marked, err = s.payments.MarkProcessing(ctx, tx, ports.MarkProcessingCommand{
			PaymentID:         record.ID,
			TransferID:        transfer.ID,
			Amount:            record.Amount,
			ExpectedUpdatedAt: record.UpdatedAt,
		})
		return err
	})
	if err != nil {
		// The transfer exists; a retry reuses the idempotency key and the
		// reconciler's hire fallback backfills the reference.
		s.log.Error().Err(err).
			Str("payment_id", record.ID.String()).
			Str("transfer_id", transfer.ID).
			Msg("failed to record accepted transfer")
		return nil, apperror.ErrDatabaseError(err)
	}
	if !marked {
		return s.recordedOutcome(ctx, record.ID, transfer.ID)
	}

	s.log.Info().
		Str("payment_id", record.ID.String()).
		Str("transfer_id", transfer.ID).
		Str("timesheet_id", timesheetID.String()).
		Str("amount", record.Amount.StringFixed(2)).
		Msg("payout dispatched")

	attrs := payoutMetadata(pc)
	attrs["paymentId"] = record.ID.String()
	attrs["transferId"] = transfer.ID
	attrs["amount"] = record.Amount.StringFixed(2)
	_ = s.events.Publish(ctx, domain.LedgerEvent{
		Type:       domain.LedgerEventPayoutDispatched,
		Key:        record.ID.String(),
		Attributes: attrs,
	})

	return &ports.PayoutResult{TransferID: transfer.ID, PaymentID: record.ID}, nil
}

// preparePayment returns the record the transfer is made for. There is at
// most one caregiver payment per hire: PENDING and PROCESSING records keep
// their amount, a FAILED one is retried with a recomputed amount, and a new
// record is created PENDING.
func (s *PayoutServiceImpl) preparePayment(ctx context.Context, principal domain.Principal, pc *domain.PayoutContext, existing *domain.Payment) (*domain.Payment, error) {
	if existing != nil && existing.Status != domain.PaymentStatusFailed {
		return existing, nil
	}

	amount := money.HoursTimesRate(pc.WorkedDuration(), pc.HourlyRate)
	if money.ValidatePositive(amount) != nil {
		return nil, apperror.ErrNoBillableHours()
	}

	if existing != nil {
		record := *existing
		record.Amount = amount
		return &record, nil
	}

	// timestamptz keeps microseconds; the record must read back unchanged.
	now := time.Now().UTC().Truncate(time.Microsecond)
	hireID := *pc.HireID
	desc := fmt.Sprintf("Caregiver payment for timesheet %s", pc.TimesheetID)
	record := &domain.Payment{
		ID:                uuid.New(),
		UserID:            principal.UserID,
		Amount:            amount,
		Kind:              domain.PaymentKindCaregiverPayment,
		Status:            domain.PaymentStatusPending,
		MarketplaceHireID: &hireID,
		Description:       &desc,
		Metadata:          payoutMetadata(pc),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.uow.WithinTx(ctx, func(tx pgx.Tx) error {
		return s.payments.Create(ctx, tx, record)
	})
	if err == nil {
		return record, nil
	}

	// A concurrent dispatch may have created the record first.
	current, getErr := s.payments.GetCaregiverPaymentByHire(ctx, hireID)
	if getErr != nil || current == nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create payout record: %w", err))
	}
	if current.Status == domain.PaymentStatusCompleted {
		return nil, apperror.ErrAlreadyPaid(current.ID.String(), current.ExternalReference())
	}
	return current, nil
}

// recordedOutcome answers a dispatch whose PROCESSING update lost to a
// concurrent writer, usually the reconciler. Only what the ledger stores is
// reported back.
func (s *PayoutServiceImpl) recordedOutcome(ctx context.Context, paymentID uuid.UUID, transferID string) (*ports.PayoutResult, error) {
	current, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("reload payout record: %w", err))
	}
	if current == nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("payout record %s not found after dispatch", paymentID))
	}

	s.log.Warn().
		Str("payment_id", paymentID.String()).
		Str("transfer_id", transferID).
		Str("stored_status", string(current.Status)).
		Str("stored_transfer_id", current.ExternalReference()).
		Msg("payment record changed during dispatch")

	switch {
	case current.Status == domain.PaymentStatusCompleted:
		return nil, apperror.ErrAlreadyPaid(current.ID.String(), current.ExternalReference())
	case current.Status == domain.PaymentStatusProcessing && current.ExternalReference() != "":
		return &ports.PayoutResult{TransferID: current.ExternalReference(), PaymentID: current.ID}, nil
	default:
		return nil, apperror.ErrPayoutStateChanged(current.ID.String(), string(current.Status))
	}
}

// transferIdempotencyKey is derived from the record as stored. Two dispatches
// that read the same record state share a key, so the processor creates one
// transfer.
func transferIdempotencyKey(p *domain.Payment) string {
	return fmt.Sprintf("payout:%s:%d", p.ID, p.UpdatedAt.Truncate(time.Microsecond).UnixNano())
}

func payoutMetadata(pc *domain.PayoutContext) map[string]string {
	return map[string]string{
		domain.MetaTimesheetID: pc.TimesheetID.String(),
		domain.MetaShiftID:     pc.ShiftID.String(),
		domain.MetaHireID:      pc.HireID.String(),
		domain.MetaOperatorID:  pc.HomeOperatorID.String(),
		domain.MetaCaregiverID: pc.CaregiverID.String(),
	}
}

func dispatchOutcome(err error) string {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return "error"
	}
	switch {
	case appErr.HTTPStatus >= 500:
		return "error"
	case appErr.Code == "PAYOUT_005":
		return "already_paid"
	default:
		return "rejected"
	}
}
