package service

import (
	"context"
	"fmt"
	"strconv"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"
	"care-ledger/pkg/apperror"
	"care-ledger/pkg/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	matchByTransferID = "transfer_id"
	matchByHireID     = "hire_id"
)

// matchAttempt is one conditional update tried by the reconciler. Attempts
// run in order and the first one that touches a row wins.
type matchAttempt struct {
	name     string
	filter   domain.PaymentMatch
	backfill *string
}

// TransferReconcilerImpl implements ports.TransferReconciler.
type TransferReconcilerImpl struct {
	payments ports.PaymentRepository
	uow      ports.UnitOfWork
	events   ports.EventPublisher
	metrics  *metrics.LedgerMetrics
	log      zerolog.Logger
}

// NewTransferReconciler creates a new TransferReconcilerImpl.
func NewTransferReconciler(
	payments ports.PaymentRepository,
	uow ports.UnitOfWork,
	events ports.EventPublisher,
	m *metrics.LedgerMetrics,
	log zerolog.Logger,
) *TransferReconcilerImpl {
	return &TransferReconcilerImpl{
		payments: payments,
		uow:      uow,
		events:   events,
		metrics:  m,
		log:      log,
	}
}

// Reconcile applies a transfer status event. The transfer id is tried
// first; the hire id fallback covers a callback that arrives before the
// dispatcher recorded the transfer id, and backfills it.
func (r *TransferReconcilerImpl) Reconcile(ctx context.Context, event *domain.TransferEvent) (*ports.ReconcileResult, error) {
	status, ok := domain.TransferStatusFor(event.EventType)
	if !ok {
		return &ports.ReconcileResult{}, nil
	}

	result := &ports.ReconcileResult{Recognized: true, Status: status}
	attempts := matchAttempts(event, status)

	err := r.uow.WithinTx(ctx, func(tx pgx.Tx) error {
		for _, a := range attempts {
			n, err := r.payments.UpdateStatusWhere(ctx, tx, a.filter, status, a.backfill)
			if err != nil {
				return fmt.Errorf("%s: %w", a.name, err)
			}
			if n > 0 {
				result.Matched = true
				result.MatchedBy = a.name
				result.RowsAffected = n
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("reconcile transfer: %w", err))
	}

	logEvent := func(e *zerolog.Event) *zerolog.Event {
		e = e.Str("transfer_id", event.TransferID).Str("event_type", event.EventType)
		if event.HireID != nil {
			e = e.Str("hire_id", event.HireID.String())
		}
		return e
	}

	if !result.Matched {
		r.metrics.IncReconcileAnomaly()
		logEvent(r.log.Warn()).Msg("no matching payment found for transfer event")
		return result, nil
	}

	logEvent(r.log.Info()).
		Str("matched_by", result.MatchedBy).
		Str("status", string(status)).
		Msg("transfer reconciled")

	attrs := map[string]string{
		"transferId":   event.TransferID,
		"eventType":    event.EventType,
		"status":       string(status),
		"matchedBy":    result.MatchedBy,
		"rowsAffected": strconv.FormatInt(result.RowsAffected, 10),
	}
	if event.HireID != nil {
		attrs["hireId"] = event.HireID.String()
	}
	_ = r.events.Publish(ctx, domain.LedgerEvent{
		Type:       domain.LedgerEventTransferReconciled,
		Key:        event.TransferID,
		Attributes: attrs,
	})

	return result, nil
}

// matchAttempts builds the ordered update filters for event. A PROCESSING
// status never overwrites a terminal one, so a late transfer.created cannot
// undo a transfer.paid.
func matchAttempts(event *domain.TransferEvent, status domain.PaymentStatus) []matchAttempt {
	excludeTerminal := status == domain.PaymentStatusProcessing
	transferID := event.TransferID

	attempts := []matchAttempt{{
		name: matchByTransferID,
		filter: domain.PaymentMatch{
			Kind:            domain.PaymentKindCaregiverPayment,
			StripePaymentID: &transferID,
			ExcludeTerminal: excludeTerminal,
		},
	}}
	if event.HireID != nil {
		hireID := *event.HireID
		attempts = append(attempts, matchAttempt{
			name: matchByHireID,
			filter: domain.PaymentMatch{
				Kind:              domain.PaymentKindCaregiverPayment,
				MarketplaceHireID: &hireID,
				ExcludeTerminal:   excludeTerminal,
			},
			backfill: &transferID,
		})
	}
	return attempts
}
