package service

import (
	"context"
	"errors"
	"fmt"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"
	"care-ledger/pkg/apperror"
	"care-ledger/pkg/metrics"

	"github.com/rs/zerolog"
)

// WebhookProcessorImpl implements ports.WebhookProcessor: verify, route by
// event type, guard idempotency, then apply.
type WebhookProcessorImpl struct {
	verifier   ports.WebhookVerifier
	guard      ports.IdempotencyGuard
	mutator    ports.WalletMutator
	reconciler ports.TransferReconciler
	metrics    *metrics.LedgerMetrics
	log        zerolog.Logger
}

// NewWebhookProcessor creates a new WebhookProcessorImpl. m may be nil.
func NewWebhookProcessor(
	verifier ports.WebhookVerifier,
	guard ports.IdempotencyGuard,
	mutator ports.WalletMutator,
	reconciler ports.TransferReconciler,
	m *metrics.LedgerMetrics,
	log zerolog.Logger,
) *WebhookProcessorImpl {
	return &WebhookProcessorImpl{
		verifier:   verifier,
		guard:      guard,
		mutator:    mutator,
		reconciler: reconciler,
		metrics:    m,
		log:        log,
	}
}

// Process handles one webhook delivery. Client-data problems come back as
// 4xx AppErrors; anything transient is a 5xx so the processor redelivers.
func (p *WebhookProcessorImpl) Process(ctx context.Context, payload []byte, signatureHeader string) (*ports.WebhookResult, error) {
	event, err := p.verifier.Parse(payload, signatureHeader)
	if err != nil {
		p.metrics.IncWebhookEvent("unknown", "rejected")
		return nil, p.mapParseError(err)
	}

	result := &ports.WebhookResult{EventID: event.ID, EventType: event.Type}

	switch {
	case event.Deposit != nil:
		err = p.processDeposit(ctx, event.Deposit, result)
	case event.Transfer != nil:
		err = p.processTransfer(ctx, event.Transfer, result)
	default:
		result.Outcome = ports.WebhookIgnored
	}
	if err != nil {
		p.metrics.IncWebhookEvent(event.Type, "error")
		return nil, err
	}

	p.metrics.IncWebhookEvent(event.Type, string(result.Outcome))
	p.log.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("outcome", string(result.Outcome)).
		Msg("webhook processed")
	return result, nil
}

func (p *WebhookProcessorImpl) processDeposit(ctx context.Context, d *domain.DepositEvent, result *ports.WebhookResult) error {
	applied, err := p.guard.HasBeenApplied(ctx, d.PaymentIntentID)
	if err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if applied {
		result.Outcome = ports.WebhookDuplicate
		return nil
	}

	payment, err := p.mutator.ApplyDeposit(ctx, ports.DepositCommand{
		UserID:            d.UserID,
		FamilyID:          d.FamilyID,
		WalletID:          d.WalletID,
		Amount:            d.Amount(),
		ExternalReference: d.PaymentIntentID,
		Description:       d.Description,
	})
	if err != nil {
		// Lost the race with a concurrent delivery of the same event.
		if errors.Is(err, domain.ErrDuplicateExternalReference) {
			result.Outcome = ports.WebhookDuplicate
			return nil
		}
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperror.InternalError(fmt.Errorf("apply deposit: %w", err))
	}

	p.guard.MarkApplied(ctx, d.PaymentIntentID)
	result.Outcome = ports.WebhookApplied
	result.PaymentID = &payment.ID
	return nil
}

func (p *WebhookProcessorImpl) processTransfer(ctx context.Context, t *domain.TransferEvent, result *ports.WebhookResult) error {
	rec, err := p.reconciler.Reconcile(ctx, t)
	if err != nil {
		return err
	}
	switch {
	case !rec.Recognized:
		result.Outcome = ports.WebhookIgnored
	case !rec.Matched:
		result.Outcome = ports.WebhookUnmatched
	default:
		result.Outcome = ports.WebhookReconciled
	}
	return nil
}

func (p *WebhookProcessorImpl) mapParseError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		p.log.Warn().Err(err).Msg("webhook signature verification failed")
		return apperror.ErrInvalidSignature()
	case errors.Is(err, domain.ErrMissingMetadata):
		p.log.Warn().Err(err).Msg("webhook rejected: missing required metadata")
		return apperror.ErrMissingMetadata()
	case errors.Is(err, domain.ErrMalformedEvent):
		p.log.Warn().Err(err).Msg("webhook rejected: malformed payload")
		return apperror.ErrMalformedPayload()
	default:
		return apperror.InternalError(err)
	}
}
