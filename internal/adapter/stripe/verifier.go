package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"care-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// WebhookVerifier implements ports.WebhookVerifier. With an empty secret
// it skips verification; that mode exists for local development only.
type WebhookVerifier struct {
	secret string
	log    zerolog.Logger
}

// NewWebhookVerifier creates a verifier. An empty secret is logged loudly.
func NewWebhookVerifier(secret string, log zerolog.Logger) *WebhookVerifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		log.Warn().Msg("stripe webhook secret not configured: signature verification is DISABLED")
	}
	return &WebhookVerifier{secret: secret, log: log}
}

// Parse authenticates payload and decodes it into a typed processor event.
func (v *WebhookVerifier) Parse(payload []byte, signatureHeader string) (*domain.ProcessorEvent, error) {
	event, err := v.construct(payload, signatureHeader)
	if err != nil {
		return nil, err
	}

	pe := &domain.ProcessorEvent{ID: event.ID, Type: string(event.Type)}

	switch {
	case pe.Type == domain.EventPaymentIntentSucceeded:
		pe.Deposit, err = v.depositFromEvent(&event)
	case domain.IsTransferEvent(pe.Type):
		pe.Transfer, err = v.transferFromEvent(&event)
	}
	if err != nil {
		return nil, err
	}
	return pe, nil
}

func (v *WebhookVerifier) construct(payload []byte, signatureHeader string) (stripe.Event, error) {
	if v.secret == "" {
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return stripe.Event{}, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
		}
		return event, nil
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isSignatureError(err) {
			return stripe.Event{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		}
		return stripe.Event{}, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	return event, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func (v *WebhookVerifier) depositFromEvent(event *stripe.Event) (*domain.DepositEvent, error) {
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event data missing", domain.ErrMalformedEvent)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: decode payment intent: %v", domain.ErrMalformedEvent, err)
	}
	if pi.ID == "" || pi.Amount <= 0 {
		return nil, fmt.Errorf("%w: payment intent id or amount missing", domain.ErrMalformedEvent)
	}

	familyID, ok := metadataUUID(pi.Metadata, domain.MetaFamilyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingMetadata, domain.MetaFamilyID)
	}
	userID, ok := metadataUUID(pi.Metadata, domain.MetaUserID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingMetadata, domain.MetaUserID)
	}

	d := &domain.DepositEvent{
		PaymentIntentID: pi.ID,
		AmountMinor:     pi.Amount,
		FamilyID:        familyID,
		UserID:          userID,
	}
	if walletID, ok := v.optionalUUID(event.ID, pi.Metadata, domain.MetaWalletID); ok {
		d.WalletID = &walletID
	}
	if desc := strings.TrimSpace(pi.Description); desc != "" {
		d.Description = &desc
	}
	return d, nil
}

func (v *WebhookVerifier) transferFromEvent(event *stripe.Event) (*domain.TransferEvent, error) {
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event data missing", domain.ErrMalformedEvent)
	}
	var tr stripe.Transfer
	if err := json.Unmarshal(event.Data.Raw, &tr); err != nil {
		return nil, fmt.Errorf("%w: decode transfer: %v", domain.ErrMalformedEvent, err)
	}
	if tr.ID == "" {
		return nil, fmt.Errorf("%w: transfer id missing", domain.ErrMalformedEvent)
	}

	t := &domain.TransferEvent{
		TransferID: tr.ID,
		EventType:  string(event.Type),
		Metadata:   tr.Metadata,
	}
	if hireID, ok := v.optionalUUID(event.ID, tr.Metadata, domain.MetaHireID); ok {
		t.HireID = &hireID
	}
	return t, nil
}

func metadataUUID(md map[string]string, key string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(md[key])
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUID reads a metadata id that the event may omit. A value that is
// present but not a UUID is dropped with a warning.
func (v *WebhookVerifier) optionalUUID(eventID string, md map[string]string, key string) (uuid.UUID, bool) {
	id, ok := metadataUUID(md, key)
	if !ok && strings.TrimSpace(md[key]) != "" {
		v.log.Warn().
			Str("event_id", eventID).
			Str("key", key).
			Str("value", md[key]).
			Msg("discarding unparseable metadata id")
	}
	return id, ok
}
