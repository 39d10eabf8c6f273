package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"care-ledger/config"
	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
)

var errSecretKeyRequired = errors.New("stripe secret key is required")

// Gateway implements ports.PaymentProcessor on top of the Stripe API.
type Gateway struct {
	api api
	log zerolog.Logger
}

// NewGateway initializes Stripe once with the configured secret key.
func NewGateway(cfg config.StripeConfig, log zerolog.Logger) (*Gateway, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, errSecretKeyRequired
	}
	stripe.Key = key

	log.Info().
		Bool("live", strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live")).
		Msg("stripe gateway initialized")

	return &Gateway{api: liveAPI{}, log: log}, nil
}

// CreateCustomer registers the family's wallet as a Stripe customer.
func (g *Gateway) CreateCustomer(ctx context.Context, familyID, walletID uuid.UUID) (string, error) {
	params := &stripe.CustomerParams{}
	params.AddMetadata(domain.MetaFamilyID, familyID.String())
	params.AddMetadata(domain.MetaWalletID, walletID.String())

	c, err := g.api.NewCustomer(ctx, params)
	if err != nil {
		return "", g.wrap("create customer", err)
	}
	return c.ID, nil
}

// CreatePaymentIntent starts a deposit. The metadata is echoed back on the
// payment_intent.succeeded webhook.
func (g *Gateway) CreatePaymentIntent(ctx context.Context, req ports.PaymentIntentRequest) (*ports.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.Description != nil {
		params.Description = stripe.String(*req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.NewPaymentIntent(ctx, params)
	if err != nil {
		return nil, g.wrap("create payment intent", err)
	}
	return &ports.PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// CreateTransfer moves funds to a caregiver's connected account. The
// idempotency key makes a retried request collapse onto the first transfer.
func (g *Gateway) CreateTransfer(ctx context.Context, req ports.TransferRequest) (*ports.Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.Destination),
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	tr, err := g.api.NewTransfer(ctx, params)
	if err != nil {
		return nil, g.wrap("create transfer", err)
	}
	return &ports.Transfer{ID: tr.ID}, nil
}

// PayoutsEnabled reports whether the connected account can receive payouts.
func (g *Gateway) PayoutsEnabled(ctx context.Context, accountID string) (bool, error) {
	acct, err := g.api.GetAccount(ctx, accountID, &stripe.AccountParams{})
	if err != nil {
		return false, g.wrap("retrieve account", err)
	}
	return acct.PayoutsEnabled, nil
}

func (g *Gateway) wrap(op string, err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		g.log.Warn().
			Str("op", op).
			Str("type", string(serr.Type)).
			Str("code", string(serr.Code)).
			Str("request_id", serr.RequestID).
			Msg("stripe request failed")
	}
	return fmt.Errorf("stripe %s: %w", op, err)
}
