package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/transfer"
)

// api is the subset of Stripe resources the gateway calls. It exists so the
// gateway's parameter building can be tested without the network.
type api interface {
	NewCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	NewPaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	NewTransfer(ctx context.Context, params *stripe.TransferParams) (*stripe.Transfer, error)
	GetAccount(ctx context.Context, id string, params *stripe.AccountParams) (*stripe.Account, error)
}

type liveAPI struct{}

func (liveAPI) NewCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	params.Context = ctx
	return customer.New(params)
}

func (liveAPI) NewPaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	params.Context = ctx
	return paymentintent.New(params)
}

func (liveAPI) NewTransfer(ctx context.Context, params *stripe.TransferParams) (*stripe.Transfer, error) {
	params.Context = ctx
	return transfer.New(params)
}

func (liveAPI) GetAccount(ctx context.Context, id string, params *stripe.AccountParams) (*stripe.Account, error) {
	params.Context = ctx
	return account.GetByID(id, params)
}
