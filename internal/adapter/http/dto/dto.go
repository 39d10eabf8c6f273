package dto

import (
	"time"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"

	"github.com/shopspring/decimal"
)

// DepositIntentRequest is the request body for opening a wallet deposit.
// Amount accepts a JSON number or string.
type DepositIntentRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"money"`
	Currency    string          `json:"currency,omitempty" binding:"omitempty,currency"`
	Description *string         `json:"description,omitempty" binding:"omitempty,max=500"`
}

// DepositIntentResponse is returned to the client to confirm the payment.
type DepositIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// PayoutResponse is the body of a successful payout dispatch.
type PayoutResponse struct {
	Success    bool   `json:"success"`
	TransferID string `json:"transferId"`
	PaymentID  string `json:"paymentId"`
}

// WebhookAck acknowledges a processor webhook delivery.
type WebhookAck struct {
	Received bool   `json:"received"`
	Success  bool   `json:"success,omitempty"`
	Message  string `json:"message,omitempty"`
}

// TransactionResponse is a ledger entry as shown to the family.
type TransactionResponse struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Status    string  `json:"status"`
	Amount    string  `json:"amount"`
	PaymentID *string `json:"paymentId,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

// PaymentResponse is a payment record as shown to its initiating user.
type PaymentResponse struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	Status          string  `json:"status"`
	Amount          string  `json:"amount"`
	StripePaymentID *string `json:"stripePaymentId,omitempty"`
	Description     *string `json:"description,omitempty"`
	CreatedAt       string  `json:"createdAt"`
}

// WalletResponse is the response for the wallet query.
type WalletResponse struct {
	WalletID       string                `json:"walletId"`
	Balance        string                `json:"balance"`
	Transactions   []TransactionResponse `json:"transactions"`
	RecentPayments []PaymentResponse     `json:"recentPayments"`
}

// BalanceAuditResponse is the response for the ledger audit.
type BalanceAuditResponse struct {
	WalletID   string `json:"walletId"`
	Balance    string `json:"balance"`
	LedgerSum  string `json:"ledgerSum"`
	Consistent bool   `json:"consistent"`
}

// ToWalletResponse formats amounts with two decimal places.
func ToWalletResponse(v *ports.WalletView) WalletResponse {
	resp := WalletResponse{
		WalletID:       v.WalletID.String(),
		Balance:        formatAmount(v.Balance),
		Transactions:   make([]TransactionResponse, 0, len(v.Transactions)),
		RecentPayments: make([]PaymentResponse, 0, len(v.RecentPayments)),
	}
	for _, t := range v.Transactions {
		item := TransactionResponse{
			ID:        t.ID.String(),
			Kind:      string(t.Kind),
			Status:    string(t.Status),
			Amount:    formatAmount(t.Amount),
			CreatedAt: t.CreatedAt.Format(time.RFC3339),
		}
		if t.PaymentID != nil {
			id := t.PaymentID.String()
			item.PaymentID = &id
		}
		resp.Transactions = append(resp.Transactions, item)
	}
	for _, p := range v.RecentPayments {
		resp.RecentPayments = append(resp.RecentPayments, PaymentResponse{
			ID:              p.ID.String(),
			Kind:            string(p.Kind),
			Status:          string(p.Status),
			Amount:          formatAmount(p.Amount),
			StripePaymentID: p.StripePaymentID,
			Description:     p.Description,
			CreatedAt:       p.CreatedAt.Format(time.RFC3339),
		})
	}
	return resp
}

func ToBalanceAuditResponse(a *domain.BalanceAudit) BalanceAuditResponse {
	return BalanceAuditResponse{
		WalletID:   a.WalletID.String(),
		Balance:    formatAmount(a.Balance),
		LedgerSum:  formatAmount(a.LedgerSum),
		Consistent: a.Consistent,
	}
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
