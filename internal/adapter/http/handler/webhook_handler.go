package handler

import (
	"io"
	"net/http"

	"care-ledger/internal/adapter/http/dto"
	"care-ledger/internal/core/ports"
	"care-ledger/pkg/apperror"
	"care-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// SignatureHeader carries the processor's webhook signature.
const SignatureHeader = "Stripe-Signature"

// WebhookHandler receives processor webhook deliveries.
type WebhookHandler struct {
	processor ports.WebhookProcessor
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(processor ports.WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// Receive handles POST /api/v1/webhooks/stripe.
// The body is read raw because the signature covers the exact bytes.
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.ErrMalformedPayload())
		return
	}

	result, err := h.processor.Process(c.Request.Context(), payload, c.GetHeader(SignatureHeader))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Flat(c, http.StatusOK, ackFor(result.Outcome))
}

func ackFor(outcome ports.WebhookOutcome) dto.WebhookAck {
	ack := dto.WebhookAck{Received: true}
	switch outcome {
	case ports.WebhookApplied, ports.WebhookReconciled:
		ack.Success = true
	case ports.WebhookDuplicate:
		ack.Message = "Payment already processed"
	case ports.WebhookUnmatched:
		ack.Message = "No matching payment found"
	default:
		ack.Message = "Ignored event type"
	}
	return ack
}
