package handler

import (
	"net/http"

	"care-ledger/internal/adapter/http/dto"
	"care-ledger/internal/adapter/http/middleware"
	"care-ledger/internal/core/ports"
	"care-ledger/pkg/apperror"
	"care-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PayoutHandler handles caregiver payout endpoints.
type PayoutHandler struct {
	payoutSvc ports.PayoutService
}

// NewPayoutHandler creates a new PayoutHandler.
func NewPayoutHandler(payoutSvc ports.PayoutService) *PayoutHandler {
	return &PayoutHandler{payoutSvc: payoutSvc}
}

// Pay handles POST /api/v1/timesheets/:id/pay.
func (h *PayoutHandler) Pay(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	timesheetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// An id that cannot exist is reported like one that does not.
		response.Error(c, apperror.ErrTimesheetNotFound())
		return
	}

	result, err := h.payoutSvc.Dispatch(c.Request.Context(), principal, timesheetID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Flat(c, http.StatusOK, dto.PayoutResponse{
		Success:    true,
		TransferID: result.TransferID,
		PaymentID:  result.PaymentID.String(),
	})
}
