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

// WalletHandler handles family wallet endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// CreateDeposit handles POST /api/v1/wallet/deposits.
func (h *WalletHandler) CreateDeposit(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	var req dto.DepositIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	intent, err := h.walletSvc.CreateDepositIntent(c.Request.Context(), principal, ports.DepositIntentRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Flat(c, http.StatusCreated, dto.DepositIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.PaymentIntentID,
	})
}

// GetWallet handles GET /api/v1/wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	view, err := h.walletSvc.GetWallet(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToWalletResponse(view))
}

// AuditBalance handles GET /api/v1/admin/ledger/audit/:walletId.
func (h *WalletHandler) AuditBalance(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("walletId"))
	if err != nil {
		response.Error(c, apperror.ErrNotFound("Wallet"))
		return
	}

	audit, err := h.walletSvc.AuditBalance(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToBalanceAuditResponse(audit))
}
