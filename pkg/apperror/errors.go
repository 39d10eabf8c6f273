package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string         `json:"error_code"`
	Message    string         `json:"error"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"` // Wrapped internal error (not exposed to client)
	Details    map[string]any `json:"-"` // Extra fields merged into the response body
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail returns a copy of the error carrying an extra response field.
func (e *AppError) WithDetail(key string, value any) *AppError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Authentication & Authorization (AUTH) ----

func ErrUnauthorized() *AppError {
	return New("AUTH_001", "Unauthorized", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_002", "Forbidden", http.StatusForbidden)
}

// ---- Payout Dispatch (PAYOUT) ----

func ErrTimesheetNotFound() *AppError {
	return New("PAYOUT_001", "Timesheet not found", http.StatusNotFound)
}

func ErrTimesheetNotOwned() *AppError {
	return New("PAYOUT_002", "You do not have permission to pay this timesheet", http.StatusForbidden)
}

func ErrTimesheetNotApproved(status string) *AppError {
	return New("PAYOUT_003", "Timesheet must be approved before payment", http.StatusConflict).
		WithDetail("status", status)
}

func ErrNoMarketplaceHire() *AppError {
	return New("PAYOUT_004", "No marketplace hire found for this timesheet", http.StatusConflict)
}

func ErrAlreadyPaid(paymentID string, stripePaymentID string) *AppError {
	return New("PAYOUT_005", "This timesheet has already been paid", http.StatusConflict).
		WithDetail("paymentId", paymentID).
		WithDetail("stripePaymentId", stripePaymentID)
}

func ErrPayoutAccountMissing() *AppError {
	return New("PAYOUT_006", "Caregiver has not configured a payout account", http.StatusBadRequest)
}

func ErrPayoutsNotEnabled() *AppError {
	return New("PAYOUT_007", "Caregiver payout account is not enabled for payouts", http.StatusBadRequest)
}

func ErrNoBillableHours() *AppError {
	return New("PAYOUT_008", "Timesheet has no billable hours", http.StatusBadRequest)
}

func ErrPayoutStateChanged(paymentID string, status string) *AppError {
	return New("PAYOUT_009", "Payment record changed during dispatch, retry the payout", http.StatusConflict).
		WithDetail("paymentId", paymentID).
		WithDetail("status", status)
}

// ---- Processor Webhooks (HOOK) ----

func ErrInvalidSignature() *AppError {
	return New("HOOK_001", "Invalid webhook signature", http.StatusBadRequest)
}

func ErrMissingMetadata() *AppError {
	return New("HOOK_002", "Missing required metadata", http.StatusBadRequest)
}

func ErrMalformedPayload() *AppError {
	return New("HOOK_003", "Malformed webhook payload", http.StatusBadRequest)
}

// ---- Payment Business Logic (PAY) ----

func ErrInvalidAmount() *AppError {
	return New("PAY_002", "Invalid amount", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_004", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrProcessorFailure(err error) *AppError {
	return Wrap("SYS_004", "Payment processor error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a PAY_002-style validation error.
func Validation(message string) *AppError {
	return New("PAY_002", message, http.StatusBadRequest)
}
