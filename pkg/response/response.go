package response

import (
	"errors"
	"net/http"
	"time"

	"care-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the fixed part of every error body. Error details are
// merged alongside these keys at the top level.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data:      data,
		RequestID: getRequestID(c),
		Timestamp: now(),
	})
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data:      data,
		RequestID: getRequestID(c),
		Timestamp: now(),
	})
}

// Flat sends body as-is. Used by the processor-facing, payout and deposit
// intent endpoints, whose consumers expect top-level keys rather than the
// data envelope.
func Flat(c *gin.Context, status int, body interface{}) {
	c.JSON(status, body)
}

// Error sends an error response. It checks if err is an *apperror.AppError
// and maps it accordingly, otherwise returns 500.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, errorBody(c, appErr.Code, appErr.Message, appErr.Details))
		return
	}

	// Unknown error -> 500
	c.JSON(http.StatusInternalServerError, errorBody(c, "SYS_000", "Internal server error", nil))
}

// AbortWithError writes the error body and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

func errorBody(c *gin.Context, code, message string, details map[string]any) gin.H {
	body := gin.H{}
	for k, v := range details {
		body[k] = v
	}
	body["error"] = message
	body["error_code"] = code
	body["request_id"] = getRequestID(c)
	body["timestamp"] = now()
	return body
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// getRequestID retrieves request ID from context, or generates one.
func getRequestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
