package middleware

import (
	"net/http"
	"strings"
	"time"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"
	"care-ledger/pkg/apperror"
	"care-ledger/pkg/metrics"
	"care-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxRequestID = "request_id"
	CtxPrincipal = "principal"
)

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// JWTAuth validates the bearer token and stores the resolved caller in the
// context. Missing or invalid tokens are rejected with 401.
func JWTAuth(tokenSvc ports.TokenService, resolver ports.PrincipalResolver, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenStr == "" {
			response.AbortWithError(c, apperror.ErrUnauthorized())
			return
		}

		principal, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("bearer token rejected")
			response.AbortWithError(c, apperror.ErrUnauthorized())
			return
		}

		resolved, err := resolver.Resolve(c.Request.Context(), *principal)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		c.Set(CtxPrincipal, resolved)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles with 403.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			response.AbortWithError(c, apperror.ErrUnauthorized())
			return
		}
		for _, r := range roles {
			if principal.HasRole(r) {
				c.Next()
				return
			}
		}
		response.AbortWithError(c, apperror.ErrForbidden())
	}
}

// GetPrincipal returns the caller stored by JWTAuth.
func GetPrincipal(c *gin.Context) (domain.Principal, bool) {
	v, exists := c.Get(CtxPrincipal)
	if !exists {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}

// RequestLogger creates a middleware that logs every HTTP request and
// records its latency. m may be nil.
func RequestLogger(log zerolog.Logger, m *metrics.LedgerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		m.ObserveHTTP(c.Request.Method, c.FullPath(), status, latency)

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			event = event.Str("errors", errs.String())
		}

		event.
			Str("request_id", c.GetString(CtxRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"error":      "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
