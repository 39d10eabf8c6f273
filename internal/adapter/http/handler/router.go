package handler

import (
	"care-ledger/internal/adapter/http/middleware"
	redisStore "care-ledger/internal/adapter/storage/redis"
	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"
	"care-ledger/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const defaultMaxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WebhookProcessor ports.WebhookProcessor
	PayoutSvc        ports.PayoutService
	WalletSvc        ports.WalletService
	TokenSvc         ports.TokenService
	Resolver         ports.PrincipalResolver
	RateLimitStore   *redisStore.RateLimitStore // nil = rate limiting disabled
	RateLimit        middleware.RateLimitRule
	AuditSvc         ports.AuditService // nil = audit logging disabled
	Metrics          *metrics.LedgerMetrics
	MetricsGatherer  prometheus.Gatherer // nil = no /metrics route
	MetricsPath      string
	HealthCheckers   []ports.HealthChecker
	MaxBodyBytes     int64
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(middleware.MaxBodySize(maxBody))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep: PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if deps.MetricsGatherer != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(deps.MetricsGatherer, promhttp.HandlerOpts{})))
	}

	rl := func(group string) gin.HandlerFunc {
		return middleware.RateLimiter(deps.RateLimitStore, group, deps.RateLimit, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Processor webhooks (signature-authenticated, not rate limited) ---
	webhookHandler := NewWebhookHandler(deps.WebhookProcessor)
	v1.POST("/webhooks/stripe", webhookHandler.Receive)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Resolver, deps.Logger)

	payoutHandler := NewPayoutHandler(deps.PayoutSvc)
	timesheets := v1.Group("/timesheets", jwtAuth, middleware.RequireRole(domain.RoleOperator))
	{
		timesheets.POST("/:id/pay", rl("payouts"), payoutHandler.Pay)
	}

	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallet := v1.Group("/wallet", jwtAuth, middleware.RequireRole(domain.RoleFamily))
	{
		wallet.GET("", walletHandler.GetWallet)
		wallet.POST("/deposits", rl("deposit_intents"), walletHandler.CreateDeposit)
	}

	admin := v1.Group("/admin", jwtAuth, middleware.RequireRole(domain.RoleAdmin))
	{
		admin.GET("/ledger/audit/:walletId", walletHandler.AuditBalance)
	}

	return r
}
