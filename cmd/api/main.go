package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"care-ledger/config"
	"care-ledger/internal/adapter/events/kafka"
	httpHandler "care-ledger/internal/adapter/http/handler"
	"care-ledger/internal/adapter/http/middleware"
	pgStorage "care-ledger/internal/adapter/storage/postgres"
	redisStorage "care-ledger/internal/adapter/storage/redis"
	stripeAdapter "care-ledger/internal/adapter/stripe"
	"care-ledger/internal/core/ports"
	"care-ledger/internal/service"
	"care-ledger/pkg/logger"
	"care-ledger/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(os.Getenv("CARE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting care ledger")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	healthCheckers := []ports.HealthChecker{pgStorage.NewHealthCheck(pool)}

	// Redis backs the idempotency fast path and rate limiting; both degrade
	// gracefully without it.
	var (
		idempotencyCache ports.IdempotencyCache
		rateLimitStore   *redisStorage.RateLimitStore
	)
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable: idempotency cache and rate limiting disabled")
	} else {
		defer rdb.Close()
		idempotencyCache = redisStorage.NewIdempotencyCache(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
		log.Info().Msg("Redis connected")
	}

	// Metrics
	var (
		registry      *prometheus.Registry
		ledgerMetrics *metrics.LedgerMetrics
		gatherer      prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		ledgerMetrics = metrics.NewLedgerMetrics(registry)
		gatherer = registry
	}

	// Ledger events
	var publisher ports.EventPublisher
	if cfg.Kafka.Enabled() {
		publisher = kafka.NewPublisher(cfg.Kafka, log)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka publisher configured")
	} else {
		publisher = kafka.NewLogPublisher(log)
	}
	events := service.NewEventEmitter(publisher, nil, logger.Component(log, "event_emitter"))
	defer events.Close()

	// Payment processor
	gateway, err := stripeAdapter.NewGateway(cfg.Stripe, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Stripe gateway")
	}
	verifier := stripeAdapter.NewWebhookVerifier(cfg.Stripe.WebhookSecret, log)

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	timesheetRepo := pgStorage.NewTimesheetRepo(pool)
	directoryRepo := pgStorage.NewDirectoryRepo(pool)
	preferenceRepo := pgStorage.NewCaregiverPreferenceRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool, log)

	// Initialize business services
	guard := service.NewIdempotencyGuard(idempotencyCache, paymentRepo, logger.Component(log, "idempotency_guard"))
	mutator := service.NewWalletMutator(walletRepo, paymentRepo, ledgerRepo, directoryRepo, transactor, events, logger.Component(log, "wallet_mutator"))
	reconciler := service.NewTransferReconciler(paymentRepo, transactor, events, ledgerMetrics, logger.Component(log, "transfer_reconciler"))
	webhookProcessor := service.NewWebhookProcessor(verifier, guard, mutator, reconciler, ledgerMetrics, logger.Component(log, "webhook_processor"))
	payoutSvc := service.NewPayoutService(
		timesheetRepo,
		paymentRepo,
		preferenceRepo,
		gateway,
		transactor,
		events,
		ledgerMetrics,
		cfg.Payout.Currency,
		logger.Component(log, "payout_dispatcher"),
	)
	walletSvc := service.NewWalletService(
		walletRepo,
		paymentRepo,
		ledgerRepo,
		directoryRepo,
		gateway,
		transactor,
		cfg.Stripe.Currency,
		logger.Component(log, "wallet_service"),
	)
	auditSvc := service.NewAuditService(auditRepo, log)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	resolver := service.NewPrincipalResolver(directoryRepo)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WebhookProcessor: webhookProcessor,
		PayoutSvc:        payoutSvc,
		WalletSvc:        walletSvc,
		TokenSvc:         tokenSvc,
		Resolver:         resolver,
		RateLimitStore:   rateLimitStore,
		RateLimit: middleware.RateLimitRule{
			Limit:  int64(cfg.RateLimit.Limit),
			Window: cfg.RateLimit.Window,
		},
		AuditSvc:        auditSvc,
		Metrics:         ledgerMetrics,
		MetricsGatherer: gatherer,
		MetricsPath:     cfg.Metrics.Path,
		HealthCheckers:  healthCheckers,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		Logger:          log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
