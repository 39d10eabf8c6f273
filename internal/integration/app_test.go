package integration

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpHandler "care-ledger/internal/adapter/http/handler"
	"care-ledger/internal/adapter/http/middleware"
	redisStorage "care-ledger/internal/adapter/storage/redis"
	stripeAdapter "care-ledger/internal/adapter/stripe"
	"care-ledger/internal/core/domain"
	"care-ledger/internal/service"
	"care-ledger/pkg/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	webhookSecret = "whsec_integration"
	jwtSecret     = "integration-jwt-secret-32-bytes!!"
	payoutAccount = "acct_caregiver"
)

// testApp wires the real HTTP layer, middleware, services and redis stores
// over the in-memory ledger store.
type testApp struct {
	server    *httptest.Server
	redis     *miniredis.Miniredis
	store     *memStore
	processor *fakeProcessor
	events    *recordingPublisher
	tokens    *service.JWTTokenService
	registry  *prometheus.Registry

	familyID     uuid.UUID
	familyUserID uuid.UUID
	operatorID   uuid.UUID
	operatorUser uuid.UUID
	timesheetID  uuid.UUID
	hireID       uuid.UUID
}

type appOption func(*httpHandler.RouterDeps)

func withRateLimit(limit int64) appOption {
	return func(d *httpHandler.RouterDeps) {
		d.RateLimit = middleware.RateLimitRule{Limit: limit, Window: time.Minute}
	}
}

func newTestApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	app := &testApp{
		redis:     mr,
		store:     newMemStore(),
		processor: newFakeProcessor(),
		events:    &recordingPublisher{},
		tokens:    service.NewJWTTokenService(jwtSecret, "care-ledger-test"),
		registry:  prometheus.NewRegistry(),
	}
	app.seed()

	log := zerolog.Nop()
	ledgerMetrics := metrics.NewLedgerMetrics(app.registry)
	uow := memUnitOfWork{s: app.store}
	wallets := memWallets{s: app.store}
	payments := memPayments{s: app.store}
	ledger := memLedger{s: app.store}
	directory := memDirectory{s: app.store}

	guard := service.NewIdempotencyGuard(redisStorage.NewIdempotencyCache(rdb), payments, log)
	mutator := service.NewWalletMutator(wallets, payments, ledger, directory, uow, app.events, log)
	reconciler := service.NewTransferReconciler(payments, uow, app.events, ledgerMetrics, log)
	verifier := stripeAdapter.NewWebhookVerifier(webhookSecret, log)

	deps := httpHandler.RouterDeps{
		WebhookProcessor: service.NewWebhookProcessor(verifier, guard, mutator, reconciler, ledgerMetrics, log),
		PayoutSvc: service.NewPayoutService(
			memTimesheets{s: app.store}, payments, memPreferences{s: app.store},
			app.processor, uow, app.events, ledgerMetrics, "usd", log,
		),
		WalletSvc:       service.NewWalletService(wallets, payments, ledger, directory, app.processor, uow, "usd", log),
		TokenSvc:        app.tokens,
		Resolver:        service.NewPrincipalResolver(directory),
		RateLimitStore:  redisStorage.NewRateLimitStore(rdb),
		RateLimit:       middleware.RateLimitRule{Limit: 1000, Window: time.Minute},
		AuditSvc:        service.NewAuditService(memAudit{s: app.store}, log),
		Metrics:         ledgerMetrics,
		MetricsGatherer: app.registry,
		Logger:          log,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	app.server = httptest.NewServer(httpHandler.SetupRouter(deps))
	t.Cleanup(app.close)
	return app
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

// seed creates a family, an operator, and an approved 7.5 hour timesheet at
// 25/h on a marketplace hire whose caregiver can receive payouts.
func (a *testApp) seed() {
	s := a.store
	a.familyID = uuid.New()
	a.familyUserID = uuid.New()
	a.operatorID = uuid.New()
	a.operatorUser = uuid.New()
	a.timesheetID = uuid.New()
	a.hireID = uuid.New()
	caregiverID := uuid.New()

	s.families[a.familyID] = &domain.Family{ID: a.familyID, Name: "Rivera"}
	s.users[a.familyUserID] = &domain.User{ID: a.familyUserID, Email: "family@example.com", Role: domain.RoleFamily, FamilyID: &a.familyID}
	s.users[a.operatorUser] = &domain.User{ID: a.operatorUser, Email: "ops@example.com", Role: domain.RoleOperator, OperatorID: &a.operatorID}

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	s.timesheets[a.timesheetID] = &domain.PayoutContext{
		TimesheetID:    a.timesheetID,
		ShiftID:        uuid.New(),
		HomeID:         uuid.New(),
		HomeOperatorID: a.operatorID,
		Status:         domain.TimesheetStatusApproved,
		StartTime:      start,
		EndTime:        start.Add(8 * time.Hour),
		BreakMinutes:   30,
		HourlyRate:     decimal.RequireFromString("25.00"),
		HireID:         &a.hireID,
		CaregiverID:    &caregiverID,
	}
	s.preferences[caregiverID] = payoutAccount
	a.processor.enabled[payoutAccount] = true
}

// token issues a bearer token without the family/operator claims, so the
// principal resolver fills them from the directory.
func (a *testApp) token(t *testing.T, userID uuid.UUID, role domain.Role) string {
	t.Helper()
	tok, err := a.tokens.Generate(domain.Principal{UserID: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testApp) do(t *testing.T, method, path, token string, body []byte) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return a.send(t, req)
}

func (a *testApp) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func (a *testApp) postWebhook(t *testing.T, payload []byte) (int, map[string]interface{}) {
	t.Helper()
	return a.postWebhookSignedWith(t, payload, webhookSecret)
}

func (a *testApp) postWebhookSignedWith(t *testing.T, payload []byte, secret string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/api/v1/webhooks/stripe", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set(httpHandler.SignatureHeader, signPayload(payload, secret))
	return a.send(t, req)
}

// hasAudit waits for the asynchronous audit writer.
func (a *testApp) hasAudit(t *testing.T, action domain.AuditAction) bool {
	t.Helper()
	return assert.Eventually(t, func() bool {
		for _, got := range a.store.auditActions() {
			if got == action {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func (a *testApp) walletBalance(t *testing.T) string {
	t.Helper()
	status, body := a.do(t, http.MethodGet, "/api/v1/wallet", a.token(t, a.familyUserID, domain.RoleFamily), nil)
	require.Equal(t, http.StatusOK, status)
	return body["data"].(map[string]interface{})["balance"].(string)
}

func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func depositEvent(eventID, intentID string, amountMinor int64, metadata map[string]string) []byte {
	md, _ := json.Marshal(metadata)
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": %q,
			"object": "payment_intent",
			"amount": %d,
			"currency": "usd",
			"metadata": %s
		}}
	}`, eventID, intentID, amountMinor, md))
}

func transferEvent(eventType, transferID string, hireID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_%s",
		"object": "event",
		"type": %q,
		"data": {"object": {
			"id": %q,
			"object": "transfer",
			"amount": 18750,
			"currency": "usd",
			"metadata": {"hireId": %q}
		}}
	}`, uuid.NewString(), eventType, transferID, hireID))
}
