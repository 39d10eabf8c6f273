package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory ledger store. WithinTx serialises transactions
// and restores a snapshot when fn fails, so the wallet row locks and
// unique indexes of the real schema hold here too.
type memStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	families    map[uuid.UUID]*domain.Family
	users       map[uuid.UUID]*domain.User
	timesheets  map[uuid.UUID]*domain.PayoutContext
	preferences map[uuid.UUID]string
	wallets     map[uuid.UUID]domain.Wallet
	payments    map[uuid.UUID]domain.Payment
	ledger      []domain.LedgerTransaction
	audits      []domain.AuditLog
	lastStamp   time.Time

	// markErr fails MarkProcessing, standing in for a lost connection.
	markErr error
}

func newMemStore() *memStore {
	return &memStore{
		families:    make(map[uuid.UUID]*domain.Family),
		users:       make(map[uuid.UUID]*domain.User),
		timesheets:  make(map[uuid.UUID]*domain.PayoutContext),
		preferences: make(map[uuid.UUID]string),
		wallets:     make(map[uuid.UUID]domain.Wallet),
		payments:    make(map[uuid.UUID]domain.Payment),
	}
}

type memSnapshot struct {
	wallets  map[uuid.UUID]domain.Wallet
	payments map[uuid.UUID]domain.Payment
	ledger   []domain.LedgerTransaction
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := memSnapshot{
		wallets:  make(map[uuid.UUID]domain.Wallet, len(s.wallets)),
		payments: make(map[uuid.UUID]domain.Payment, len(s.payments)),
		ledger:   append([]domain.LedgerTransaction(nil), s.ledger...),
	}
	for k, v := range s.wallets {
		snap.wallets[k] = v
	}
	for k, v := range s.payments {
		snap.payments[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = snap.wallets
	s.payments = snap.payments
	s.ledger = snap.ledger
}

// dbTime reduces t to the microsecond precision of timestamptz. Every
// timestamp the store keeps or compares goes through it.
func dbTime(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}

// stamp returns a strictly increasing timestamp, standing in for NOW().
// Callers hold s.mu.
func (s *memStore) stamp() time.Time {
	now := dbTime(time.Now().UTC())
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = now
	return now
}

// --- Unit of work ---

// noopTx satisfies pgx.Tx; the in-memory repositories never touch it.
type noopTx struct{ pgx.Tx }

type memUnitOfWork struct{ s *memStore }

func (u memUnitOfWork) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	u.s.txMu.Lock()
	defer u.s.txMu.Unlock()

	snap := u.s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			u.s.restore(snap)
			panic(p)
		}
		if err != nil {
			u.s.restore(snap)
		}
	}()
	return fn(noopTx{})
}

// --- Wallets ---

type memWallets struct{ s *memStore }

func (r memWallets) get(pred func(domain.Wallet) bool) *domain.Wallet {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, w := range r.s.wallets {
		if pred(w) {
			w := w
			return &w
		}
	}
	return nil
}

func (r memWallets) GetByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	return r.get(func(w domain.Wallet) bool { return w.ID == id }), nil
}

func (r memWallets) GetByFamilyID(_ context.Context, familyID uuid.UUID) (*domain.Wallet, error) {
	return r.get(func(w domain.Wallet) bool { return w.FamilyID == familyID }), nil
}

func (r memWallets) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r memWallets) GetByFamilyIDForUpdate(ctx context.Context, _ pgx.Tx, familyID uuid.UUID) (*domain.Wallet, error) {
	return r.GetByFamilyID(ctx, familyID)
}

func (r memWallets) CreateIfAbsent(_ context.Context, _ pgx.Tx, familyID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if w.FamilyID == familyID {
			return nil
		}
	}
	now := r.s.stamp()
	id := uuid.New()
	r.s.wallets[id] = domain.Wallet{ID: id, FamilyID: familyID, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (r memWallets) IncrementBalance(_ context.Context, _ pgx.Tx, walletID uuid.UUID, delta decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	next := w.Balance.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("wallets_balance_check violated")
	}
	w.Balance = next
	w.UpdatedAt = r.s.stamp()
	r.s.wallets[walletID] = w
	return nil
}

func (r memWallets) SetCustomerReference(_ context.Context, _ pgx.Tx, walletID uuid.UUID, customerID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok || w.StripeCustomerID != nil {
		return false, nil
	}
	w.StripeCustomerID = &customerID
	r.s.wallets[walletID] = w
	return true, nil
}

// --- Payments ---

type memPayments struct{ s *memStore }

func (r memPayments) Create(_ context.Context, _ pgx.Tx, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.payments {
		if p.Kind == domain.PaymentKindDeposit && existing.Kind == domain.PaymentKindDeposit &&
			p.StripePaymentID != nil && existing.StripePaymentID != nil &&
			*p.StripePaymentID == *existing.StripePaymentID {
			return domain.ErrDuplicateExternalReference
		}
		if p.Kind == domain.PaymentKindCaregiverPayment && existing.Kind == domain.PaymentKindCaregiverPayment &&
			p.MarketplaceHireID != nil && existing.MarketplaceHireID != nil &&
			*p.MarketplaceHireID == *existing.MarketplaceHireID {
			return fmt.Errorf("payments_caregiver_hire_uniq violated")
		}
	}
	stored := *p
	stored.CreatedAt = dbTime(p.CreatedAt)
	stored.UpdatedAt = dbTime(p.UpdatedAt)
	r.s.payments[p.ID] = stored
	return nil
}

func (r memPayments) find(pred func(domain.Payment) bool) *domain.Payment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.payments {
		if pred(p) {
			p := p
			return &p
		}
	}
	return nil
}

func (r memPayments) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	return r.find(func(p domain.Payment) bool { return p.ID == id }), nil
}

func (r memPayments) GetByExternalReference(_ context.Context, ref string) (*domain.Payment, error) {
	return r.find(func(p domain.Payment) bool { return p.ExternalReference() == ref }), nil
}

func (r memPayments) ExistsByExternalReference(ctx context.Context, ref string) (bool, error) {
	p, _ := r.GetByExternalReference(ctx, ref)
	return p != nil, nil
}

func (r memPayments) ExistsByExternalReferenceTx(ctx context.Context, _ pgx.Tx, ref string) (bool, error) {
	return r.ExistsByExternalReference(ctx, ref)
}

func (r memPayments) GetCaregiverPaymentByHire(_ context.Context, hireID uuid.UUID) (*domain.Payment, error) {
	return r.find(func(p domain.Payment) bool {
		return p.Kind == domain.PaymentKindCaregiverPayment && p.MarketplaceHireID != nil && *p.MarketplaceHireID == hireID
	}), nil
}

func (r memPayments) MarkProcessing(_ context.Context, _ pgx.Tx, cmd ports.MarkProcessingCommand) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.markErr != nil {
		return false, r.s.markErr
	}
	p, ok := r.s.payments[cmd.PaymentID]
	if !ok || !p.UpdatedAt.Equal(dbTime(cmd.ExpectedUpdatedAt)) || p.Status == domain.PaymentStatusCompleted {
		return false, nil
	}
	ref := cmd.TransferID
	p.Status = domain.PaymentStatusProcessing
	p.StripePaymentID = &ref
	p.Amount = cmd.Amount
	p.UpdatedAt = r.s.stamp()
	r.s.payments[p.ID] = p
	return true, nil
}

func (r memPayments) UpdateStatusWhere(_ context.Context, _ pgx.Tx, match domain.PaymentMatch, status domain.PaymentStatus, backfillRef *string) (int64, error) {
	if match.StripePaymentID == nil && match.MarketplaceHireID == nil {
		return 0, fmt.Errorf("update payment status: match has no key")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, p := range r.s.payments {
		if p.Kind != match.Kind {
			continue
		}
		switch {
		case match.StripePaymentID != nil:
			if p.StripePaymentID == nil || *p.StripePaymentID != *match.StripePaymentID {
				continue
			}
		default:
			if p.MarketplaceHireID == nil || *p.MarketplaceHireID != *match.MarketplaceHireID {
				continue
			}
		}
		if match.ExcludeTerminal && p.IsTerminal() {
			continue
		}
		p.Status = status
		if backfillRef != nil {
			ref := *backfillRef
			p.StripePaymentID = &ref
		}
		p.UpdatedAt = r.s.stamp()
		r.s.payments[id] = p
		n++
	}
	return n, nil
}

func (r memPayments) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Payment
	for _, p := range r.s.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Ledger ---

type memLedger struct{ s *memStore }

func (r memLedger) Create(_ context.Context, _ pgx.Tx, entry *domain.LedgerTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *entry
	stored.CreatedAt = dbTime(entry.CreatedAt)
	r.s.ledger = append(r.s.ledger, stored)
	return nil
}

func (r memLedger) ListByWallet(_ context.Context, walletID uuid.UUID, limit int) ([]domain.LedgerTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.LedgerTransaction
	for i := len(r.s.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.ledger[i].WalletID == walletID {
			out = append(out, r.s.ledger[i])
		}
	}
	return out, nil
}

func (r memLedger) SumCompletedByWallet(_ context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sum := decimal.Zero
	for _, t := range r.s.ledger {
		if t.WalletID == walletID && t.Status == domain.LedgerStatusCompleted {
			sum = sum.Add(t.SignedAmount())
		}
	}
	return sum, nil
}

// --- Directory, timesheets, preferences, audit ---

type memDirectory struct{ s *memStore }

func (r memDirectory) GetFamily(_ context.Context, id uuid.UUID) (*domain.Family, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.families[id], nil
}

func (r memDirectory) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.users[id], nil
}

type memTimesheets struct{ s *memStore }

func (r memTimesheets) GetPayoutContext(_ context.Context, id uuid.UUID) (*domain.PayoutContext, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	pc, ok := r.s.timesheets[id]
	if !ok {
		return nil, nil
	}
	cp := *pc
	return &cp, nil
}

type memPreferences struct{ s *memStore }

func (r memPreferences) GetPayoutAccount(_ context.Context, caregiverID uuid.UUID) (string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.preferences[caregiverID], nil
}

type memAudit struct{ s *memStore }

func (r memAudit) Create(_ context.Context, entry *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *entry
	stored.CreatedAt = dbTime(entry.CreatedAt)
	r.s.audits = append(r.s.audits, stored)
	return nil
}

func (s *memStore) setMarkError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markErr = err
}

func (s *memStore) auditActions() []domain.AuditAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditAction, 0, len(s.audits))
	for _, a := range s.audits {
		out = append(out, a.Action)
	}
	return out
}

func (s *memStore) payment(id uuid.UUID) domain.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payments[id]
}

func (s *memStore) countPayments(kind domain.PaymentKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.payments {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

func (s *memStore) ledgerLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ledger)
}

// --- Payment processor ---

// fakeProcessor mimics the processor: transfers are deduplicated by
// idempotency key, and payout capability is per account.
type fakeProcessor struct {
	mu           sync.Mutex
	enabled      map[string]bool
	transfers    map[string]ports.TransferRequest // by transfer id
	byKey        map[string]string                // idempotency key -> transfer id
	customers    int
	intents      []ports.PaymentIntentRequest
	failTransfer error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		enabled:   make(map[string]bool),
		transfers: make(map[string]ports.TransferRequest),
		byKey:     make(map[string]string),
	}
}

func (f *fakeProcessor) CreateCustomer(_ context.Context, _, _ uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers++
	return fmt.Sprintf("cus_%d", f.customers), nil
}

func (f *fakeProcessor) CreatePaymentIntent(_ context.Context, req ports.PaymentIntentRequest) (*ports.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, req)
	id := fmt.Sprintf("pi_%d", len(f.intents))
	return &ports.PaymentIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (f *fakeProcessor) CreateTransfer(_ context.Context, req ports.TransferRequest) (*ports.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTransfer != nil {
		return nil, f.failTransfer
	}
	if id, ok := f.byKey[req.IdempotencyKey]; ok {
		return &ports.Transfer{ID: id}, nil
	}
	id := fmt.Sprintf("tr_%d", len(f.transfers)+1)
	f.transfers[id] = req
	f.byKey[req.IdempotencyKey] = id
	return &ports.Transfer{ID: id}, nil
}

func (f *fakeProcessor) PayoutsEnabled(_ context.Context, accountID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[accountID], nil
}

func (f *fakeProcessor) setPayoutsEnabled(accountID string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[accountID] = enabled
}

func (f *fakeProcessor) setTransferError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTransfer = err
}

func (f *fakeProcessor) transfer(id string) ports.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transfers[id]
}

func (f *fakeProcessor) transferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transfers)
}

func (f *fakeProcessor) lastIntent() ports.PaymentIntentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intents[len(f.intents)-1]
}

// recordingPublisher keeps every ledger event for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(t domain.LedgerEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
