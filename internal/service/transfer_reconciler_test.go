package service

import (
	"context"
	"errors"
	"testing"

	"care-ledger/internal/core/domain"
	"care-ledger/internal/core/ports/mocks"
	"care-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reconcilerTestDeps struct {
	svc      *TransferReconcilerImpl
	payments *mocks.MockPaymentRepository
	uow      *mocks.MockUnitOfWork
	events   *mocks.MockEventPublisher
	reg      *prometheus.Registry
	ctrl     *gomock.Controller
}

func setupTransferReconciler(t *testing.T) *reconcilerTestDeps {
	ctrl := gomock.NewController(t)
	d := &reconcilerTestDeps{
		payments: mocks.NewMockPaymentRepository(ctrl),
		uow:      mocks.NewMockUnitOfWork(ctrl),
		events:   mocks.NewMockEventPublisher(ctrl),
		reg:      prometheus.NewRegistry(),
		ctrl:     ctrl,
	}
	d.svc = NewTransferReconciler(d.payments, d.uow, d.events, metrics.NewLedgerMetrics(d.reg), newTestLogger())
	return d
}

func byTransferID(id string) gomock.Matcher {
	return gomock.Cond(func(x any) bool {
		m, ok := x.(domain.PaymentMatch)
		return ok && m.StripePaymentID != nil && *m.StripePaymentID == id && m.MarketplaceHireID == nil
	})
}

func byHireID(id uuid.UUID) gomock.Matcher {
	return gomock.Cond(func(x any) bool {
		m, ok := x.(domain.PaymentMatch)
		return ok && m.MarketplaceHireID != nil && *m.MarketplaceHireID == id && m.StripePaymentID == nil
	})
}

func TestTransferReconciler_PaidMatchesByTransferID(t *testing.T) {
	d := setupTransferReconciler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	hireID := uuid.New()
	event := &domain.TransferEvent{TransferID: "tr_1", EventType: domain.EventTransferPaid, HireID: &hireID}

	expectTx(d.uow, tx)
	d.payments.EXPECT().
		UpdateStatusWhere(ctx, tx, byTransferID("tr_1"), domain.PaymentStatusCompleted, (*string)(nil)).
		Return(int64(1), nil)
	// The hire fallback is not tried once the transfer id matched.
	d.events.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, ev domain.LedgerEvent) error {
			assert.Equal(t, domain.LedgerEventTransferReconciled, ev.Type)
			assert.Equal(t, "tr_1", ev.Key)
			assert.Equal(t, "COMPLETED", ev.Attributes["status"])
			assert.Equal(t, hireID.String(), ev.Attributes["hireId"])
			return nil
		},
	)

	result, err := d.svc.Reconcile(ctx, event)
	require.NoError(t, err)
	assert.True(t, result.Recognized)
	assert.True(t, result.Matched)
	assert.Equal(t, matchByTransferID, result.MatchedBy)
	assert.Equal(t, domain.PaymentStatusCompleted, result.Status)
}

func TestTransferReconciler_FailedFallsBackToHireAndBackfills(t *testing.T) {
	d := setupTransferReconciler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	hireID := uuid.New()
	event := &domain.TransferEvent{TransferID: "tr_2", EventType: domain.EventTransferFailed, HireID: &hireID}

	expectTx(d.uow, tx)
	gomock.InOrder(
		d.payments.EXPECT().
			UpdateStatusWhere(ctx, tx, byTransferID("tr_2"), domain.PaymentStatusFailed, (*string)(nil)).
			Return(int64(0), nil),
		d.payments.EXPECT().
			UpdateStatusWhere(ctx, tx, byHireID(hireID), domain.PaymentStatusFailed, gomock.Any()).
			DoAndReturn(func(ctx context.Context, tx pgx.Tx, m domain.PaymentMatch, s domain.PaymentStatus, backfill *string) (int64, error) {
				require.NotNil(t, backfill)
				assert.Equal(t, "tr_2", *backfill)
				assert.False(t, m.ExcludeTerminal)
				return 1, nil
			}),
	)
	d.events.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	result, err := d.svc.Reconcile(ctx, event)
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, matchByHireID, result.MatchedBy)
	assert.Equal(t, domain.PaymentStatusFailed, result.Status)
}

func TestTransferReconciler_CreatedNeverOverwritesTerminal(t *testing.T) {
	d := setupTransferReconciler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	event := &domain.TransferEvent{TransferID: "tr_3", EventType: domain.EventTransferCreated}

	expectTx(d.uow, tx)
	d.payments.EXPECT().
		UpdateStatusWhere(ctx, tx, gomock.Any(), domain.PaymentStatusProcessing, (*string)(nil)).
		DoAndReturn(func(ctx context.Context, tx pgx.Tx, m domain.PaymentMatch, s domain.PaymentStatus, backfill *string) (int64, error) {
			assert.True(t, m.ExcludeTerminal)
			return 1, nil
		})
	d.events.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	result, err := d.svc.Reconcile(ctx, event)
	require.NoError(t, err)
	assert.True(t, result.Matched)
}

func TestTransferReconciler_NoMatchIsAnomaly(t *testing.T) {
	d := setupTransferReconciler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	event := &domain.TransferEvent{TransferID: "tr_4", EventType: domain.EventTransferPaid}

	expectTx(d.uow, tx)
	// Without a hire id only the transfer id is tried.
	d.payments.EXPECT().
		UpdateStatusWhere(ctx, tx, byTransferID("tr_4"), domain.PaymentStatusCompleted, (*string)(nil)).
		Return(int64(0), nil)

	result, err := d.svc.Reconcile(ctx, event)
	require.NoError(t, err)
	assert.True(t, result.Recognized)
	assert.False(t, result.Matched)
	assert.Equal(t, 1.0, counterValue(t, d.reg, "reconcile_anomalies_total", map[string]string{}))
}

func TestTransferReconciler_UnrecognizedType(t *testing.T) {
	d := setupTransferReconciler(t)
	defer d.ctrl.Finish()

	result, err := d.svc.Reconcile(context.Background(), &domain.TransferEvent{
		TransferID: "tr_5",
		EventType:  "transfer.updated",
	})
	require.NoError(t, err)
	assert.False(t, result.Recognized)
	assert.False(t, result.Matched)
}

func TestTransferReconciler_StoreError(t *testing.T) {
	d := setupTransferReconciler(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	expectTx(d.uow, tx)
	d.payments.EXPECT().
		UpdateStatusWhere(ctx, tx, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(int64(0), errors.New("deadlock detected"))

	_, err := d.svc.Reconcile(ctx, &domain.TransferEvent{TransferID: "tr_6", EventType: domain.EventTransferReversed})
	assertAppErrorCode(t, err, "SYS_001")
}
