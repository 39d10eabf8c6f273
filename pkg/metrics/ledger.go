package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records webhook, payout and reconciliation outcomes.
type LedgerMetrics struct {
	webhookEvents      *prometheus.CounterVec
	payoutDispatches   *prometheus.CounterVec
	reconcileAnomalies prometheus.Counter
	httpDuration       *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
// A nil registerer yields a recorder whose methods are no-ops.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Processor webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	payoutDispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_dispatch_total",
		Help: "Caregiver payout dispatch attempts by outcome.",
	}, []string{"outcome"})
	reconcileAnomalies := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_anomalies_total",
		Help: "Transfer status events that matched no payment record.",
	})
	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	reg.MustRegister(webhookEvents, payoutDispatches, reconcileAnomalies, httpDuration)
	return &LedgerMetrics{
		webhookEvents:      webhookEvents,
		payoutDispatches:   payoutDispatches,
		reconcileAnomalies: reconcileAnomalies,
		httpDuration:       httpDuration,
	}
}

// IncWebhookEvent counts one processed webhook event.
func (m *LedgerMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncPayoutDispatch counts one payout dispatch attempt.
func (m *LedgerMetrics) IncPayoutDispatch(outcome string) {
	if m == nil || m.payoutDispatches == nil {
		return
	}
	m.payoutDispatches.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncReconcileAnomaly counts a transfer event that could not be matched.
func (m *LedgerMetrics) IncReconcileAnomaly() {
	if m == nil || m.reconcileAnomalies == nil {
		return
	}
	m.reconcileAnomalies.Inc()
}

// ObserveHTTP records the latency of a served request.
func (m *LedgerMetrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, normalizeLabel(route), strconv.Itoa(status)).Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
