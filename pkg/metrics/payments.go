package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks webhook reconciliation, session creation and
// notification delivery outcomes.
type PaymentMetrics struct {
	reconcile     *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	dispatch      *prometheus.CounterVec
	openAnomalies prometheus.Gauge
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	reconcile := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_reconcile_total",
		Help: "Webhook deliveries by provider and reconciliation result.",
	}, []string{"provider", "result"})
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_payment_sessions_total",
		Help: "Payment session attempts by provider and outcome.",
	}, []string{"provider", "outcome"})
	dispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_notifications_total",
		Help: "Automation notifications by event and outcome.",
	}, []string{"event", "outcome"})
	openAnomalies := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_payment_anomalies_open",
		Help: "Payment anomalies awaiting manual review.",
	})
	reg.MustRegister(reconcile, sessions, dispatch, openAnomalies)
	return &PaymentMetrics{
		reconcile:     reconcile,
		sessions:      sessions,
		dispatch:      dispatch,
		openAnomalies: openAnomalies,
	}
}

// IncReconcile counts one handled webhook delivery.
func (m *PaymentMetrics) IncReconcile(provider, result string) {
	if m == nil || m.reconcile == nil {
		return
	}
	m.reconcile.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}

// IncSession counts one payment session attempt.
func (m *PaymentMetrics) IncSession(provider, outcome string) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncDispatch counts one notification delivery attempt.
func (m *PaymentMetrics) IncDispatch(event, outcome string) {
	if m == nil || m.dispatch == nil {
		return
	}
	m.dispatch.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

// SetOpenAnomalies reports the current open anomaly backlog.
func (m *PaymentMetrics) SetOpenAnomalies(count int64) {
	if m == nil || m.openAnomalies == nil {
		return
	}
	m.openAnomalies.Set(float64(count))
}
