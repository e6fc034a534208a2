package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics counts outbox publish attempts per event type.
type OutboxMetrics struct {
	publish *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publisher metrics. A nil registerer
// yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	publish := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_publish_total",
		Help: "Outbox publish attempts by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(publish)
	return &OutboxMetrics{publish: publish}
}

// IncPublish counts one publish attempt. Outcomes are published, retry, deferred and dead_letter.
func (m *OutboxMetrics) IncPublish(eventType, outcome string) {
	if m == nil || m.publish == nil {
		return
	}
	m.publish.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
