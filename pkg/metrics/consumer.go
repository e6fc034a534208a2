package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ConsumerMetrics counts Pub/Sub deliveries handled by a subscriber.
type ConsumerMetrics struct {
	messages *prometheus.CounterVec
}

func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_consumer_messages_total",
		Help: "Pub/Sub deliveries by consumer, event type and outcome.",
	}, []string{"consumer", "event_type", "outcome"})
	reg.MustRegister(messages)
	return &ConsumerMetrics{messages: messages}
}

// IncMessage counts one delivery. Outcomes are handled, duplicate, ignored,
// malformed and nack.
func (m *ConsumerMetrics) IncMessage(consumer, eventType, outcome string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
