package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncPublish("order_created", "published")
	m.IncPublish("order_created", "published")
	m.IncPublish("order_completed", "dead_letter")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Equal(t, 2.0, counterWithLabels(t, mfs, "storefront_outbox_publish_total", map[string]string{"event_type": "order_created", "outcome": "published"}))
	require.Equal(t, 1.0, counterWithLabels(t, mfs, "storefront_outbox_publish_total", map[string]string{"event_type": "order_completed", "outcome": "dead_letter"}))

	var nilMetrics *OutboxMetrics
	nilMetrics.IncPublish("order_created", "retry")
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPaymentMetrics(reg).IncReconcile("paypal", "applied")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `storefront_reconcile_total{provider="paypal",result="applied"} 1`)
}

func TestServeDisabledWithoutAddr(t *testing.T) {
	require.NoError(t, Serve(context.Background(), " ", nil, nil))
}

func TestConsumerMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConsumerMetrics(reg)

	m.IncMessage("analytics", "order_created", "handled")
	m.IncMessage("analytics", "order_created", "duplicate")
	m.IncMessage("analytics", "order_created", "handled")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Equal(t, 2.0, counterWithLabels(t, mfs, "storefront_consumer_messages_total", map[string]string{"consumer": "analytics", "event_type": "order_created", "outcome": "handled"}))

	var nilMetrics *ConsumerMetrics
	nilMetrics.IncMessage("analytics", "order_created", "nack")
}
