package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aidigitalagency/storefront-backend/internal/subscriber"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox/payloads"
)

type stubSender struct {
	err   error
	sent  []enums.NotificationEvent
	order []OrderNotification
}

func (s *stubSender) Send(_ context.Context, event enums.NotificationEvent, data any) error {
	s.sent = append(s.sent, event)
	if body, ok := data.(OrderNotification); ok {
		s.order = append(s.order, body)
	}
	return s.err
}

type memoryLedger struct {
	claimed  map[string]bool
	released []string
}

func (l *memoryLedger) Claim(_ context.Context, consumer, eventID string) (bool, error) {
	key := consumer + ":" + eventID
	if l.claimed[key] {
		return false, nil
	}
	l.claimed[key] = true
	return true, nil
}

func (l *memoryLedger) Release(_ context.Context, consumer, eventID string) error {
	key := consumer + ":" + eventID
	delete(l.claimed, key)
	l.released = append(l.released, key)
	return nil
}

func delivery(t *testing.T, eventType enums.OutboxEventType, eventID, orderID string, data any) (map[string]string, []byte) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID, OccurredAt: time.Now().UTC(), Data: raw})
	require.NoError(t, err)
	return map[string]string{
		"event_type":     string(eventType),
		"aggregate_type": string(enums.AggregateOrder),
		"aggregate_id":   orderID,
	}, body
}

func newOrderSubscriber(t *testing.T, s sender, ledger *memoryLedger) *subscriber.Subscriber {
	t.Helper()
	handler, err := NewOrderHandler(s)
	require.NoError(t, err)
	sub, err := subscriber.New(ConsumerName, handler, ledger, logger.Nop(), subscriber.OnlyEvents(OrderEvents...))
	require.NoError(t, err)
	return sub
}

func TestOrderHandlerDeliversNewOrderOnce(t *testing.T) {
	sender := &stubSender{}
	sub := newOrderSubscriber(t, sender, &memoryLedger{claimed: map[string]bool{}})

	attrs, data := delivery(t, enums.EventOrderCreated, "evt-1", "ord_1", payloads.OrderCreatedEvent{
		OrderID:        "ord_1",
		Service:        enums.ServiceGraphics,
		QuoteAmount:    decimal.NewFromInt(15),
		QuoteCurrency:  enums.CurrencyUSD,
		RequesterName:  "Asha",
		RequesterEmail: "asha@example.com",
	})

	require.Equal(t, subscriber.Ack, sub.Process(context.Background(), "m1", attrs, data))
	require.Equal(t, subscriber.Ack, sub.Process(context.Background(), "m2", attrs, data))

	require.Equal(t, []enums.NotificationEvent{enums.NotificationNewOrder}, sender.sent)
	require.Equal(t, "ord_1", sender.order[0].OrderID)
	require.Equal(t, "asha@example.com", sender.order[0].CustomerEmail)
	require.True(t, sender.order[0].Amount.Equal(decimal.NewFromInt(15)))
	require.False(t, sender.order[0].OccurredAt.IsZero(), "occurred at falls back to the envelope time")
}

func TestOrderHandlerNacksAndReleasesOnDeliveryFailure(t *testing.T) {
	sender := &stubSender{err: errors.New("zap down")}
	ledger := &memoryLedger{claimed: map[string]bool{}}
	sub := newOrderSubscriber(t, sender, ledger)

	attrs, data := delivery(t, enums.EventOrderCompleted, "evt-9", "ord_9",
		payloads.OrderCompletedEvent{OrderID: "ord_9", Service: enums.ServiceVideo})

	require.Equal(t, subscriber.Nack, sub.Process(context.Background(), "m1", attrs, data))
	require.Equal(t, []string{ConsumerName + ":evt-9"}, ledger.released)
	require.Equal(t, []enums.NotificationEvent{enums.NotificationOrderComplete}, sender.sent)
}

func TestOrderHandlerSkipsUnrelatedAndMalformed(t *testing.T) {
	sender := &stubSender{}
	sub := newOrderSubscriber(t, sender, &memoryLedger{claimed: map[string]bool{}})

	attrs, data := delivery(t, enums.EventOrderPaymentRecorded, "evt-2", "ord_2", payloads.OrderPaymentRecordedEvent{OrderID: "ord_2"})
	require.Equal(t, subscriber.Ack, sub.Process(context.Background(), "m1", attrs, data))

	attrs, _ = delivery(t, enums.EventOrderCreated, "evt-3", "ord_3", nil)
	require.Equal(t, subscriber.Ack, sub.Process(context.Background(), "m2", attrs, []byte(`not-json`)))

	attrs, data = delivery(t, enums.EventOrderCreated, "evt-4", "ord_4", map[string]any{"quote_amount": []int{1}})
	require.Equal(t, subscriber.Ack, sub.Process(context.Background(), "m3", attrs, data))

	require.Empty(t, sender.sent)
}

func TestOrderHandlerIgnoresOtherTypes(t *testing.T) {
	handler, err := NewOrderHandler(&stubSender{})
	require.NoError(t, err)
	err = handler.Handle(context.Background(), subscriber.Event{Type: enums.EventOrderStatusChanged, Data: []byte(`{}`)})
	require.ErrorIs(t, err, subscriber.ErrIgnored)

	_, err = NewOrderHandler(nil)
	require.Error(t, err)
}
