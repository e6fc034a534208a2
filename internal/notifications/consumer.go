package notifications

import (
	"context"
	"fmt"

	"github.com/aidigitalagency/storefront-backend/internal/subscriber"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox/payloads"
)

// ConsumerName scopes the idempotency claims of the order notification worker.
const ConsumerName = "order-notifications"

// OrderEvents are the event types that produce an order notification.
var OrderEvents = []enums.OutboxEventType{enums.EventOrderCreated, enums.EventOrderCompleted}

type sender interface {
	Send(ctx context.Context, event enums.NotificationEvent, data any) error
}

// OrderHandler turns order lifecycle events into new_order and order_complete
// deliveries. Send errors are returned so the delivery is retried.
type OrderHandler struct {
	sender sender
}

func NewOrderHandler(s sender) (*OrderHandler, error) {
	if s == nil {
		return nil, fmt.Errorf("notification sender required")
	}
	return &OrderHandler{sender: s}, nil
}

func (h *OrderHandler) Handle(ctx context.Context, ev subscriber.Event) error {
	var (
		event enums.NotificationEvent
		body  OrderNotification
	)
	switch ev.Type {
	case enums.EventOrderCreated:
		created, err := subscriber.Bind[payloads.OrderCreatedEvent](ev)
		if err != nil {
			return err
		}
		amount := created.QuoteAmount
		event, body = enums.NotificationNewOrder, OrderNotification{
			OrderID:       created.OrderID,
			Service:       created.Service,
			Amount:        &amount,
			Currency:      created.QuoteCurrency,
			CustomerName:  created.RequesterName,
			CustomerEmail: created.RequesterEmail,
			Status:        string(enums.OrderStatusPending),
			OccurredAt:    created.CreatedAt,
		}
	case enums.EventOrderCompleted:
		completed, err := subscriber.Bind[payloads.OrderCompletedEvent](ev)
		if err != nil {
			return err
		}
		event, body = enums.NotificationOrderComplete, OrderNotification{
			OrderID:       completed.OrderID,
			Service:       completed.Service,
			CustomerName:  completed.RequesterName,
			CustomerEmail: completed.RequesterEmail,
			Status:        string(enums.OrderStatusCompleted),
			OccurredAt:    completed.CompletedAt,
		}
	default:
		return subscriber.ErrIgnored
	}

	if body.OccurredAt.IsZero() {
		body.OccurredAt = ev.OccurredAt
	}
	if err := h.sender.Send(ctx, event, body); err != nil {
		return fmt.Errorf("send %s for order %s: %w", event, body.OrderID, err)
	}
	return nil
}
