package payloads

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when a requester submits a new order.
type OrderCreatedEvent struct {
	OrderID        string            `json:"order_id" validate:"required"`
	Service        enums.ServiceType `json:"service" validate:"required"`
	QuoteAmount    decimal.Decimal   `json:"quote_amount"`
	QuoteCurrency  enums.Currency    `json:"quote_currency" validate:"required"`
	RequesterName  string            `json:"requester_name"`
	RequesterEmail string            `json:"requester_email" validate:"required"`
	CreatedAt      time.Time         `json:"created_at"`
}

// OrderPaymentRecordedEvent carries the payment outcome applied by reconciliation.
type OrderPaymentRecordedEvent struct {
	OrderID               string              `json:"order_id" validate:"required"`
	Provider              enums.PaymentMethod `json:"provider"`
	PaymentStatus         enums.PaymentStatus `json:"payment_status" validate:"required"`
	Status                enums.OrderStatus   `json:"status" validate:"required"`
	Amount                decimal.Decimal     `json:"amount"`
	Currency              string              `json:"currency"`
	ProviderTransactionID string              `json:"provider_transaction_id,omitempty"`
	ProviderOrderID       string              `json:"provider_order_id,omitempty"`
	PaidAt                *time.Time          `json:"paid_at,omitempty"`
}

// OrderStatusChangedEvent records an admin fulfillment transition.
type OrderStatusChangedEvent struct {
	OrderID   string            `json:"order_id" validate:"required"`
	From      enums.OrderStatus `json:"from" validate:"required"`
	To        enums.OrderStatus `json:"to" validate:"required"`
	ChangedBy string            `json:"changed_by"`
}

// OrderCompletedEvent is emitted once an order reaches completed.
type OrderCompletedEvent struct {
	OrderID        string            `json:"order_id" validate:"required"`
	Service        enums.ServiceType `json:"service"`
	RequesterName  string            `json:"requester_name"`
	RequesterEmail string            `json:"requester_email"`
	CompletedAt    time.Time         `json:"completed_at"`
}

// PaymentAnomalyRecordedEvent surfaces a provider report that contradicted a terminal payment.
type PaymentAnomalyRecordedEvent struct {
	AnomalyID      string              `json:"anomaly_id" validate:"required"`
	OrderID        string              `json:"order_id" validate:"required"`
	Provider       enums.PaymentMethod `json:"provider"`
	ObservedStatus enums.PaymentStatus `json:"observed_status"`
	ReportedStatus enums.PaymentStatus `json:"reported_status" validate:"required"`
	Amount         decimal.Decimal     `json:"amount"`
	Currency       string              `json:"currency"`
	Occurrences    int                 `json:"occurrences"`
}

// PaymentAnomalyResolvedEvent records the admin decision on an anomaly.
type PaymentAnomalyResolvedEvent struct {
	AnomalyID  string              `json:"anomaly_id" validate:"required"`
	OrderID    string              `json:"order_id" validate:"required"`
	Resolution enums.AnomalyStatus `json:"resolution" validate:"required"`
	ResolvedBy string              `json:"resolved_by"`
	Note       string              `json:"note,omitempty"`
}
