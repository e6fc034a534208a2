package notifications

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

// PaymentCompleted is the normalized payment_completed notification. Both
// providers produce the same shape.
type PaymentCompleted struct {
	OrderID               string              `json:"orderId"`
	Amount                *decimal.Decimal    `json:"amount"`
	Currency              *string             `json:"currency"`
	Status                string              `json:"status"`
	PaymentMethod         enums.PaymentMethod `json:"paymentMethod"`
	ProviderTransactionID string              `json:"providerTransactionId,omitempty"`
	PaypalOrderID         string              `json:"paypalOrderId,omitempty"`
	Timestamp             time.Time           `json:"timestamp"`
}

// OrderNotification describes an order for new_order and order_complete deliveries.
type OrderNotification struct {
	OrderID       string            `json:"orderId"`
	Service       enums.ServiceType `json:"service"`
	Amount        *decimal.Decimal  `json:"amount,omitempty"`
	Currency      enums.Currency    `json:"currency,omitempty"`
	CustomerName  string            `json:"customerName"`
	CustomerEmail string            `json:"customerEmail"`
	Status        string            `json:"status"`
	OccurredAt    time.Time         `json:"occurredAt"`
}
