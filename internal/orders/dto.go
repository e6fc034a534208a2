package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

// CreateOrderInput carries a requester's order submission.
type CreateOrderInput struct {
	RequesterID    string
	RequesterEmail string
	RequesterName  string
	RequesterPhone string
	Service        enums.ServiceType
	Currency       enums.Currency
	Params         json.RawMessage
}

// OrderView is the redacted projection served to anyone holding an order id.
type OrderView struct {
	ID              string              `json:"id"`
	Service         enums.ServiceType   `json:"service"`
	Status          enums.OrderStatus   `json:"status"`
	PaymentStatus   enums.PaymentStatus `json:"paymentStatus"`
	PaymentAmount   *decimal.Decimal    `json:"paymentAmount"`
	PaymentCurrency *string             `json:"paymentCurrency"`
	PaymentMethod   enums.PaymentMethod `json:"paymentMethod"`
	CreatedAt       time.Time           `json:"createdAt"`
	PaidAt          *time.Time          `json:"paidAt"`
}

// OrderSummary is the requester's own view of an order, including the quote.
type OrderSummary struct {
	OrderView
	QuoteAmount   decimal.Decimal `json:"quoteAmount"`
	QuoteCurrency enums.Currency  `json:"quoteCurrency"`
	Params        json.RawMessage `json:"params"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// OrderDetail is the admin view of an order.
type OrderDetail struct {
	OrderSummary
	RequesterID           string  `json:"requesterId"`
	RequesterEmail        string  `json:"requesterEmail"`
	RequesterName         string  `json:"requesterName"`
	RequesterPhone        string  `json:"requesterPhone,omitempty"`
	ProviderTransactionID *string `json:"providerTransactionId,omitempty"`
	ProviderOrderID       *string `json:"providerOrderId,omitempty"`
	Version               int     `json:"version"`
}

// OrderList is one cursor page of orders.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

// SummaryPage is the requester-facing list response.
type SummaryPage struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// DetailPage is the admin list response.
type DetailPage struct {
	Orders     []OrderDetail `json:"orders"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// ListFilters narrows admin order listings.
type ListFilters struct {
	Status *enums.OrderStatus
}

// PaymentUpdate is the set of payment columns written by one reconciliation.
type PaymentUpdate struct {
	PaymentStatus         enums.PaymentStatus
	Status                enums.OrderStatus
	Amount                decimal.NullDecimal
	Currency              *string
	Method                enums.PaymentMethod
	ProviderTransactionID *string
	ProviderOrderID       *string
	PaidAt                *time.Time
}

// UpdateStatusInput is an admin fulfillment transition.
type UpdateStatusInput struct {
	OrderID    string
	Status     enums.OrderStatus
	ActorID    string
	ActorEmail string
}

// NewOrderView projects an order into its redacted form.
func NewOrderView(order *models.Order) OrderView {
	view := OrderView{
		ID:              order.ID,
		Service:         order.Service,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		PaymentCurrency: order.PaymentCurrency,
		PaymentMethod:   order.PaymentMethod,
		CreatedAt:       order.CreatedAt,
		PaidAt:          order.PaidAt,
	}
	if order.PaymentAmount.Valid {
		amount := order.PaymentAmount.Decimal
		view.PaymentAmount = &amount
	}
	return view
}

func newOrderSummary(order *models.Order) OrderSummary {
	return OrderSummary{
		OrderView:     NewOrderView(order),
		QuoteAmount:   order.QuoteAmount,
		QuoteCurrency: order.QuoteCurrency,
		Params:        order.Params,
		UpdatedAt:     order.UpdatedAt,
	}
}

func newOrderDetail(order *models.Order) OrderDetail {
	return OrderDetail{
		OrderSummary:          newOrderSummary(order),
		RequesterID:           order.RequesterID,
		RequesterEmail:        order.RequesterEmail,
		RequesterName:         order.RequesterName,
		RequesterPhone:        order.RequesterPhone,
		ProviderTransactionID: order.ProviderTransactionID,
		ProviderOrderID:       order.ProviderOrderID,
		Version:               order.Version,
	}
}
