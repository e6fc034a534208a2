package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

// Order is a customer's content request together with its fulfillment and
// payment state. Payment columns are owned by reconciliation; Status is shared
// with the fulfillment workflow. Version is bumped on every write and acts as
// the optimistic concurrency token.
type Order struct {
	ID                    string              `gorm:"column:id;type:text;primaryKey"`
	RequesterID           string              `gorm:"column:requester_id;type:text;not null"`
	RequesterEmail        string              `gorm:"column:requester_email;type:text;not null"`
	RequesterName         string              `gorm:"column:requester_name;type:text;not null"`
	RequesterPhone        string              `gorm:"column:requester_phone;type:text;not null;default:''"`
	Service               enums.ServiceType   `gorm:"column:service;type:text;not null"`
	Params                json.RawMessage     `gorm:"column:params;type:jsonb;not null"`
	Status                enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	QuoteAmount           decimal.Decimal     `gorm:"column:quote_amount;type:numeric(12,2);not null"`
	QuoteCurrency         enums.Currency      `gorm:"column:quote_currency;type:text;not null"`
	PaymentStatus         enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'UNSET'"`
	PaymentAmount         decimal.NullDecimal `gorm:"column:payment_amount;type:numeric(12,2)"`
	PaymentCurrency       *string             `gorm:"column:payment_currency;type:text"`
	PaymentMethod         enums.PaymentMethod `gorm:"column:payment_method;type:text;not null;default:'unset'"`
	ProviderTransactionID *string             `gorm:"column:provider_transaction_id;type:text"`
	ProviderOrderID       *string             `gorm:"column:provider_order_id;type:text"`
	Version               int                 `gorm:"column:version;not null;default:1"`
	PaidAt                *time.Time          `gorm:"column:paid_at"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
