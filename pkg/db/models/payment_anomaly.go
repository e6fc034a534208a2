package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

// PaymentAnomaly records a webhook whose outcome contradicts an order's
// terminal payment status. Repeat deliveries of the same contradiction bump
// Occurrences instead of inserting new rows.
type PaymentAnomaly struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID               string              `gorm:"column:order_id;type:text;not null"`
	Provider              enums.PaymentMethod `gorm:"column:provider;type:text;not null"`
	ObservedStatus        enums.PaymentStatus `gorm:"column:observed_status;type:text;not null"`
	ReportedStatus        enums.PaymentStatus `gorm:"column:reported_status;type:text;not null"`
	ReportedAmount        decimal.NullDecimal `gorm:"column:reported_amount;type:numeric(12,2)"`
	ReportedCurrency      *string             `gorm:"column:reported_currency;type:text"`
	ProviderTransactionID *string             `gorm:"column:provider_transaction_id;type:text"`
	ProviderEventID       *string             `gorm:"column:provider_event_id;type:text"`
	Payload               json.RawMessage     `gorm:"column:payload;type:jsonb"`
	Status                enums.AnomalyStatus `gorm:"column:status;type:text;not null;default:'open'"`
	Occurrences           int                 `gorm:"column:occurrences;not null;default:1"`
	ResolvedBy            *string             `gorm:"column:resolved_by;type:text"`
	ResolutionNote        *string             `gorm:"column:resolution_note;type:text"`
	ResolvedAt            *time.Time          `gorm:"column:resolved_at"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentAnomaly) TableName() string { return "payment_anomalies" }
