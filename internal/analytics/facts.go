// Package analytics projects order and payment events into the BigQuery
// payment_events table.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/internal/subscriber"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox/payloads"
)

const ConsumerName = "analytics"

// TrackedEvents are the event types that produce a payment_events row.
var TrackedEvents = []enums.OutboxEventType{
	enums.EventOrderCreated,
	enums.EventOrderPaymentRecorded,
	enums.EventOrderCompleted,
	enums.EventPaymentAnomalyRecorded,
}

// PaymentEventRow is one row of payment_events.
type PaymentEventRow struct {
	EventID       string              `bigquery:"event_id"`
	EventType     string              `bigquery:"event_type"`
	OccurredAt    time.Time           `bigquery:"occurred_at"`
	OrderID       string              `bigquery:"order_id"`
	Service       bigquery.NullString `bigquery:"service"`
	Provider      bigquery.NullString `bigquery:"provider"`
	PaymentStatus bigquery.NullString `bigquery:"payment_status"`
	OrderStatus   bigquery.NullString `bigquery:"order_status"`
	Amount        *big.Rat            `bigquery:"amount"`
	Currency      bigquery.NullString `bigquery:"currency"`
	AnomalyID     bigquery.NullString `bigquery:"anomaly_id"`
	Occurrences   bigquery.NullInt64  `bigquery:"occurrences"`
	Payload       bigquery.NullJSON   `bigquery:"payload"`
}

type rowSink interface {
	Add(ctx context.Context, row PaymentEventRow) error
}

// Facts is the subscriber handler that turns tracked events into rows.
type Facts struct {
	sink rowSink
}

func NewFacts(sink rowSink) (*Facts, error) {
	if sink == nil {
		return nil, fmt.Errorf("analytics row sink required")
	}
	return &Facts{sink: sink}, nil
}

func (f *Facts) Handle(ctx context.Context, ev subscriber.Event) error {
	row, err := RowFor(ev)
	if err != nil {
		return err
	}
	return f.sink.Add(ctx, row)
}

// RowFor builds the payment_events row for ev. Untracked types return
// subscriber.ErrIgnored.
func RowFor(ev subscriber.Event) (PaymentEventRow, error) {
	row := PaymentEventRow{
		EventID:    ev.ID,
		EventType:  string(ev.Type),
		OccurredAt: ev.OccurredAt,
		OrderID:    ev.AggregateID,
		Payload:    jsonColumn(ev.Data),
	}

	switch ev.Type {
	case enums.EventOrderCreated:
		p, err := subscriber.Bind[payloads.OrderCreatedEvent](ev)
		if err != nil {
			return PaymentEventRow{}, err
		}
		row.OrderID = orDefault(p.OrderID, row.OrderID)
		row.Service = nullString(string(p.Service))
		row.OrderStatus = nullString(string(enums.OrderStatusPending))
		row.PaymentStatus = nullString(string(enums.PaymentStatusUnset))
		row.Amount = numeric(p.QuoteAmount)
		row.Currency = nullString(string(p.QuoteCurrency))
	case enums.EventOrderPaymentRecorded:
		p, err := subscriber.Bind[payloads.OrderPaymentRecordedEvent](ev)
		if err != nil {
			return PaymentEventRow{}, err
		}
		row.OrderID = orDefault(p.OrderID, row.OrderID)
		row.Provider = nullString(string(p.Provider))
		row.PaymentStatus = nullString(string(p.PaymentStatus))
		row.OrderStatus = nullString(string(p.Status))
		row.Amount = numeric(p.Amount)
		row.Currency = nullString(p.Currency)
	case enums.EventOrderCompleted:
		p, err := subscriber.Bind[payloads.OrderCompletedEvent](ev)
		if err != nil {
			return PaymentEventRow{}, err
		}
		row.OrderID = orDefault(p.OrderID, row.OrderID)
		row.Service = nullString(string(p.Service))
		row.OrderStatus = nullString(string(enums.OrderStatusCompleted))
	case enums.EventPaymentAnomalyRecorded:
		p, err := subscriber.Bind[payloads.PaymentAnomalyRecordedEvent](ev)
		if err != nil {
			return PaymentEventRow{}, err
		}
		row.OrderID = orDefault(p.OrderID, row.OrderID)
		row.Provider = nullString(string(p.Provider))
		row.PaymentStatus = nullString(string(p.ReportedStatus))
		row.Amount = numeric(p.Amount)
		row.Currency = nullString(p.Currency)
		row.AnomalyID = nullString(p.AnomalyID)
		row.Occurrences = bigquery.NullInt64{Int64: int64(p.Occurrences), Valid: true}
	default:
		return PaymentEventRow{}, subscriber.ErrIgnored
	}
	return row, nil
}

func nullString(v string) bigquery.NullString {
	return bigquery.NullString{StringVal: v, Valid: v != ""}
}

// numeric leaves zero amounts NULL; facts without an amount report zero.
func numeric(v decimal.Decimal) *big.Rat {
	if v.IsZero() {
		return nil
	}
	return v.Rat()
}

func jsonColumn(raw json.RawMessage) bigquery.NullJSON {
	if len(raw) == 0 {
		return bigquery.NullJSON{}
	}
	return bigquery.NullJSON{JSONVal: string(raw), Valid: true}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
