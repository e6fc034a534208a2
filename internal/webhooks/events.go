package webhooks

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/internal/reconcile"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
)

var errTrailingData = errors.New("unexpected data after payload")

const (
	PayPalEventOrderApproved   = "CHECKOUT.ORDER.APPROVED"
	PayPalEventCaptureComplete = "PAYMENT.CAPTURE.COMPLETED"
)

// Delivery is a decoded provider callback. Event is nil when the delivery is
// authentic but carries no payment outcome.
type Delivery struct {
	Provider enums.PaymentMethod
	EventID  string
	Event    *reconcile.Event
}

type cashfreeWebhook struct {
	Type string        `json:"type"`
	Data *cashfreeData `json:"data"`
}

type cashfreeData struct {
	OrderID         string              `json:"order_id"`
	PaymentStatus   string              `json:"payment_status"`
	PaymentAmount   decimal.NullDecimal `json:"payment_amount"`
	PaymentCurrency string              `json:"payment_currency"`
	CFPaymentID     json.Number         `json:"cf_payment_id"`
}

// ParseCashfree decodes a Cashfree payment callback. SUCCESS and FAILED map to
// outcomes; any other status is authentic but ignored. Cashfree carries no
// delivery id in this shape, so the body digest identifies the delivery.
func ParseCashfree(payload []byte, receivedAt time.Time) (*Delivery, error) {
	var body cashfreeWebhook
	if err := decodeStrict(payload, &body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedEvent, err, "decode cashfree webhook")
	}
	if body.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeMalformedEvent, "cashfree webhook data missing")
	}
	orderID := strings.TrimSpace(body.Data.OrderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformedEvent, "cashfree webhook order_id missing")
	}

	sum := sha256.Sum256(payload)
	delivery := &Delivery{Provider: enums.PaymentMethodCashfree, EventID: hex.EncodeToString(sum[:])}

	var outcome enums.PaymentStatus
	switch strings.ToUpper(strings.TrimSpace(body.Data.PaymentStatus)) {
	case "SUCCESS":
		outcome = enums.PaymentStatusSuccess
	case "FAILED":
		outcome = enums.PaymentStatusFailed
	default:
		return delivery, nil
	}

	delivery.Event = &reconcile.Event{
		Provider:              enums.PaymentMethodCashfree,
		OrderID:               orderID,
		Outcome:               outcome,
		Amount:                body.Data.PaymentAmount,
		Currency:              strings.TrimSpace(body.Data.PaymentCurrency),
		ProviderTransactionID: body.Data.CFPaymentID.String(),
		ProviderEventID:       delivery.EventID,
		Payload:               json.RawMessage(payload),
		ReceivedAt:            receivedAt,
	}
	return delivery, nil
}

type paypalWebhook struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

type paypalAmount struct {
	CurrencyCode string              `json:"currency_code"`
	Value        decimal.NullDecimal `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string        `json:"reference_id"`
	CustomID    string        `json:"custom_id"`
	Amount      *paypalAmount `json:"amount"`
}

// paypalResource covers both the order resource of CHECKOUT.ORDER.APPROVED and
// the capture resource of PAYMENT.CAPTURE.COMPLETED.
type paypalResource struct {
	ID                string               `json:"id"`
	Status            string               `json:"status"`
	CustomID          string               `json:"custom_id"`
	Amount            *paypalAmount        `json:"amount"`
	PurchaseUnits     []paypalPurchaseUnit `json:"purchase_units"`
	SupplementaryData *struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// ParsePayPal decodes a PayPal webhook. Only order approval and capture
// completion reconcile; every other event type is authentic but ignored.
func ParsePayPal(payload []byte, receivedAt time.Time) (*Delivery, error) {
	var body paypalWebhook
	if err := decodeStrict(payload, &body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedEvent, err, "decode paypal webhook")
	}
	eventID := strings.TrimSpace(body.ID)
	if eventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformedEvent, "paypal webhook id missing")
	}
	delivery := &Delivery{Provider: enums.PaymentMethodPayPal, EventID: eventID}

	eventType := strings.TrimSpace(body.EventType)
	if eventType != PayPalEventOrderApproved && eventType != PayPalEventCaptureComplete {
		return delivery, nil
	}
	if len(body.Resource) == 0 || bytes.Equal(bytes.TrimSpace(body.Resource), []byte("null")) {
		return nil, pkgerrors.New(pkgerrors.CodeMalformedEvent, "paypal webhook resource missing")
	}

	var resource paypalResource
	if err := decodeStrict(body.Resource, &resource); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedEvent, err, "decode paypal resource")
	}

	event := &reconcile.Event{
		Provider:        enums.PaymentMethodPayPal,
		Outcome:         enums.PaymentStatusSuccess,
		ProviderEventID: eventID,
		Payload:         json.RawMessage(payload),
		ReceivedAt:      receivedAt,
	}

	var unit *paypalPurchaseUnit
	if len(resource.PurchaseUnits) > 0 {
		unit = &resource.PurchaseUnits[0]
	}

	switch eventType {
	case PayPalEventOrderApproved:
		if unit == nil {
			return nil, pkgerrors.New(pkgerrors.CodeMalformedEvent, "paypal order has no purchase units")
		}
		event.OrderID = strings.TrimSpace(unit.ReferenceID)
		event.ProviderOrderID = strings.TrimSpace(resource.ID)
		event.ProviderTransactionID = event.ProviderOrderID
		applyPayPalAmount(event, unit.Amount)
	case PayPalEventCaptureComplete:
		event.OrderID = strings.TrimSpace(resource.CustomID)
		if event.OrderID == "" && unit != nil {
			event.OrderID = strings.TrimSpace(unit.ReferenceID)
		}
		event.ProviderTransactionID = strings.TrimSpace(resource.ID)
		if resource.SupplementaryData != nil {
			event.ProviderOrderID = strings.TrimSpace(resource.SupplementaryData.RelatedIDs.OrderID)
		}
		amount := resource.Amount
		if amount == nil && unit != nil {
			amount = unit.Amount
		}
		applyPayPalAmount(event, amount)
	}

	if event.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformedEvent, "paypal webhook reference id missing")
	}
	delivery.Event = event
	return delivery, nil
}

func applyPayPalAmount(event *reconcile.Event, amount *paypalAmount) {
	if amount == nil {
		return
	}
	event.Amount = amount.Value
	event.Currency = strings.TrimSpace(amount.CurrencyCode)
}

// decodeStrict rejects trailing data and type mismatches. Unknown fields are
// tolerated since providers add them without notice.
func decodeStrict(payload []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}
