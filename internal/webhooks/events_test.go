package webhooks

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
)

func TestParseCashfreeMapsOutcome(t *testing.T) {
	body := []byte(`{"data":{"order_id":"ord_1","payment_status":"SUCCESS","payment_amount":100,"payment_currency":"INR","cf_payment_id":887766}}`)
	delivery, err := ParseCashfree(body, time.Now())
	require.NoError(t, err)
	require.NotNil(t, delivery.Event)
	require.Len(t, delivery.EventID, 64)

	event := delivery.Event
	require.Equal(t, "ord_1", event.OrderID)
	require.Equal(t, enums.PaymentStatusSuccess, event.Outcome)
	require.True(t, event.Amount.Valid)
	require.True(t, event.Amount.Decimal.Equal(decimal.NewFromInt(100)))
	require.Equal(t, "INR", event.Currency)
	require.Equal(t, "887766", event.ProviderTransactionID)

	failed, err := ParseCashfree([]byte(`{"data":{"order_id":"ord_1","payment_status":"FAILED","payment_amount":"12.50"}}`), time.Now())
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusFailed, failed.Event.Outcome)
	require.Equal(t, "12.5", failed.Event.Amount.Decimal.String())
}

func TestParseCashfreeIgnoresOtherStatuses(t *testing.T) {
	delivery, err := ParseCashfree([]byte(`{"data":{"order_id":"ord_1","payment_status":"USER_DROPPED"}}`), time.Now())
	require.NoError(t, err)
	require.Nil(t, delivery.Event)
}

func TestParseCashfreeRejectsMalformed(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{}`,
		`{"data":{"payment_status":"SUCCESS"}}`,
		`{"data":{"order_id":42,"payment_status":"SUCCESS"}}`,
		`{"data":{"order_id":"ord_1","payment_status":"SUCCESS","payment_amount":"abc"}}`,
		`{"data":{"order_id":"ord_1"}} {"extra":true}`,
	} {
		_, err := ParseCashfree([]byte(body), time.Now())
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMalformedEvent), body)
	}
}

func TestParsePayPalOrderApproved(t *testing.T) {
	body := []byte(`{
		"id": "WH-EVT-1",
		"event_type": "CHECKOUT.ORDER.APPROVED",
		"resource": {
			"id": "5O190127TN364715T",
			"status": "APPROVED",
			"purchase_units": [{"reference_id": "ord_123", "amount": {"currency_code": "USD", "value": "37.50"}}]
		}
	}`)
	delivery, err := ParsePayPal(body, time.Now())
	require.NoError(t, err)
	require.Equal(t, "WH-EVT-1", delivery.EventID)

	event := delivery.Event
	require.NotNil(t, event)
	require.Equal(t, "ord_123", event.OrderID)
	require.Equal(t, enums.PaymentStatusSuccess, event.Outcome)
	require.Equal(t, "USD", event.Currency)
	require.Equal(t, "37.5", event.Amount.Decimal.String())
	require.Equal(t, "5O190127TN364715T", event.ProviderOrderID)
}

func TestParsePayPalCaptureCompleted(t *testing.T) {
	body := []byte(`{
		"id": "WH-EVT-2",
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "CAPTURE-9",
			"status": "COMPLETED",
			"custom_id": "ord_123",
			"amount": {"currency_code": "USD", "value": "37.50"},
			"supplementary_data": {"related_ids": {"order_id": "5O190127TN364715T"}}
		}
	}`)
	delivery, err := ParsePayPal(body, time.Now())
	require.NoError(t, err)
	require.Equal(t, "ord_123", delivery.Event.OrderID)
	require.Equal(t, "CAPTURE-9", delivery.Event.ProviderTransactionID)
	require.Equal(t, "5O190127TN364715T", delivery.Event.ProviderOrderID)
}

func TestParsePayPalIgnoresOtherEvents(t *testing.T) {
	delivery, err := ParsePayPal([]byte(`{"id":"WH-EVT-3","event_type":"PAYMENT.CAPTURE.REFUNDED","resource":{"id":"x"}}`), time.Now())
	require.NoError(t, err)
	require.Nil(t, delivery.Event)
}

func TestParsePayPalRejectsMalformed(t *testing.T) {
	for _, body := range []string{
		`{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{}}`,
		`{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED"}`,
		`{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"P1","purchase_units":[]}}`,
		`{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"P1","purchase_units":[{"amount":{"value":"1.00","currency_code":"USD"}}]}}`,
		`{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"purchase_units":"ord_1"}}`,
	} {
		_, err := ParsePayPal([]byte(body), time.Now())
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMalformedEvent), body)
	}
}
