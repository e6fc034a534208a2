package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aidigitalagency/storefront-backend/internal/webhooks"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
)

type stubWebhookService struct {
	outcome  webhooks.Outcome
	err      error
	provider enums.PaymentMethod
	payload  []byte
	header   http.Header
}

func (s *stubWebhookService) Handle(_ context.Context, provider enums.PaymentMethod, payload []byte, header http.Header) (webhooks.Outcome, error) {
	s.provider = provider
	s.payload = payload
	s.header = header
	return s.outcome, s.err
}

func TestPaymentWebhookPassesRawBody(t *testing.T) {
	svc := &stubWebhookService{outcome: webhooks.Outcome{Result: enums.ReconcileApplied, OrderID: "ord_1"}}
	body := `{"data":{"order":{"order_id":"ord_1"}}}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/cashfree", strings.NewReader(body))
	req.Header.Set("x-webhook-signature", "sig")
	rec := httptest.NewRecorder()
	PaymentWebhook(enums.PaymentMethodCashfree, svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.provider != enums.PaymentMethodCashfree {
		t.Fatalf("unexpected provider %s", svc.provider)
	}
	if string(svc.payload) != body {
		t.Fatalf("body altered: %s", svc.payload)
	}
	if svc.header.Get("x-webhook-signature") != "sig" {
		t.Fatalf("headers not forwarded")
	}

	var envelope struct {
		Data webhooks.Outcome `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Result != enums.ReconcileApplied || envelope.Data.OrderID != "ord_1" {
		t.Fatalf("unexpected outcome %+v", envelope.Data)
	}
}

func TestPaymentWebhookErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "bad signature", err: pkgerrors.New(pkgerrors.CodeAuthenticationFailed, "signature mismatch"), status: http.StatusUnauthorized},
		{name: "malformed", err: pkgerrors.New(pkgerrors.CodeMalformedEvent, "missing order id"), status: http.StatusBadRequest},
		{name: "unknown order", err: pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found"), status: http.StatusNotFound},
		{name: "store failure", err: pkgerrors.New(pkgerrors.CodeInternal, "db down"), status: http.StatusInternalServerError},
		{name: "verification unreachable", err: pkgerrors.New(pkgerrors.CodeDependency, "paypal unavailable"), status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubWebhookService{err: tc.err}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			PaymentWebhook(enums.PaymentMethodPayPal, svc, nil).ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestPaymentWebhookDuplicateIsOK(t *testing.T) {
	svc := &stubWebhookService{outcome: webhooks.Outcome{Result: enums.ReconcileDuplicate}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	PaymentWebhook(enums.PaymentMethodPayPal, svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestPaymentWebhookRejectsOversizedBody(t *testing.T) {
	svc := &stubWebhookService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", strings.NewReader(strings.Repeat("a", maxWebhookBody+1)))
	rec := httptest.NewRecorder()
	PaymentWebhook(enums.PaymentMethodPayPal, svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.payload != nil {
		t.Fatalf("service should not run")
	}
}
