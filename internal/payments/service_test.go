package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aidigitalagency/storefront-backend/internal/orders"
	"github.com/aidigitalagency/storefront-backend/pkg/cashfree"
	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/paypal"
)

type fakeCashfree struct {
	calls int
	last  cashfree.CreateOrderRequest
	err   error
	block bool
}

func (f *fakeCashfree) CreateOrder(ctx context.Context, req cashfree.CreateOrderRequest) (*cashfree.CreateOrderResponse, error) {
	f.calls++
	f.last = req
	if f.block {
		<-ctx.Done()
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "execute cashfree order request")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &cashfree.CreateOrderResponse{
		CFOrderID:        json.Number("4410"),
		OrderID:          req.OrderID,
		PaymentSessionID: "session_abc",
	}, nil
}

func (f *fakeCashfree) CheckoutURL(sessionID string) string {
	return "https://payments.cashfree.com/pay/" + sessionID
}

type fakePayPal struct {
	calls int
	last  paypal.CreateOrderRequest
}

func (f *fakePayPal) CreateOrder(_ context.Context, req paypal.CreateOrderRequest) (*paypal.Order, error) {
	f.calls++
	f.last = req
	return &paypal.Order{
		ID:     "5O190127TN364715T",
		Status: "CREATED",
		Links:  []paypal.Link{{Rel: "approve", Href: "https://www.paypal.com/checkoutnow?token=5O190127TN364715T"}},
	}, nil
}

type sessionFixture struct {
	svc      *Service
	db       *gorm.DB
	cashfree *fakeCashfree
	paypal   *fakePayPal
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Order{}))
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	cf := &fakeCashfree{}
	pp := &fakePayPal{}
	svc, err := NewService(ServiceParams{
		Orders: orders.NewRepository(conn),
		Providers: []Provider{
			NewCashfreeProvider(cf, "https://shop.example.com/"),
			NewPayPalProvider(pp, "https://shop.example.com", "AI Digital Agency"),
		},
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	return &sessionFixture{svc: svc, db: conn, cashfree: cf, paypal: pp}
}

func (f *sessionFixture) seed(t *testing.T, id string, mutate func(*models.Order)) {
	t.Helper()
	order := &models.Order{
		ID:             id,
		RequesterID:    "user-1",
		RequesterEmail: "asha@example.com",
		RequesterName:  "Asha",
		RequesterPhone: "9999999999",
		Service:        enums.ServiceGraphics,
		Params:         json.RawMessage(`{"description":"logo"}`),
		Status:         enums.OrderStatusPending,
		QuoteAmount:    decimal.RequireFromString("19.5"),
		QuoteCurrency:  enums.CurrencyINR,
		PaymentStatus:  enums.PaymentStatusUnset,
		PaymentMethod:  enums.PaymentMethodUnset,
		Version:        1,
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, f.db.Create(order).Error)
}

func TestCreateSessionCashfreeKeepsOrderIDVerbatim(t *testing.T) {
	f := newSessionFixture(t)
	f.seed(t, "ord_123", nil)

	session, err := f.svc.CreateSession(context.Background(), CreateSessionInput{OrderID: "ord_123", Provider: "cashfree", RequesterID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentMethodCashfree, session.Provider)
	require.Equal(t, "session_abc", session.SessionID)
	require.Equal(t, "https://payments.cashfree.com/pay/session_abc", session.RedirectURL)

	sent := f.cashfree.last
	require.Equal(t, "ord_123", sent.OrderID)
	require.Equal(t, json.Number("19.5"), sent.OrderAmount)
	require.Equal(t, "INR", sent.OrderCurrency)
	require.Equal(t, "9999999999", sent.CustomerDetails.CustomerPhone)
	require.Equal(t, "https://shop.example.com/payment/success?orderId=ord_123", sent.OrderMeta.ReturnURL)
	require.Equal(t, "https://shop.example.com/api/v1/webhooks/cashfree", sent.OrderMeta.NotifyURL)
	require.Equal(t, "Payment for order ord_123", sent.OrderNote)

	var stored models.Order
	require.NoError(t, f.db.Where("id = ?", "ord_123").First(&stored).Error)
	require.Equal(t, "4410", *stored.ProviderOrderID)
	require.Equal(t, 1, stored.Version)
}

func TestCreateSessionPayPalUsesTwoDecimals(t *testing.T) {
	f := newSessionFixture(t)
	f.seed(t, "ord_123", func(o *models.Order) { o.QuoteCurrency = enums.CurrencyUSD })

	session, err := f.svc.CreateSession(context.Background(), CreateSessionInput{OrderID: "ord_123", Provider: "PayPal", RequesterID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, "5O190127TN364715T", session.SessionID)
	require.Contains(t, session.RedirectURL, "checkoutnow")

	unit := f.paypal.last.PurchaseUnits[0]
	require.Equal(t, "ord_123", unit.ReferenceID)
	require.Equal(t, "ord_123", unit.CustomID)
	require.Equal(t, "19.50", unit.Amount.Value)
	require.Equal(t, "USD", unit.Amount.CurrencyCode)
	require.Equal(t, "CAPTURE", f.paypal.last.Intent)
	require.Equal(t, "PAY_NOW", f.paypal.last.ApplicationContext.UserAction)
	require.Equal(t, "https://shop.example.com/payment/cancel?orderId=ord_123", f.paypal.last.ApplicationContext.CancelURL)
}

func TestCreateSessionValidatesBeforeNetwork(t *testing.T) {
	f := newSessionFixture(t)
	f.seed(t, "ord_zero", func(o *models.Order) { o.QuoteAmount = decimal.Zero })
	f.seed(t, "ord_nomail", func(o *models.Order) { o.RequesterEmail = " " })
	f.seed(t, "ord_nophone", func(o *models.Order) { o.RequesterPhone = "" })

	for _, id := range []string{"ord_zero", "ord_nomail", "ord_nophone"} {
		_, err := f.svc.CreateSession(context.Background(), CreateSessionInput{OrderID: id, Provider: "cashfree", RequesterID: "user-1"})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), id)
	}
	require.Zero(t, f.cashfree.calls)
}

func TestCreateSessionGuardsOrderState(t *testing.T) {
	f := newSessionFixture(t)
	f.seed(t, "ord_paid", func(o *models.Order) {
		o.Status = enums.OrderStatusPaid
		o.PaymentStatus = enums.PaymentStatusSuccess
	})
	f.seed(t, "ord_mine", nil)
	ctx := context.Background()

	_, err := f.svc.CreateSession(ctx, CreateSessionInput{OrderID: "ord_paid", Provider: "cashfree", RequesterID: "user-1"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.CreateSession(ctx, CreateSessionInput{OrderID: "ord_mine", Provider: "cashfree", RequesterID: "user-2"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.CreateSession(ctx, CreateSessionInput{OrderID: "ord_missing", Provider: "cashfree", RequesterID: "user-1"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.CreateSession(ctx, CreateSessionInput{OrderID: "ord_mine", Provider: "stripe", RequesterID: "user-1"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Zero(t, f.cashfree.calls)
}

func TestCreateSessionAllowsRetryAfterFailedPayment(t *testing.T) {
	f := newSessionFixture(t)
	f.seed(t, "ord_failed", func(o *models.Order) {
		o.Status = enums.OrderStatusPaymentFailed
		o.PaymentStatus = enums.PaymentStatusFailed
		o.PaymentMethod = enums.PaymentMethodCashfree
	})
	f.seed(t, "ord_cancelled", func(o *models.Order) {
		o.Status = enums.OrderStatusCancelled
		o.PaymentStatus = enums.PaymentStatusFailed
	})
	ctx := context.Background()

	_, err := f.svc.CreateSession(ctx, CreateSessionInput{OrderID: "ord_failed", Provider: "cashfree", RequesterID: "user-2"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	require.Zero(t, f.cashfree.calls)

	session, err := f.svc.CreateSession(ctx, CreateSessionInput{OrderID: "ord_failed", Provider: "cashfree", RequesterID: "user-1"})
	require.NoError(t, err)
	require.Equal(t, "session_abc", session.SessionID)
	require.Equal(t, "ord_failed", f.cashfree.last.OrderID)
	require.Equal(t, 1, f.cashfree.calls)

	_, err = f.svc.CreateSession(ctx, CreateSessionInput{OrderID: "ord_cancelled", Provider: "cashfree", RequesterID: "user-1"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, 1, f.cashfree.calls)
}

func TestCreateSessionProviderFailure(t *testing.T) {
	f := newSessionFixture(t)
	f.seed(t, "ord_123", nil)
	f.cashfree.err = pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("status 400: order_currency is invalid (order_currency_invalid)"), "cashfree order request failed")

	_, err := f.svc.CreateSession(context.Background(), CreateSessionInput{OrderID: "ord_123", Provider: "cashfree", RequesterID: "user-1"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSessionCreationFailed))
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Equal(t, "status 400: order_currency is invalid (order_currency_invalid)", details["reason"])
	require.Equal(t, 1, f.cashfree.calls)
}

func TestCreateSessionTimesOut(t *testing.T) {
	f := newSessionFixture(t)
	f.seed(t, "ord_123", nil)
	f.cashfree.block = true

	_, err := f.svc.CreateSession(context.Background(), CreateSessionInput{OrderID: "ord_123", Provider: "cashfree", RequesterID: "user-1"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSessionCreationFailed))
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Equal(t, "provider timed out", details["reason"])
}

func TestCreateSessionUnconfiguredProvider(t *testing.T) {
	svc, err := NewService(ServiceParams{Orders: orders.NewRepository(nil)})
	require.NoError(t, err)

	_, err = svc.CreateSession(context.Background(), CreateSessionInput{OrderID: "ord_1", Provider: "paypal", RequesterID: "user-1"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
