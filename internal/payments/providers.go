package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/pkg/cashfree"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/paypal"
)

// SessionRequest is everything an adapter needs to start a hosted checkout.
// OrderID is sent to the provider verbatim as its reference id.
type SessionRequest struct {
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Description   string
}

// Session is a provider-hosted checkout for one order.
type Session struct {
	Provider        enums.PaymentMethod `json:"provider"`
	SessionID       string              `json:"sessionId"`
	RedirectURL     string              `json:"redirectUrl"`
	ProviderOrderID string              `json:"-"`
}

// Provider creates remote payment sessions.
type Provider interface {
	Method() enums.PaymentMethod
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

type cashfreeOrderClient interface {
	CreateOrder(ctx context.Context, req cashfree.CreateOrderRequest) (*cashfree.CreateOrderResponse, error)
	CheckoutURL(sessionID string) string
}

// CashfreeProvider starts Cashfree hosted checkouts.
type CashfreeProvider struct {
	client        cashfreeOrderClient
	publicBaseURL string
}

func NewCashfreeProvider(client cashfreeOrderClient, publicBaseURL string) *CashfreeProvider {
	return &CashfreeProvider{client: client, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (p *CashfreeProvider) Method() enums.PaymentMethod { return enums.PaymentMethodCashfree }

func (p *CashfreeProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if strings.TrimSpace(req.CustomerPhone) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer phone is required for cashfree")
	}
	resp, err := p.client.CreateOrder(ctx, cashfree.CreateOrderRequest{
		OrderID:       req.OrderID,
		OrderAmount:   json.Number(req.Amount.String()),
		OrderCurrency: req.Currency,
		CustomerDetails: cashfree.CustomerDetails{
			CustomerID:    req.CustomerID,
			CustomerName:  req.CustomerName,
			CustomerEmail: req.CustomerEmail,
			CustomerPhone: req.CustomerPhone,
		},
		OrderMeta: cashfree.OrderMeta{
			ReturnURL: p.publicBaseURL + "/payment/success?orderId=" + url.QueryEscape(req.OrderID),
			NotifyURL: p.publicBaseURL + "/api/v1/webhooks/cashfree",
		},
		OrderNote: fmt.Sprintf("Payment for order %s", req.OrderID),
	})
	if err != nil {
		return nil, err
	}
	return &Session{
		Provider:        enums.PaymentMethodCashfree,
		SessionID:       resp.PaymentSessionID,
		RedirectURL:     p.client.CheckoutURL(resp.PaymentSessionID),
		ProviderOrderID: resp.CFOrderID.String(),
	}, nil
}

type paypalOrderClient interface {
	CreateOrder(ctx context.Context, req paypal.CreateOrderRequest) (*paypal.Order, error)
}

// PayPalProvider starts PayPal checkouts with CAPTURE intent.
type PayPalProvider struct {
	client        paypalOrderClient
	publicBaseURL string
	brandName     string
}

func NewPayPalProvider(client paypalOrderClient, publicBaseURL, brandName string) *PayPalProvider {
	return &PayPalProvider{
		client:        client,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		brandName:     brandName,
	}
}

func (p *PayPalProvider) Method() enums.PaymentMethod { return enums.PaymentMethodPayPal }

func (p *PayPalProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	escaped := url.QueryEscape(req.OrderID)
	order, err := p.client.CreateOrder(ctx, paypal.CreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypal.PurchaseUnit{{
			ReferenceID: req.OrderID,
			CustomID:    req.OrderID,
			Description: req.Description,
			Amount: paypal.Amount{
				CurrencyCode: req.Currency,
				Value:        req.Amount.StringFixed(2),
			},
		}},
		ApplicationContext: &paypal.ApplicationContext{
			BrandName:   p.brandName,
			LandingPage: "BILLING",
			UserAction:  "PAY_NOW",
			ReturnURL:   p.publicBaseURL + "/payment/success?orderId=" + escaped,
			CancelURL:   p.publicBaseURL + "/payment/cancel?orderId=" + escaped,
		},
	})
	if err != nil {
		return nil, err
	}
	approve := order.ApproveURL()
	if approve == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal order has no approval link")
	}
	return &Session{
		Provider:        enums.PaymentMethodPayPal,
		SessionID:       order.ID,
		RedirectURL:     approve,
		ProviderOrderID: order.ID,
	}, nil
}
