package cashfree

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
)

const (
	defaultBaseURL            = "https://api.cashfree.com/pg"
	defaultCheckoutBaseURL    = "https://payments.cashfree.com/pay"
	defaultAPIVersion         = "2023-08-01"
	defaultTimeout            = 10 * time.Second
	responseBodyReadLimit     = 4096
	diagnosticReadLimit int64 = 1024
)

var errCredentialsRequired = errors.New("cashfree client id and secret are required")

// Client calls the Cashfree Payment Gateway orders API.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	checkoutBaseURL string
	apiVersion      string
	clientID        string
	clientSecret    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds a Cashfree client from config.
func NewClient(cfg config.CashfreeConfig, opts ...Option) (*Client, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, errCredentialsRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient:      &http.Client{Timeout: timeout},
		baseURL:         firstNonEmpty(cfg.BaseURL, defaultBaseURL),
		checkoutBaseURL: firstNonEmpty(cfg.CheckoutBaseURL, defaultCheckoutBaseURL),
		apiVersion:      firstNonEmpty(cfg.APIVersion, defaultAPIVersion),
		clientID:        clientID,
		clientSecret:    clientSecret,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CustomerDetails identifies the payer.
type CustomerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

// OrderMeta carries the browser return and server notification URLs.
type OrderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

// CreateOrderRequest is the body of POST /orders. OrderAmount is a JSON
// number, not a string.
type CreateOrderRequest struct {
	OrderID         string          `json:"order_id"`
	OrderAmount     json.Number     `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
	CustomerDetails CustomerDetails `json:"customer_details"`
	OrderMeta       OrderMeta       `json:"order_meta"`
	OrderNote       string          `json:"order_note,omitempty"`
}

// CreateOrderResponse holds the fields the storefront needs from Cashfree.
type CreateOrderResponse struct {
	CFOrderID        json.Number `json:"cf_order_id"`
	OrderID          string      `json:"order_id"`
	OrderStatus      string      `json:"order_status"`
	PaymentSessionID string      `json:"payment_session_id"`
}

// CreateOrder registers an order with Cashfree and returns its payment session.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cashfree client not configured")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal cashfree order request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("orders"), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build cashfree order request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-client-id", c.clientID)
	httpReq.Header.Set("x-client-secret", c.clientSecret)
	httpReq.Header.Set("x-api-version", c.apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute cashfree order request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, apiError(resp), "cashfree order request failed")
	}

	var out CreateOrderResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyReadLimit)).Decode(&out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode cashfree order response")
	}
	if strings.TrimSpace(out.PaymentSessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cashfree response missing payment_session_id")
	}
	return &out, nil
}

// CheckoutURL returns the hosted checkout page for a payment session.
func (c *Client) CheckoutURL(sessionID string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.checkoutBaseURL, "/"), strings.TrimSpace(sessionID))
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
}

// apiError extracts Cashfree's {message, code, type} diagnostic.
func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, diagnosticReadLimit))
	var body struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return fmt.Errorf("status %d: %s (%s)", resp.StatusCode, body.Message, body.Code)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
