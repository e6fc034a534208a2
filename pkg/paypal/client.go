package paypal

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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api-m.paypal.com"
	defaultTimeout              = 10 * time.Second
	tokenPath                   = "/v1/oauth2/token"
	responseBodyReadLimit       = 16 * 1024
	diagnosticReadLimit   int64 = 1024

	// VerificationSuccess is the verify-webhook-signature status for a genuine delivery.
	VerificationSuccess = "SUCCESS"
)

var errCredentialsRequired = errors.New("paypal client id and secret are required")

// Client calls the PayPal REST API. httpClient attaches a client-credentials
// bearer token, fetched and cached by the oauth2 transport.
type Client struct {
	httpClient *http.Client
	base       *http.Client
	baseURL    string
}

type Option func(*Client)

// WithHTTPClient sets the client used for both the token exchange and the
// API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.base = client
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

func NewClient(cfg config.PayPalConfig, opts ...Option) (*Client, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, errCredentialsRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := &Client{
		base:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	credentials := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     client.buildURL(tokenPath),
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, client.base)
	client.httpClient = credentials.Client(tokenCtx)
	client.httpClient.Timeout = timeout
	return client, nil
}

type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type PurchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	CustomID    string `json:"custom_id,omitempty"`
	Amount      Amount `json:"amount"`
	Description string `json:"description,omitempty"`
}

type ApplicationContext struct {
	BrandName   string `json:"brand_name,omitempty"`
	LandingPage string `json:"landing_page,omitempty"`
	UserAction  string `json:"user_action,omitempty"`
	ReturnURL   string `json:"return_url,omitempty"`
	CancelURL   string `json:"cancel_url,omitempty"`
}

// CreateOrderRequest is the body of POST /v2/checkout/orders.
type CreateOrderRequest struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []PurchaseUnit      `json:"purchase_units"`
	ApplicationContext *ApplicationContext `json:"application_context,omitempty"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links"`
}

// ApproveURL returns the buyer approval link, or "" when PayPal sent none.
func (o *Order) ApproveURL() string {
	if o == nil {
		return ""
	}
	for _, link := range o.Links {
		if strings.EqualFold(link.Rel, "approve") {
			return link.Href
		}
	}
	return ""
}

// CreateOrder creates a CAPTURE-intent PayPal order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if len(req.PurchaseUnits) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one purchase unit is required")
	}
	if req.Intent == "" {
		req.Intent = "CAPTURE"
	}

	var order Order
	if err := c.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", req, &order); err != nil {
		return nil, err
	}
	if strings.TrimSpace(order.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal response missing order id")
	}
	return &order, nil
}

// VerifyWebhookSignatureRequest mirrors the transmission headers PayPal sends
// with every webhook delivery plus the raw event.
type VerifyWebhookSignatureRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

// VerifyWebhookSignature asks PayPal whether a delivery is genuine and returns
// its verification_status.
func (c *Client) VerifyWebhookSignature(ctx context.Context, req VerifyWebhookSignatureRequest) (string, error) {
	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", req, &out); err != nil {
		return "", err
	}
	return out.VerificationStatus, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal paypal request")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build paypal request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var tokenErr *oauth2.RetrieveError
		if errors.As(err, &tokenErr) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paypal token request failed")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute paypal request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, apiError(resp), fmt.Sprintf("paypal %s %s failed", method, path))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyReadLimit)).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paypal response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, diagnosticReadLimit))
	var body struct {
		Name    string `json:"name"`
		Message string `json:"message"`
		DebugID string `json:"debug_id"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Name != "" {
		return fmt.Errorf("status %d: %s: %s (debug_id=%s)", resp.StatusCode, body.Name, body.Message, body.DebugID)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
