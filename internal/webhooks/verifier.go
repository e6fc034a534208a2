package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/paypal"
)

const (
	HeaderCashfreeSignature = "x-webhook-signature"

	HeaderPayPalTransmissionID   = "PAYPAL-TRANSMISSION-ID"
	HeaderPayPalTransmissionTime = "PAYPAL-TRANSMISSION-TIME"
	HeaderPayPalTransmissionSig  = "PAYPAL-TRANSMISSION-SIG"
	HeaderPayPalCertURL          = "PAYPAL-CERT-URL"
	HeaderPayPalAuthAlgo         = "PAYPAL-AUTH-ALGO"
)

// PayPalSignatureVerifier asks PayPal to confirm a delivery signature.
type PayPalSignatureVerifier interface {
	VerifyWebhookSignature(ctx context.Context, req paypal.VerifyWebhookSignatureRequest) (string, error)
}

// Verifier authenticates inbound provider deliveries. It never touches the
// order store and never logs secrets.
type Verifier struct {
	cashfreeSecret  string
	paypal          PayPalSignatureVerifier
	paypalWebhookID string
	tolerance       time.Duration
	now             func() time.Time
}

// NewVerifier builds a verifier. A missing secret, webhook id or PayPal client
// makes every delivery for that provider fail authentication.
func NewVerifier(cashfree config.CashfreeConfig, pp config.PayPalConfig, client PayPalSignatureVerifier) *Verifier {
	return &Verifier{
		cashfreeSecret:  cashfree.WebhookSecret,
		paypal:          client,
		paypalWebhookID: strings.TrimSpace(pp.WebhookID),
		tolerance:       pp.TransmissionTolerance,
		now:             time.Now,
	}
}

// VerifyCashfreeSignature reports whether signature is the base64
// HMAC-SHA256 of the exact payload bytes under secret.
func VerifyCashfreeSignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// Verify authenticates one delivery. Failures carry CodeAuthenticationFailed,
// except a PayPal body that is not JSON, which is CodeMalformedEvent, and an
// unreachable PayPal verification endpoint, which is CodeDependency so the
// provider retries.
func (v *Verifier) Verify(ctx context.Context, provider enums.PaymentMethod, payload []byte, header http.Header) error {
	switch provider {
	case enums.PaymentMethodCashfree:
		if !VerifyCashfreeSignature(payload, header.Get(HeaderCashfreeSignature), v.cashfreeSecret) {
			return pkgerrors.New(pkgerrors.CodeAuthenticationFailed, "invalid cashfree signature")
		}
		return nil
	case enums.PaymentMethodPayPal:
		return v.verifyPayPal(ctx, payload, header)
	default:
		return pkgerrors.New(pkgerrors.CodeAuthenticationFailed, "unsupported provider")
	}
}

func (v *Verifier) verifyPayPal(ctx context.Context, payload []byte, header http.Header) error {
	if v.paypal == nil || v.paypalWebhookID == "" {
		return pkgerrors.New(pkgerrors.CodeAuthenticationFailed, "paypal webhook verification not configured")
	}
	if !json.Valid(payload) {
		return pkgerrors.New(pkgerrors.CodeMalformedEvent, "paypal webhook body is not JSON")
	}

	req := paypal.VerifyWebhookSignatureRequest{
		AuthAlgo:         strings.TrimSpace(header.Get(HeaderPayPalAuthAlgo)),
		CertURL:          strings.TrimSpace(header.Get(HeaderPayPalCertURL)),
		TransmissionID:   strings.TrimSpace(header.Get(HeaderPayPalTransmissionID)),
		TransmissionSig:  strings.TrimSpace(header.Get(HeaderPayPalTransmissionSig)),
		TransmissionTime: strings.TrimSpace(header.Get(HeaderPayPalTransmissionTime)),
		WebhookID:        v.paypalWebhookID,
		WebhookEvent:     payload,
	}
	if req.AuthAlgo == "" || req.CertURL == "" || req.TransmissionID == "" || req.TransmissionSig == "" || req.TransmissionTime == "" {
		return pkgerrors.New(pkgerrors.CodeAuthenticationFailed, "paypal transmission headers missing")
	}
	if !trustedCertURL(req.CertURL) {
		return pkgerrors.New(pkgerrors.CodeAuthenticationFailed, "untrusted paypal certificate url")
	}
	sentAt, err := time.Parse(time.RFC3339, req.TransmissionTime)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeAuthenticationFailed, "invalid paypal transmission time")
	}
	if v.tolerance > 0 {
		skew := v.now().Sub(sentAt)
		if skew < 0 {
			skew = -skew
		}
		if skew > v.tolerance {
			return pkgerrors.New(pkgerrors.CodeAuthenticationFailed, "paypal transmission outside tolerance")
		}
	}

	status, err := v.paypal.VerifyWebhookSignature(ctx, req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify paypal webhook")
	}
	if status != paypal.VerificationSuccess {
		return pkgerrors.New(pkgerrors.CodeAuthenticationFailed, "paypal signature rejected")
	}
	return nil
}

func trustedCertURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "paypal.com" || strings.HasSuffix(host, ".paypal.com")
}
