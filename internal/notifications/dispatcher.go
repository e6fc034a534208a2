package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

const (
	defaultTimeout       = 5 * time.Second
	defaultMaxAttempts   = 2
	maxAttemptsCap       = 5
	defaultRetryBackoff  = 250 * time.Millisecond
	diagnosticReadLimit  = 512
	outcomeDelivered     = "delivered"
	outcomeFailed        = "failed"
	outcomeNotConfigured = "not_configured"
	genericPayloadKey    = "data"
	orderPayloadKey      = "order"
	paymentPayloadKey    = "payment"
)

// Dispatcher delivers automation notifications. Dispatch never reports
// failures to the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, event enums.NotificationEvent, data any)
}

type dispatchMetrics interface {
	IncDispatch(event, outcome string)
}

type target struct {
	url string
	key string
}

// HTTPDispatcher posts JSON bodies of the form {event, <key>, timestamp} to
// per-event automation URLs, falling back to the generic URL.
type HTTPDispatcher struct {
	client      *http.Client
	targets     map[enums.NotificationEvent]string
	genericURL  string
	maxAttempts int
	backoff     time.Duration
	metrics     dispatchMetrics
	logg        *logger.Logger
	now         func() time.Time
}

type Option func(*HTTPDispatcher)

func WithHTTPClient(client *http.Client) Option {
	return func(d *HTTPDispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

func WithRetryBackoff(backoff time.Duration) Option {
	return func(d *HTTPDispatcher) {
		if backoff >= 0 {
			d.backoff = backoff
		}
	}
}

func WithMetrics(metrics dispatchMetrics) Option {
	return func(d *HTTPDispatcher) {
		d.metrics = metrics
	}
}

// NewHTTPDispatcher builds a dispatcher from the configured endpoints. An
// event with neither a dedicated nor a generic URL is a no-op.
func NewHTTPDispatcher(cfg config.NotificationsConfig, logg *logger.Logger, opts ...Option) *HTTPDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	if attempts > maxAttemptsCap {
		attempts = maxAttemptsCap
	}
	if logg == nil {
		logg = logger.Nop()
	}

	d := &HTTPDispatcher{
		client: &http.Client{Timeout: timeout},
		targets: map[enums.NotificationEvent]string{
			enums.NotificationNewOrder:         strings.TrimSpace(cfg.NewOrderURL),
			enums.NotificationOrderComplete:    strings.TrimSpace(cfg.OrderCompleteURL),
			enums.NotificationPaymentCompleted: strings.TrimSpace(cfg.PaymentURL),
		},
		genericURL:  strings.TrimSpace(cfg.GenericURL),
		maxAttempts: attempts,
		backoff:     defaultRetryBackoff,
		logg:        logg,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch delivers the notification and logs any failure.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, event enums.NotificationEvent, data any) {
	if err := d.Send(ctx, event, data); err != nil {
		logCtx := d.logg.WithField(ctx, "notification_event", event)
		d.logg.Error(logCtx, "notification delivery failed", err)
	}
}

// Send delivers the notification with bounded retries and returns the last
// failure. Unconfigured events return nil.
func (d *HTTPDispatcher) Send(ctx context.Context, event enums.NotificationEvent, data any) error {
	tgt, ok := d.resolve(event)
	if !ok {
		d.record(event, outcomeNotConfigured)
		d.logg.Debug(d.logg.WithField(ctx, "notification_event", event), "notification target not configured")
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"event":     event,
		tgt.key:     data,
		"timestamp": d.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		d.record(event, outcomeFailed)
		return pkgerrors.Wrap(pkgerrors.CodeNotificationFailed, err, "marshal notification")
	}

	var lastErr error
attempts:
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		retryable, err := d.post(ctx, tgt.url, body)
		if err == nil {
			d.record(event, outcomeDelivered)
			return nil
		}
		lastErr = err
		if !retryable || attempt == d.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break attempts
		case <-time.After(d.backoff * time.Duration(attempt)):
		}
	}

	d.record(event, outcomeFailed)
	return pkgerrors.Wrap(pkgerrors.CodeNotificationFailed, lastErr, fmt.Sprintf("deliver %s notification", event))
}

func (d *HTTPDispatcher) resolve(event enums.NotificationEvent) (target, bool) {
	if url := d.targets[event]; url != "" {
		return target{url: url, key: payloadKey(event)}, true
	}
	if d.genericURL != "" {
		return target{url: d.genericURL, key: genericPayloadKey}, true
	}
	return target{}, false
}

func payloadKey(event enums.NotificationEvent) string {
	switch event {
	case enums.NotificationPaymentCompleted:
		return paymentPayloadKey
	case enums.NotificationNewOrder, enums.NotificationOrderComplete:
		return orderPayloadKey
	default:
		return genericPayloadKey
	}
}

// post reports whether a failed attempt is worth repeating.
func (d *HTTPDispatcher) post(ctx context.Context, url string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, diagnosticReadLimit))
		return false, nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, diagnosticReadLimit))
	retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	return retryable, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}

func (d *HTTPDispatcher) record(event enums.NotificationEvent, outcome string) {
	if d.metrics != nil {
		d.metrics.IncDispatch(string(event), outcome)
	}
}
