package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aidigitalagency/storefront-backend/internal/reconcile"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

type authenticator interface {
	Verify(ctx context.Context, provider enums.PaymentMethod, payload []byte, header http.Header) error
}

type reconciler interface {
	Reconcile(ctx context.Context, event reconcile.Event) (reconcile.Result, error)
}

type deliveryGuard interface {
	Mark(ctx context.Context, provider enums.PaymentMethod, eventID string) (bool, error)
	Release(ctx context.Context, provider enums.PaymentMethod, eventID string) error
}

type webhookMetrics interface {
	IncReconcile(provider, result string)
}

// Outcome is the definitive answer for one delivery.
type Outcome struct {
	Result  enums.ReconcileResult `json:"result"`
	OrderID string                `json:"orderId,omitempty"`
}

type ServiceParams struct {
	Verifier   authenticator
	Reconciler reconciler
	Guard      deliveryGuard
	Metrics    webhookMetrics
	Logger     *logger.Logger
}

// Service runs a delivery through authentication, decoding, replay detection
// and reconciliation.
type Service struct {
	verifier   authenticator
	reconciler reconciler
	guard      deliveryGuard
	metrics    webhookMetrics
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook verifier required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		verifier:   params.Verifier,
		reconciler: params.Reconciler,
		guard:      params.Guard,
		metrics:    params.Metrics,
		logg:       logg,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Handle processes one raw delivery. Unknown orders surface as
// CodeOrderNotFound and undecodable payloads as CodeMalformedEvent; every
// other definitive result is returned as an Outcome.
func (s *Service) Handle(ctx context.Context, provider enums.PaymentMethod, payload []byte, header http.Header) (Outcome, error) {
	ctx = s.logg.WithProvider(ctx, string(provider))

	if err := s.verifier.Verify(ctx, provider, payload, header); err != nil {
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeAuthenticationFailed):
			s.count(provider, enums.ReconcileUnauthenticated)
			s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "webhook authentication failed")
		case pkgerrors.IsCode(err, pkgerrors.CodeMalformedEvent):
			s.count(provider, enums.ReconcileMalformed)
			s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "malformed webhook payload")
			return Outcome{Result: enums.ReconcileMalformed}, err
		default:
			s.count(provider, "error")
			s.logg.Error(ctx, "webhook verification unavailable", err)
		}
		return Outcome{Result: enums.ReconcileUnauthenticated}, err
	}

	delivery, err := s.parse(provider, payload)
	if err != nil {
		s.count(provider, enums.ReconcileMalformed)
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "malformed webhook payload")
		return Outcome{Result: enums.ReconcileMalformed}, err
	}
	ctx = s.logg.WithField(ctx, "provider_event_id", delivery.EventID)

	if delivery.Event == nil {
		s.count(provider, enums.ReconcileIgnored)
		s.logg.Info(ctx, "webhook carries no payment outcome")
		return Outcome{Result: enums.ReconcileIgnored}, nil
	}
	ctx = s.logg.WithOrderID(ctx, delivery.Event.OrderID)

	marked := false
	if s.guard != nil {
		first, err := s.guard.Mark(ctx, provider, delivery.EventID)
		switch {
		case err != nil:
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook replay guard unavailable")
		case !first:
			s.count(provider, enums.ReconcileDuplicate)
			s.logg.Info(ctx, "webhook delivery already processed")
			return Outcome{Result: enums.ReconcileDuplicate, OrderID: delivery.Event.OrderID}, nil
		default:
			marked = true
		}
	}

	result, err := s.reconciler.Reconcile(ctx, *delivery.Event)
	if err == nil {
		switch result.Outcome {
		case enums.ReconcileNotFound:
			err = pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		case enums.ReconcileMalformed:
			err = pkgerrors.New(pkgerrors.CodeMalformedEvent, "invalid order reference")
		}
	}
	if err != nil {
		if marked {
			if releaseErr := s.guard.Release(ctx, provider, delivery.EventID); releaseErr != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", releaseErr.Error()), "release webhook replay mark")
			}
		}
		return Outcome{Result: result.Outcome, OrderID: result.OrderID}, err
	}
	return Outcome{Result: result.Outcome, OrderID: result.OrderID}, nil
}

func (s *Service) parse(provider enums.PaymentMethod, payload []byte) (*Delivery, error) {
	switch provider {
	case enums.PaymentMethodCashfree:
		return ParseCashfree(payload, s.now())
	case enums.PaymentMethodPayPal:
		return ParsePayPal(payload, s.now())
	default:
		return nil, pkgerrors.New(pkgerrors.CodeMalformedEvent, fmt.Sprintf("unsupported provider %q", provider))
	}
}

func (s *Service) count(provider enums.PaymentMethod, result enums.ReconcileResult) {
	if s.metrics != nil {
		s.metrics.IncReconcile(string(provider), string(result))
	}
}
