package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/aidigitalagency/storefront-backend/internal/orders"
	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

const defaultSessionTimeout = 15 * time.Second

type sessionMetrics interface {
	IncSession(provider, outcome string)
}

// CreateSessionInput asks for a checkout on one of the caller's orders.
type CreateSessionInput struct {
	OrderID     string
	Provider    string
	RequesterID string
}

// Service starts provider checkouts for pending orders and payment retries.
type Service struct {
	orders    orders.Repository
	providers map[enums.PaymentMethod]Provider
	timeout   time.Duration
	metrics   sessionMetrics
	logg      *logger.Logger
}

type ServiceParams struct {
	Orders    orders.Repository
	Providers []Provider
	Timeout   time.Duration
	Metrics   sessionMetrics
	Logger    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	providers := make(map[enums.PaymentMethod]Provider, len(params.Providers))
	for _, provider := range params.Providers {
		if provider == nil {
			continue
		}
		providers[provider.Method()] = provider
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		orders:    params.Orders,
		providers: providers,
		timeout:   timeout,
		metrics:   params.Metrics,
		logg:      logg,
	}, nil
}

// CreateSession validates the order and opens a hosted checkout. Provider
// failures surface as CodeSessionCreationFailed carrying the provider's
// diagnostic; nothing is retried.
func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error) {
	if strings.TrimSpace(input.RequesterID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	method, err := enums.ParsePaymentMethod(strings.ToLower(strings.TrimSpace(input.Provider)))
	if err != nil || !method.IsProvider() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment provider %q", input.Provider))
	}
	provider, ok := s.providers[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("%s payments are not configured", method))
	}
	if !orders.ValidOrderID(input.OrderID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.RequesterID != input.RequesterID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	if !awaitingPayment(order) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status, "paymentStatus": order.PaymentStatus})
	}

	req := SessionRequest{
		OrderID:       order.ID,
		Amount:        order.QuoteAmount,
		Currency:      strings.ToUpper(strings.TrimSpace(string(order.QuoteCurrency))),
		CustomerID:    order.RequesterID,
		CustomerName:  order.RequesterName,
		CustomerEmail: strings.TrimSpace(order.RequesterEmail),
		CustomerPhone: strings.TrimSpace(order.RequesterPhone),
		Description:   fmt.Sprintf("%s order %s", order.Service, order.ID),
	}
	if err := validateRequest(req); err != nil {
		s.count(method, "rejected")
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": order.ID, "provider": method})
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := provider.CreateSession(callCtx, req)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			s.count(method, "rejected")
			return nil, err
		}
		s.count(method, "failed")
		s.logg.Error(logCtx, "payment session creation failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeSessionCreationFailed, err, "payment session creation failed").
			WithDetails(map[string]any{"provider": method, "reason": diagnostic(err)})
	}

	if session.ProviderOrderID != "" {
		if err := s.orders.SetProviderOrderID(ctx, order.ID, session.ProviderOrderID); err != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "store provider order id")
		}
	}
	s.count(method, "created")
	s.logg.Info(logCtx, "payment session created")
	return session, nil
}

func validateRequest(req SessionRequest) error {
	var problems []string
	if !req.Amount.IsPositive() {
		problems = append(problems, "amount must be positive")
	}
	if req.Currency == "" {
		problems = append(problems, "currency is required")
	}
	if req.CustomerEmail == "" {
		problems = append(problems, "customer email is required")
	}
	if len(problems) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order cannot be paid").
			WithDetails(map[string]any{"problems": problems})
	}
	return nil
}

// diagnostic is the provider-facing reason, without our own wrapping text.
func diagnostic(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "provider timed out"
	}
	if typed := pkgerrors.As(err); typed != nil {
		if cause := typed.Unwrap(); cause != nil {
			return cause.Error()
		}
		return typed.Message()
	}
	return err.Error()
}

func (s *Service) count(method enums.PaymentMethod, outcome string) {
	if s.metrics != nil {
		s.metrics.IncSession(string(method), outcome)
	}
}

// awaitingPayment reports whether the customer may open a checkout session:
// either no outcome is recorded yet, or the last attempt failed and the order
// is parked in payment_failed for a retry.
func awaitingPayment(order *models.Order) bool {
	switch {
	case order.PaymentStatus == enums.PaymentStatusUnset:
		return order.Status == enums.OrderStatusPending
	case order.PaymentStatus == enums.PaymentStatusFailed:
		return order.Status == enums.OrderStatusPaymentFailed
	}
	return false
}
