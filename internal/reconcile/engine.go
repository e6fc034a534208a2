package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/aidigitalagency/storefront-backend/internal/notifications"
	"github.com/aidigitalagency/storefront-backend/internal/orders"
	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox/payloads"
)

// maxApplyAttempts bounds how often a lost compare-and-set is re-evaluated.
const maxApplyAttempts = 3

const paymentCompletedStatus = "completed"

// defaultDispatchBudget bounds the post-commit payment_completed delivery,
// which runs before the provider gets its webhook response.
const defaultDispatchBudget = 3 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type reconcileMetrics interface {
	IncReconcile(provider, result string)
}

// Engine applies verified payment reports to orders. The payment write is a
// single compare-and-set on payment_status and version, so concurrent
// deliveries for one order produce exactly one applied result. A failed
// payment is terminal for its own transaction only: a later SUCCESS under a
// new provider transaction id is the customer's retry and is applied.
type Engine struct {
	orders     orders.Repository
	anomalies  AnomalyRepository
	tx         txRunner
	outbox     outboxPublisher
	dispatcher notifications.Dispatcher
	metrics    reconcileMetrics
	logg       *logger.Logger
	now        func() time.Time
	budget     time.Duration
}

type EngineOption func(*Engine)

// WithDispatchBudget caps the whole payment_completed delivery, retries and
// backoff included. Non-positive values keep the default.
func WithDispatchBudget(budget time.Duration) EngineOption {
	return func(e *Engine) {
		if budget > 0 {
			e.budget = budget
		}
	}
}

// NewEngine wires the reconciliation engine.
func NewEngine(
	orderRepo orders.Repository,
	anomalies AnomalyRepository,
	tx txRunner,
	outbox outboxPublisher,
	dispatcher notifications.Dispatcher,
	metrics reconcileMetrics,
	logg *logger.Logger,
	opts ...EngineOption,
) (*Engine, error) {
	if orderRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if anomalies == nil {
		return nil, fmt.Errorf("anomaly repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	engine := &Engine{
		orders:     orderRepo,
		anomalies:  anomalies,
		tx:         tx,
		outbox:     outbox,
		dispatcher: dispatcher,
		metrics:    metrics,
		logg:       logg,
		now:        func() time.Time { return time.Now().UTC() },
		budget:     defaultDispatchBudget,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine, nil
}

// Reconcile applies one verified event. The returned error is reserved for
// store failures; every other outcome is reported through Result.
func (e *Engine) Reconcile(ctx context.Context, event Event) (Result, error) {
	result, err := e.reconcile(ctx, event)
	if err != nil {
		e.count(event.Provider, "error")
		return result, err
	}
	e.count(event.Provider, string(result.Outcome))

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"order_id": event.OrderID,
		"provider": event.Provider,
		"outcome":  event.Outcome,
		"result":   result.Outcome,
	})
	switch result.Outcome {
	case enums.ReconcileApplied:
		e.logg.Info(logCtx, "payment applied")
		if event.Outcome == enums.PaymentStatusSuccess && result.Order != nil {
			e.dispatchPaymentCompleted(ctx, result.Order)
		}
	case enums.ReconcileConflict:
		e.logg.Warn(logCtx, "payment report contradicts recorded outcome")
	case enums.ReconcileNotFound:
		e.logg.Warn(logCtx, "payment report for unknown order")
	case enums.ReconcileMalformed:
		e.logg.Warn(logCtx, "malformed payment report")
	default:
		e.logg.Info(logCtx, "payment report already applied")
	}
	return result, nil
}

func (e *Engine) reconcile(ctx context.Context, event Event) (Result, error) {
	event.OrderID = strings.TrimSpace(event.OrderID)
	if !orders.ValidOrderID(event.OrderID) || !event.Outcome.IsTerminal() || !event.Provider.IsProvider() {
		return Result{Outcome: enums.ReconcileMalformed, OrderID: event.OrderID}, nil
	}

	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		var (
			result Result
			lost   bool
		)
		err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := e.orders.WithTx(tx)
			order, err := repo.FindByID(ctx, event.OrderID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					result = Result{Outcome: enums.ReconcileNotFound, OrderID: event.OrderID}
					return nil
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
			}

			write := repo.ApplyPayment
			if order.PaymentStatus.IsTerminal() {
				if order.PaymentStatus == event.Outcome {
					result = Result{Outcome: enums.ReconcileDuplicate, OrderID: order.ID, Order: order}
					return nil
				}
				if !isRetrySuccess(order, event) {
					anomaly, err := e.recordAnomaly(ctx, tx, order, event)
					if err != nil {
						return err
					}
					result = Result{Outcome: enums.ReconcileConflict, OrderID: order.ID, Order: order, AnomalyID: &anomaly.ID}
					return nil
				}
				write = repo.RetryPayment
			}

			update := e.paymentUpdate(order, event)
			ok, err := write(ctx, order.ID, order.Version, update)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply payment")
			}
			if !ok {
				lost = true
				return nil
			}
			applyToModel(order, update)
			if err := e.emitPaymentRecorded(ctx, tx, order, event, nil); err != nil {
				return err
			}
			result = Result{Outcome: enums.ReconcileApplied, OrderID: order.ID, Order: order}
			return nil
		})
		if err != nil {
			return Result{OrderID: event.OrderID}, err
		}
		if !lost {
			return result, nil
		}
	}
	return Result{OrderID: event.OrderID}, pkgerrors.New(pkgerrors.CodeInternal, "order kept changing during reconciliation")
}

// isRetrySuccess reports whether a SUCCESS report on a failed order belongs to
// a new checkout attempt. The customer retried from payment_failed and the
// provider names a transaction other than the one that failed. A SUCCESS for
// the failed transaction itself, or one without a transaction id, stays a
// conflict for manual review.
func isRetrySuccess(order *models.Order, event Event) bool {
	if order.PaymentStatus != enums.PaymentStatusFailed || order.Status != enums.OrderStatusPaymentFailed {
		return false
	}
	if event.Outcome != enums.PaymentStatusSuccess {
		return false
	}
	txnID := strings.TrimSpace(event.ProviderTransactionID)
	if txnID == "" {
		return false
	}
	return order.ProviderTransactionID == nil || *order.ProviderTransactionID != txnID
}

// paymentUpdate derives the columns for a payment outcome. Only a pending
// order, or one parked in payment_failed for a retry, changes fulfillment
// status; an order cancelled before the payment landed keeps its status.
func (e *Engine) paymentUpdate(order *models.Order, event Event) orders.PaymentUpdate {
	update := orders.PaymentUpdate{
		PaymentStatus: event.Outcome,
		Status:        order.Status,
		Amount:        event.Amount,
		Method:        event.Provider,
	}
	if currency := strings.ToUpper(strings.TrimSpace(event.Currency)); currency != "" {
		update.Currency = &currency
	}
	if txnID := strings.TrimSpace(event.ProviderTransactionID); txnID != "" {
		update.ProviderTransactionID = &txnID
	}
	if providerOrderID := strings.TrimSpace(event.ProviderOrderID); providerOrderID != "" {
		update.ProviderOrderID = &providerOrderID
	}
	switch event.Outcome {
	case enums.PaymentStatusSuccess:
		paidAt := e.now()
		update.PaidAt = &paidAt
		if order.Status == enums.OrderStatusPending || order.Status == enums.OrderStatusPaymentFailed {
			update.Status = enums.OrderStatusPaid
		}
	case enums.PaymentStatusFailed:
		if order.Status == enums.OrderStatusPending {
			update.Status = enums.OrderStatusPaymentFailed
		}
	}
	return update
}

func applyToModel(order *models.Order, update orders.PaymentUpdate) {
	order.PaymentStatus = update.PaymentStatus
	order.Status = update.Status
	order.PaymentAmount = update.Amount
	order.PaymentCurrency = update.Currency
	order.PaymentMethod = update.Method
	order.ProviderTransactionID = update.ProviderTransactionID
	if update.ProviderOrderID != nil {
		order.ProviderOrderID = update.ProviderOrderID
	}
	order.PaidAt = update.PaidAt
	order.Version++
}

func (e *Engine) recordAnomaly(ctx context.Context, tx *gorm.DB, order *models.Order, event Event) (*models.PaymentAnomaly, error) {
	row := &models.PaymentAnomaly{
		OrderID:        order.ID,
		Provider:       event.Provider,
		ObservedStatus: order.PaymentStatus,
		ReportedStatus: event.Outcome,
		ReportedAmount: event.Amount,
		Payload:        event.Payload,
	}
	if currency := strings.TrimSpace(event.Currency); currency != "" {
		row.ReportedCurrency = &currency
	}
	if txnID := strings.TrimSpace(event.ProviderTransactionID); txnID != "" {
		row.ProviderTransactionID = &txnID
	}
	if eventID := strings.TrimSpace(event.ProviderEventID); eventID != "" {
		row.ProviderEventID = &eventID
	}

	stored, err := e.anomalies.WithTx(tx).Record(ctx, row)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment anomaly")
	}

	data := payloads.PaymentAnomalyRecordedEvent{
		AnomalyID:      stored.ID.String(),
		OrderID:        order.ID,
		Provider:       event.Provider,
		ObservedStatus: order.PaymentStatus,
		ReportedStatus: event.Outcome,
		Currency:       event.Currency,
		Occurrences:    stored.Occurrences,
	}
	if event.Amount.Valid {
		data.Amount = event.Amount.Decimal
	}
	if stored.Occurrences > 1 {
		return stored, nil
	}
	if err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentAnomalyRecorded,
		AggregateType: enums.AggregatePaymentAnomaly,
		AggregateID:   stored.ID.String(),
		Actor:         &outbox.ActorRef{Role: string(event.Provider)},
		Data:          data,
	}); err != nil {
		return nil, err
	}
	return stored, nil
}

func (e *Engine) emitPaymentRecorded(ctx context.Context, tx *gorm.DB, order *models.Order, event Event, actor *outbox.ActorRef) error {
	if actor == nil {
		actor = &outbox.ActorRef{Role: string(event.Provider)}
	}
	data := payloads.OrderPaymentRecordedEvent{
		OrderID:               order.ID,
		Provider:              order.PaymentMethod,
		PaymentStatus:         order.PaymentStatus,
		Status:                order.Status,
		ProviderTransactionID: event.ProviderTransactionID,
		ProviderOrderID:       event.ProviderOrderID,
		PaidAt:                order.PaidAt,
	}
	if order.PaymentAmount.Valid {
		data.Amount = order.PaymentAmount.Decimal
	}
	if order.PaymentCurrency != nil {
		data.Currency = *order.PaymentCurrency
	}
	return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaymentRecorded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data:          data,
	})
}

// dispatchPaymentCompleted runs after commit. The request context may already
// be finishing, so delivery gets its own lifetime, capped by the budget so a
// slow automation endpoint cannot hold the provider's response.
func (e *Engine) dispatchPaymentCompleted(ctx context.Context, order *models.Order) {
	payload := notifications.PaymentCompleted{
		OrderID:       order.ID,
		Currency:      order.PaymentCurrency,
		Status:        paymentCompletedStatus,
		PaymentMethod: order.PaymentMethod,
		Timestamp:     e.now(),
	}
	if order.PaymentAmount.Valid {
		amount := order.PaymentAmount.Decimal
		payload.Amount = &amount
	}
	if order.ProviderTransactionID != nil {
		payload.ProviderTransactionID = *order.ProviderTransactionID
	}
	if order.PaymentMethod == enums.PaymentMethodPayPal && order.ProviderOrderID != nil {
		payload.PaypalOrderID = *order.ProviderOrderID
	}
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.budget)
	defer cancel()
	e.dispatcher.Dispatch(dispatchCtx, enums.NotificationPaymentCompleted, payload)
}

func (e *Engine) count(provider enums.PaymentMethod, result string) {
	if e.metrics != nil {
		e.metrics.IncReconcile(string(provider), result)
	}
}
