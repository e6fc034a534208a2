package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aidigitalagency/storefront-backend/internal/orders"
	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox/payloads"
	"github.com/aidigitalagency/storefront-backend/pkg/pagination"
)

// ListAnomalies pages through anomalies, newest first.
func (e *Engine) ListAnomalies(ctx context.Context, params pagination.Params, status *enums.AnomalyStatus) (*AnomalyList, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid anomaly status %q", *status))
	}
	rows, next, err := e.anomalies.List(ctx, params, status)
	if err != nil {
		if errors.Is(err, pagination.ErrBadCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list anomalies")
	}
	if rows == nil {
		rows = []models.PaymentAnomaly{}
	}
	return &AnomalyList{Anomalies: rows, NextCursor: next}, nil
}

// GetAnomaly loads one anomaly.
func (e *Engine) GetAnomaly(ctx context.Context, id uuid.UUID) (*models.PaymentAnomaly, error) {
	anomaly, err := e.anomalies.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "anomaly not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load anomaly")
	}
	return anomaly, nil
}

// CountOpenAnomalies reports the manual review backlog.
func (e *Engine) CountOpenAnomalies(ctx context.Context) (int64, error) {
	return e.anomalies.CountOpen(ctx)
}

// ResolveAnomaly records the admin decision. Accepting rewrites the order's
// payment outcome with the reported one; a resulting success dispatches
// payment_completed after commit.
func (e *Engine) ResolveAnomaly(ctx context.Context, input ResolveInput) (*models.PaymentAnomaly, error) {
	if strings.TrimSpace(input.ActorID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.AnomalyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "anomaly id required")
	}
	var status enums.AnomalyStatus
	switch input.Action {
	case ResolveAccept:
		status = enums.AnomalyStatusAccepted
	case ResolveDismiss:
		status = enums.AnomalyStatusDismissed
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported action %q", input.Action))
	}

	var (
		resolved     *models.PaymentAnomaly
		updatedOrder *models.Order
	)
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		anomalies := e.anomalies.WithTx(tx)
		anomaly, err := anomalies.FindByID(ctx, input.AnomalyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "anomaly not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load anomaly")
		}
		if anomaly.Status != enums.AnomalyStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("anomaly already %s", anomaly.Status))
		}

		actor := &outbox.ActorRef{UserID: input.ActorID, Email: input.ActorEmail, Role: enums.UserRoleAdmin.String()}
		if status == enums.AnomalyStatusAccepted {
			order, err := e.acceptReported(ctx, tx, anomaly, actor)
			if err != nil {
				return err
			}
			updatedOrder = order
		}

		now := e.now()
		var note *string
		if trimmed := strings.TrimSpace(input.Note); trimmed != "" {
			note = &trimmed
		}
		ok, err := anomalies.Resolve(ctx, anomaly.ID, status, input.ActorID, note, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve anomaly")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "anomaly resolved concurrently")
		}
		anomaly.Status = status
		anomaly.ResolvedBy = &input.ActorID
		anomaly.ResolutionNote = note
		anomaly.ResolvedAt = &now
		resolved = anomaly

		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentAnomalyResolved,
			AggregateType: enums.AggregatePaymentAnomaly,
			AggregateID:   anomaly.ID.String(),
			Actor:         actor,
			Data: payloads.PaymentAnomalyResolvedEvent{
				AnomalyID:  anomaly.ID.String(),
				OrderID:    anomaly.OrderID,
				Resolution: status,
				ResolvedBy: input.ActorID,
				Note:       input.Note,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"anomaly_id": resolved.ID.String(),
		"order_id":   resolved.OrderID,
		"resolution": resolved.Status,
		"actor_id":   input.ActorID,
	})
	e.logg.Info(logCtx, "payment anomaly resolved")

	if updatedOrder != nil && updatedOrder.PaymentStatus == enums.PaymentStatusSuccess {
		e.dispatchPaymentCompleted(ctx, updatedOrder)
	}
	return resolved, nil
}

// acceptReported overwrites the order's payment outcome with the anomaly's
// report. It returns nil when the order already matches the report.
func (e *Engine) acceptReported(ctx context.Context, tx *gorm.DB, anomaly *models.PaymentAnomaly, actor *outbox.ActorRef) (*models.Order, error) {
	repo := e.orders.WithTx(tx)
	order, err := repo.FindByID(ctx, anomaly.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.PaymentStatus == anomaly.ReportedStatus {
		return nil, nil
	}

	update := orders.PaymentUpdate{
		PaymentStatus:         anomaly.ReportedStatus,
		Status:                order.Status,
		Amount:                anomaly.ReportedAmount,
		Currency:              anomaly.ReportedCurrency,
		Method:                anomaly.Provider,
		ProviderTransactionID: anomaly.ProviderTransactionID,
	}
	switch anomaly.ReportedStatus {
	case enums.PaymentStatusSuccess:
		paidAt := e.now()
		update.PaidAt = &paidAt
		if order.Status == enums.OrderStatusPending || order.Status == enums.OrderStatusPaymentFailed {
			update.Status = enums.OrderStatusPaid
		}
	case enums.PaymentStatusFailed:
		if order.Status == enums.OrderStatusPending || order.Status == enums.OrderStatusPaid {
			update.Status = enums.OrderStatusPaymentFailed
		}
	}

	ok, err := repo.OverridePayment(ctx, order.ID, order.Version, update)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "override payment")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently, retry")
	}
	applyToModel(order, update)

	event := Event{Provider: anomaly.Provider}
	if anomaly.ProviderTransactionID != nil {
		event.ProviderTransactionID = *anomaly.ProviderTransactionID
	}
	if err := e.emitPaymentRecorded(ctx, tx, order, event, actor); err != nil {
		return nil, err
	}
	return order, nil
}
