package orders

import (
	"fmt"

	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
)

var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:       {enums.OrderStatusCancelled},
	enums.OrderStatusPaymentFailed: {enums.OrderStatusCancelled},
	enums.OrderStatusPaid:          {enums.OrderStatusInProgress, enums.OrderStatusCompleted, enums.OrderStatusCancelled},
	enums.OrderStatusInProgress:    {enums.OrderStatusCompleted, enums.OrderStatusCancelled},
}

// CheckTransition validates an admin fulfillment move. paid and
// payment_failed are reserved for reconciliation, and work may only start
// once the payment has succeeded.
func CheckTransition(order *models.Order, to enums.OrderStatus) error {
	if to == enums.OrderStatusPaid || to == enums.OrderStatusPaymentFailed || to == enums.OrderStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("status %s is set by payment processing", to))
	}
	permitted := false
	for _, candidate := range allowedTransitions[order.Status] {
		if candidate == to {
			permitted = true
			break
		}
	}
	if !permitted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", order.Status, to)).
			WithDetails(map[string]string{"from": order.Status.String(), "to": to.String()})
	}
	if (to == enums.OrderStatusInProgress || to == enums.OrderStatusCompleted) && order.PaymentStatus != enums.PaymentStatusSuccess {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment has not succeeded")
	}
	return nil
}
