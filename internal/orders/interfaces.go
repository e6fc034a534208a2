package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	ListByRequester(ctx context.Context, requesterID string, params pagination.Params) (*OrderList, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error)
	// ApplyPayment writes a payment outcome only while the order is still
	// UNSET at expectedVersion. It reports whether the row was updated.
	ApplyPayment(ctx context.Context, id string, expectedVersion int, update PaymentUpdate) (bool, error)
	// RetryPayment records the outcome of a new attempt on an order whose
	// previous payment failed. It only matches a payment_failed order with a
	// FAILED outcome at expectedVersion.
	RetryPayment(ctx context.Context, id string, expectedVersion int, update PaymentUpdate) (bool, error)
	// OverridePayment rewrites a terminal payment outcome at expectedVersion.
	// Only manual anomaly resolution uses it.
	OverridePayment(ctx context.Context, id string, expectedVersion int, update PaymentUpdate) (bool, error)
	// UpdateStatus moves the fulfillment status when the row is still at
	// expectedVersion. It reports whether the row was updated.
	UpdateStatus(ctx context.Context, id string, expectedVersion int, status enums.OrderStatus) (bool, error)
	SetProviderOrderID(ctx context.Context, id string, providerOrderID string) error
}
