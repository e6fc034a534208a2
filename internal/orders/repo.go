package orders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByRequester(ctx context.Context, requesterID string, params pagination.Params) (*OrderList, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("requester_id = ?", requesterID)
	return r.page(query, params)
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	return r.page(query, params)
}

func (r *repository) page(query *gorm.DB, params pagination.Params) (*OrderList, error) {
	rows, next, err := pagination.Find(query, params, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	if err != nil {
		return nil, err
	}
	return &OrderList{Orders: rows, NextCursor: next}, nil
}

func (r *repository) ApplyPayment(ctx context.Context, id string, expectedVersion int, update PaymentUpdate) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ? AND version = ?", id, enums.PaymentStatusUnset, expectedVersion)
	return writePayment(query, update)
}

func (r *repository) RetryPayment(ctx context.Context, id string, expectedVersion int, update PaymentUpdate) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ? AND status = ? AND version = ?",
			id, enums.PaymentStatusFailed, enums.OrderStatusPaymentFailed, expectedVersion)
	return writePayment(query, update)
}

func (r *repository) OverridePayment(ctx context.Context, id string, expectedVersion int, update PaymentUpdate) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", id, expectedVersion)
	return writePayment(query, update)
}

func writePayment(query *gorm.DB, update PaymentUpdate) (bool, error) {
	columns := map[string]any{
		"payment_status":          update.PaymentStatus,
		"status":                  update.Status,
		"payment_amount":          update.Amount,
		"payment_currency":        update.Currency,
		"payment_method":          update.Method,
		"provider_transaction_id": update.ProviderTransactionID,
		"paid_at":                 update.PaidAt,
		"version":                 gorm.Expr("version + 1"),
		"updated_at":              time.Now().UTC(),
	}
	if update.ProviderOrderID != nil {
		columns["provider_order_id"] = *update.ProviderOrderID
	}
	result := query.UpdateColumns(columns)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id string, expectedVersion int, status enums.OrderStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		UpdateColumns(map[string]any{
			"status":     status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetProviderOrderID records the provider-side order created for a payment
// session. It leaves payment columns and version untouched.
func (r *repository) SetProviderOrderID(ctx context.Context, id string, providerOrderID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"provider_order_id": providerOrderID,
			"updated_at":        time.Now().UTC(),
		}).Error
}
