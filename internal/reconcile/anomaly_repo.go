package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/pagination"
)

// AnomalyRepository persists payment anomalies.
type AnomalyRepository interface {
	WithTx(tx *gorm.DB) AnomalyRepository
	// Record inserts the anomaly, or bumps occurrences on the open anomaly
	// with the same order, provider and reported status. It returns the
	// stored row.
	Record(ctx context.Context, anomaly *models.PaymentAnomaly) (*models.PaymentAnomaly, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentAnomaly, error)
	List(ctx context.Context, params pagination.Params, status *enums.AnomalyStatus) ([]models.PaymentAnomaly, string, error)
	// Resolve closes an open anomaly. It reports whether the row was still open.
	Resolve(ctx context.Context, id uuid.UUID, status enums.AnomalyStatus, resolvedBy string, note *string, at time.Time) (bool, error)
	CountOpen(ctx context.Context) (int64, error)
}

type anomalyRepository struct {
	db *gorm.DB
}

// NewAnomalyRepository builds an anomaly repository bound to the provided DB.
func NewAnomalyRepository(db *gorm.DB) AnomalyRepository {
	return &anomalyRepository{db: db}
}

func (r *anomalyRepository) WithTx(tx *gorm.DB) AnomalyRepository {
	if tx == nil {
		return r
	}
	return &anomalyRepository{db: tx}
}

func (r *anomalyRepository) Record(ctx context.Context, anomaly *models.PaymentAnomaly) (*models.PaymentAnomaly, error) {
	if anomaly.ID == uuid.Nil {
		anomaly.ID = uuid.New()
	}
	anomaly.Status = enums.AnomalyStatusOpen
	if anomaly.Occurrences == 0 {
		anomaly.Occurrences = 1
	}

	// The conflict target matches the partial unique index on open anomalies.
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "order_id"}, {Name: "provider"}, {Name: "reported_status"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "status = 'open'"}}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "occurrences"}, Value: gorm.Expr("payment_anomalies.occurrences + 1")},
			{Column: clause.Column{Name: "provider_event_id"}, Value: anomaly.ProviderEventID},
			{Column: clause.Column{Name: "updated_at"}, Value: time.Now().UTC()},
		},
	}).Create(anomaly).Error
	if err != nil {
		return nil, err
	}

	var stored models.PaymentAnomaly
	err = r.db.WithContext(ctx).
		Where("order_id = ? AND provider = ? AND reported_status = ? AND status = ?",
			anomaly.OrderID, anomaly.Provider, anomaly.ReportedStatus, enums.AnomalyStatusOpen).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *anomalyRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentAnomaly, error) {
	var anomaly models.PaymentAnomaly
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&anomaly).Error; err != nil {
		return nil, err
	}
	return &anomaly, nil
}

func (r *anomalyRepository) List(ctx context.Context, params pagination.Params, status *enums.AnomalyStatus) ([]models.PaymentAnomaly, string, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentAnomaly{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	return pagination.Find(query, params, func(a models.PaymentAnomaly) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID.String()}
	})
}

func (r *anomalyRepository) Resolve(ctx context.Context, id uuid.UUID, status enums.AnomalyStatus, resolvedBy string, note *string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentAnomaly{}).
		Where("id = ? AND status = ?", id, enums.AnomalyStatusOpen).
		UpdateColumns(map[string]any{
			"status":          status,
			"resolved_by":     resolvedBy,
			"resolution_note": note,
			"resolved_at":     at,
			"updated_at":      at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *anomalyRepository) CountOpen(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentAnomaly{}).
		Where("status = ?", enums.AnomalyStatusOpen).
		Count(&count).Error
	return count, err
}
