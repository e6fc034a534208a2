package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aidigitalagency/storefront-backend/api/middleware"
	"github.com/aidigitalagency/storefront-backend/api/responses"
	"github.com/aidigitalagency/storefront-backend/api/validators"
	"github.com/aidigitalagency/storefront-backend/internal/reconcile"
	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	"github.com/aidigitalagency/storefront-backend/pkg/pagination"
)

const maxResolutionNote = 500

type AnomalyService interface {
	ListAnomalies(ctx context.Context, params pagination.Params, status *enums.AnomalyStatus) (*reconcile.AnomalyList, error)
	GetAnomaly(ctx context.Context, id uuid.UUID) (*models.PaymentAnomaly, error)
	ResolveAnomaly(ctx context.Context, input reconcile.ResolveInput) (*models.PaymentAnomaly, error)
}

type resolveAnomalyRequest struct {
	Action string `json:"action" validate:"required,oneof=accept dismiss"`
	Note   string `json:"note" validate:"max=2000"`
}

// ListAnomalies pages recorded payment conflicts, optionally by ?status=.
func ListAnomalies(svc AnomalyService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "anomaly service unavailable"))
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.AnomalyStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseAnomalyStatus(strings.ToLower(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}

		list, err := svc.ListAnomalies(r.Context(), params, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAnomalyPage(list))
	}
}

func GetAnomaly(svc AnomalyService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "anomaly service unavailable"))
			return
		}
		id, err := anomalyID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		anomaly, err := svc.GetAnomaly(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAnomalyView(anomaly))
	}
}

// ResolveAnomaly accepts or dismisses an open anomaly.
func ResolveAnomaly(svc AnomalyService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "anomaly service unavailable"))
			return
		}
		identity, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}
		id, err := anomalyID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req resolveAnomalyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resolved, err := svc.ResolveAnomaly(r.Context(), reconcile.ResolveInput{
			AnomalyID:  id,
			Action:     reconcile.ResolveAction(req.Action),
			ActorID:    identity.UserID,
			ActorEmail: identity.Email,
			Note:       validators.SanitizeString(req.Note, maxResolutionNote),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAnomalyView(resolved))
	}
}

func anomalyID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "anomalyId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "anomaly id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid anomaly id")
	}
	return id, nil
}

type anomalyView struct {
	ID                    uuid.UUID           `json:"id"`
	OrderID               string              `json:"orderId"`
	Provider              enums.PaymentMethod `json:"provider"`
	ObservedStatus        enums.PaymentStatus `json:"observedStatus"`
	ReportedStatus        enums.PaymentStatus `json:"reportedStatus"`
	ReportedAmount        *decimal.Decimal    `json:"reportedAmount"`
	ReportedCurrency      *string             `json:"reportedCurrency"`
	ProviderTransactionID *string             `json:"providerTransactionId,omitempty"`
	ProviderEventID       *string             `json:"providerEventId,omitempty"`
	Payload               json.RawMessage     `json:"payload,omitempty"`
	Status                enums.AnomalyStatus `json:"status"`
	Occurrences           int                 `json:"occurrences"`
	ResolvedBy            *string             `json:"resolvedBy,omitempty"`
	ResolutionNote        *string             `json:"resolutionNote,omitempty"`
	ResolvedAt            *time.Time          `json:"resolvedAt,omitempty"`
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

type anomalyPage struct {
	Anomalies  []anomalyView `json:"anomalies"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

func newAnomalyView(a *models.PaymentAnomaly) anomalyView {
	view := anomalyView{
		ID:                    a.ID,
		OrderID:               a.OrderID,
		Provider:              a.Provider,
		ObservedStatus:        a.ObservedStatus,
		ReportedStatus:        a.ReportedStatus,
		ReportedCurrency:      a.ReportedCurrency,
		ProviderTransactionID: a.ProviderTransactionID,
		ProviderEventID:       a.ProviderEventID,
		Payload:               a.Payload,
		Status:                a.Status,
		Occurrences:           a.Occurrences,
		ResolvedBy:            a.ResolvedBy,
		ResolutionNote:        a.ResolutionNote,
		ResolvedAt:            a.ResolvedAt,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}
	if a.ReportedAmount.Valid {
		amount := a.ReportedAmount.Decimal
		view.ReportedAmount = &amount
	}
	return view
}

func newAnomalyPage(list *reconcile.AnomalyList) anomalyPage {
	page := anomalyPage{Anomalies: make([]anomalyView, 0, len(list.Anomalies)), NextCursor: list.NextCursor}
	for i := range list.Anomalies {
		page.Anomalies = append(page.Anomalies, newAnomalyView(&list.Anomalies[i]))
	}
	return page
}
