package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aidigitalagency/storefront-backend/api/middleware"
	"github.com/aidigitalagency/storefront-backend/api/responses"
	"github.com/aidigitalagency/storefront-backend/api/validators"
	internalorders "github.com/aidigitalagency/storefront-backend/internal/orders"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	"github.com/aidigitalagency/storefront-backend/pkg/pagination"
)

type OrdersService interface {
	AdminList(ctx context.Context, params pagination.Params, filters internalorders.ListFilters) (*internalorders.DetailPage, error)
	AdminGet(ctx context.Context, id string) (*internalorders.OrderDetail, error)
	UpdateStatus(ctx context.Context, input internalorders.UpdateStatusInput) (*internalorders.OrderDetail, error)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,order_status"`
}

// ListOrders returns every order, optionally filtered by ?status=.
func ListOrders(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filters internalorders.ListFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(strings.ToLower(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}

		page, err := svc.AdminList(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// GetOrder returns the unredacted order.
func GetOrder(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		detail, err := svc.AdminGet(r.Context(), strings.TrimSpace(chi.URLParam(r, "orderId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// UpdateOrderStatus moves an order through fulfillment.
func UpdateOrderStatus(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		identity, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
			return
		}

		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		detail, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID:    strings.TrimSpace(chi.URLParam(r, "orderId")),
			Status:     status,
			ActorID:    identity.UserID,
			ActorEmail: identity.Email,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}
