package orders

import (
	"context"
	"encoding/json"
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
	Create(ctx context.Context, input internalorders.CreateOrderInput) (*internalorders.OrderSummary, error)
	Get(ctx context.Context, id string) (*internalorders.OrderView, error)
	ListForRequester(ctx context.Context, requesterID string, params pagination.Params) (*internalorders.SummaryPage, error)
}

type createOrderRequest struct {
	Service  string          `json:"service" validate:"required,max=64,service_type"`
	Currency string          `json:"currency" validate:"omitempty,len=3,currency"`
	Params   json.RawMessage `json:"params"`
}

// Create records a pending order for the authenticated requester. Contact
// details come from the token, never from the body.
func Create(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
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

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		service, err := enums.ParseServiceType(strings.ToLower(strings.TrimSpace(req.Service)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported service"))
			return
		}
		var currency enums.Currency
		if raw := strings.TrimSpace(req.Currency); raw != "" {
			currency, err = enums.ParseCurrency(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency"))
				return
			}
		}

		summary, err := svc.Create(r.Context(), internalorders.CreateOrderInput{
			RequesterID:    identity.UserID,
			RequesterEmail: identity.Email,
			RequesterName:  identity.Name,
			RequesterPhone: identity.Phone,
			Service:        service,
			Currency:       currency,
			Params:         req.Params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, summary)
	}
}

// List returns the caller's own orders, newest first.
func List(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
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
		page, err := svc.ListForRequester(r.Context(), middleware.UserIDFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Get serves the redacted order view. It needs no credentials: the order id
// is the capability.
func Get(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
		if !internalorders.ValidOrderID(orderID) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		view, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccess(w, view)
	}
}
