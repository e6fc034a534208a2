package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aidigitalagency/storefront-backend/api/middleware"
	"github.com/aidigitalagency/storefront-backend/api/responses"
	"github.com/aidigitalagency/storefront-backend/internal/payments"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

type SessionService interface {
	CreateSession(ctx context.Context, input payments.CreateSessionInput) (*payments.Session, error)
}

// CreatePaymentSession opens a hosted checkout with the provider named in
// the path for one of the caller's orders.
func CreatePaymentSession(svc SessionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
		provider := strings.TrimSpace(chi.URLParam(r, "provider"))

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProvider(logg.WithOrderID(ctx, orderID), provider)
		}

		session, err := svc.CreateSession(ctx, payments.CreateSessionInput{
			OrderID:     orderID,
			Provider:    provider,
			RequesterID: middleware.UserIDFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}
