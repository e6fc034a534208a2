package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/aidigitalagency/storefront-backend/api/responses"
	"github.com/aidigitalagency/storefront-backend/internal/webhooks"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type PaymentWebhookService interface {
	Handle(ctx context.Context, provider enums.PaymentMethod, payload []byte, header http.Header) (webhooks.Outcome, error)
}

// PaymentWebhook receives one provider's payment notifications. The raw body
// is handed to the service untouched so signatures can be checked over the
// exact bytes. Definitive outcomes, including duplicates and conflicts,
// answer 200 so the provider stops retrying.
func PaymentWebhook(provider enums.PaymentMethod, svc PaymentWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeMalformedEvent, err, "read request body"))
			return
		}

		outcome, err := svc.Handle(ctx, provider, payload, r.Header)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
