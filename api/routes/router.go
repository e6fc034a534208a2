package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aidigitalagency/storefront-backend/api/controllers"
	admincontrollers "github.com/aidigitalagency/storefront-backend/api/controllers/admin"
	ordercontrollers "github.com/aidigitalagency/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/aidigitalagency/storefront-backend/api/controllers/webhooks"
	"github.com/aidigitalagency/storefront-backend/api/middleware"
	pkgAuth "github.com/aidigitalagency/storefront-backend/pkg/auth"
	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	"github.com/aidigitalagency/storefront-backend/pkg/metrics"
	pkgredis "github.com/aidigitalagency/storefront-backend/pkg/redis"
)

// RedisStore is the slice of the Redis client used by HTTP middleware.
type RedisStore interface {
	pkgredis.IdempotencyStore
	CountWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type OrdersService interface {
	ordercontrollers.OrdersService
	admincontrollers.OrdersService
}

// Dependencies are the collaborators the API routes are built from.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       RedisStore
	AdminPolicy *pkgAuth.AdminPolicy
	Orders      OrdersService
	Payments    ordercontrollers.SessionService
	Anomalies   admincontrollers.AnomalyService
	Webhooks    webhookcontrollers.PaymentWebhookService
	Gatherer    prometheus.Gatherer
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	var redisPinger controllers.Pinger
	if deps.Redis != nil {
		redisPinger = deps.Redis
	}

	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.RequestID(logg),
		middleware.AccessLog(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.PublicBaseURL, cfg.App.CORSOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.CheckoutWindow,
		cfg.RateLimit.CheckoutIPLimit,
		cfg.RateLimit.CheckoutUserLimit,
	)
	idempotent := middleware.Idempotency(deps.Redis, logg)
	throttled := middleware.RateLimit(checkoutPolicy, deps.Redis, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "db", Pinger: deps.DB},
			controllers.ReadinessCheck{Name: "redis", Pinger: redisPinger},
		))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/cashfree", webhookcontrollers.PaymentWebhook(enums.PaymentMethodCashfree, deps.Webhooks, logg))
		r.Post("/paypal", webhookcontrollers.PaymentWebhook(enums.PaymentMethodPayPal, deps.Webhooks, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/{orderId}", ordercontrollers.Get(deps.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.AdminPolicy, logg))
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.With(throttled, idempotent).Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.With(throttled, idempotent).Post("/{orderId}/payments/{provider}", ordercontrollers.CreatePaymentSession(deps.Payments, logg))
		})
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.AdminPolicy, logg))
		r.Use(middleware.RequireAdmin(logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", admincontrollers.ListOrders(deps.Orders, logg))
			r.Get("/{orderId}", admincontrollers.GetOrder(deps.Orders, logg))
			r.With(idempotent).Patch("/{orderId}/status", admincontrollers.UpdateOrderStatus(deps.Orders, logg))
		})
		r.Route("/anomalies", func(r chi.Router) {
			r.Get("/", admincontrollers.ListAnomalies(deps.Anomalies, logg))
			r.Get("/{anomalyId}", admincontrollers.GetAnomaly(deps.Anomalies, logg))
			r.With(idempotent).Post("/{anomalyId}/resolve", admincontrollers.ResolveAnomaly(deps.Anomalies, logg))
		})
	})

	return r
}
