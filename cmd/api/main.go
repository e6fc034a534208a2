package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/aidigitalagency/storefront-backend/api/routes"
	"github.com/aidigitalagency/storefront-backend/internal/notifications"
	"github.com/aidigitalagency/storefront-backend/internal/orders"
	"github.com/aidigitalagency/storefront-backend/internal/payments"
	"github.com/aidigitalagency/storefront-backend/internal/reconcile"
	"github.com/aidigitalagency/storefront-backend/internal/webhooks"
	pkgAuth "github.com/aidigitalagency/storefront-backend/pkg/auth"
	"github.com/aidigitalagency/storefront-backend/pkg/cashfree"
	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/db"
	"github.com/aidigitalagency/storefront-backend/pkg/instance"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	"github.com/aidigitalagency/storefront-backend/pkg/metrics"
	"github.com/aidigitalagency/storefront-backend/pkg/migrate"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox"
	"github.com/aidigitalagency/storefront-backend/pkg/paypal"
	"github.com/aidigitalagency/storefront-backend/pkg/redis"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: load config: %v\n", serviceName, err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"instance":    instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	deps, err := wire(ctx, cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	addr := ":" + cmp.Or(os.Getenv("PORT"), cfg.App.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(logg.WithField(gctx, "addr", addr), "api server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// wire builds the domain services behind the router. A payment provider with
// incomplete credentials is left out rather than failing startup.
func wire(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	conn := dbClient.DB()
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	ordersRepo := orders.NewRepository(conn)

	ordersService, err := orders.NewService(ordersRepo, dbClient, emitter, logg)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("orders service: %w", err)
	}

	var (
		providers      []payments.Provider
		paypalVerifier webhooks.PayPalSignatureVerifier
	)
	if client, err := cashfree.NewClient(cfg.Cashfree); err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "cashfree payments disabled")
	} else {
		providers = append(providers, payments.NewCashfreeProvider(client, cfg.App.PublicBaseURL))
	}
	if client, err := paypal.NewClient(cfg.PayPal); err != nil {
		logg.Warn(logg.WithField(ctx, "reason", err.Error()), "paypal payments disabled")
	} else {
		providers = append(providers, payments.NewPayPalProvider(client, cfg.App.PublicBaseURL, cfg.App.BrandName))
		paypalVerifier = client
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Orders:    ordersRepo,
		Providers: providers,
		Timeout:   cfg.Payments.SessionTimeout,
		Metrics:   paymentMetrics,
		Logger:    logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("payments service: %w", err)
	}

	engine, err := reconcile.NewEngine(
		ordersRepo,
		reconcile.NewAnomalyRepository(conn),
		dbClient,
		emitter,
		notifications.NewHTTPDispatcher(cfg.Notifications, logg, notifications.WithMetrics(paymentMetrics)),
		paymentMetrics,
		logg,
		reconcile.WithDispatchBudget(cfg.Notifications.InlineBudget),
	)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("reconcile engine: %w", err)
	}

	guard, err := webhooks.NewEventGuard(redisClient, cfg.Webhooks.EventTTL)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("webhook guard: %w", err)
	}
	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Verifier:   webhooks.NewVerifier(cfg.Cashfree, cfg.PayPal, paypalVerifier),
		Reconciler: engine,
		Guard:      guard,
		Metrics:    paymentMetrics,
		Logger:     logg,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("webhook service: %w", err)
	}

	return routes.Dependencies{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		AdminPolicy: pkgAuth.NewAdminPolicy(cfg.Admin.Emails),
		Orders:      ordersService,
		Payments:    paymentsService,
		Anomalies:   engine,
		Webhooks:    webhookService,
		Gatherer:    prometheus.DefaultGatherer,
	}, nil
}
