package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aidigitalagency/storefront-backend/internal/notifications"
	"github.com/aidigitalagency/storefront-backend/internal/subscriber"
	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/instance"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	"github.com/aidigitalagency/storefront-backend/pkg/metrics"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox/idempotency"
	"github.com/aidigitalagency/storefront-backend/pkg/pubsub"
	"github.com/aidigitalagency/storefront-backend/pkg/redis"
)

const serviceName = "worker"

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

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "notification worker stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "notification worker stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	subscription := cfg.PubSub.NotificationSubscription
	psClient, err := pubsub.NewClient(ctx, cfg.GCP, logg, pubsub.RequireSubscription(subscription))
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer psClient.Close()

	ledger, err := idempotency.NewLedger(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return err
	}

	dispatcher := notifications.NewHTTPDispatcher(cfg.Notifications, logg,
		notifications.WithMetrics(metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)),
	)
	handler, err := notifications.NewOrderHandler(dispatcher)
	if err != nil {
		return err
	}
	sub, err := subscriber.New(notifications.ConsumerName, handler, ledger, logg,
		subscriber.OnlyEvents(notifications.OrderEvents...),
		subscriber.WithMetrics(metrics.NewConsumerMetrics(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		return err
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()

	receiver := psClient.Subscriber(subscription)
	if receiver == nil {
		return errors.New("notification subscription not configured")
	}
	return sub.Run(ctx, receiver)
}
