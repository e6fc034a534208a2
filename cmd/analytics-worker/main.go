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

	"github.com/aidigitalagency/storefront-backend/internal/analytics"
	"github.com/aidigitalagency/storefront-backend/internal/subscriber"
	"github.com/aidigitalagency/storefront-backend/pkg/bigquery"
	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/instance"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	"github.com/aidigitalagency/storefront-backend/pkg/metrics"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox/idempotency"
	"github.com/aidigitalagency/storefront-backend/pkg/pubsub"
	"github.com/aidigitalagency/storefront-backend/pkg/redis"
)

const serviceName = "analytics-worker"

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
		logg.Error(ctx, "analytics worker stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "analytics worker stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	subscription := cfg.PubSub.AnalyticsSubscription
	psClient, err := pubsub.NewClient(ctx, cfg.GCP, logg, pubsub.RequireSubscription(subscription))
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer psClient.Close()

	bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery.Dataset, []string{cfg.BigQuery.PaymentEventsTable}, logg)
	if err != nil {
		return fmt.Errorf("bigquery: %w", err)
	}
	defer bq.Close()

	ledger, err := idempotency.NewLedger(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return err
	}
	writer, err := analytics.NewWriter(bq, cfg.BigQuery.PaymentEventsTable, logg,
		analytics.WithBatchSize(cfg.BigQuery.BatchSize),
	)
	if err != nil {
		return err
	}
	facts, err := analytics.NewFacts(writer)
	if err != nil {
		return err
	}
	sub, err := subscriber.New(analytics.ConsumerName, facts, ledger, logg,
		subscriber.OnlyEvents(analytics.TrackedEvents...),
		subscriber.OnStop(writer.Flush),
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
		return errors.New("analytics subscription not configured")
	}
	return sub.Run(ctx, receiver)
}
