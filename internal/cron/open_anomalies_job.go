package cron

import (
	"context"
	"fmt"

	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

type anomalyCounter interface {
	CountOpen(ctx context.Context) (int64, error)
}

type anomalyGauge interface {
	SetOpenAnomalies(count int64)
}

type OpenAnomaliesJobParams struct {
	Logger  *logger.Logger
	Counter anomalyCounter
	Gauge   anomalyGauge
}

// NewOpenAnomaliesJob publishes the number of unresolved payment anomalies.
func NewOpenAnomaliesJob(params OpenAnomaliesJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Counter == nil {
		return nil, fmt.Errorf("anomaly counter required")
	}
	if params.Gauge == nil {
		return nil, fmt.Errorf("anomaly gauge required")
	}
	return &openAnomaliesJob{
		logg:    params.Logger,
		counter: params.Counter,
		gauge:   params.Gauge,
	}, nil
}

type openAnomaliesJob struct {
	logg    *logger.Logger
	counter anomalyCounter
	gauge   anomalyGauge
}

func (j *openAnomaliesJob) Name() string { return "open-anomalies" }

func (j *openAnomaliesJob) Run(ctx context.Context) error {
	count, err := j.counter.CountOpen(ctx)
	if err != nil {
		return fmt.Errorf("count open anomalies: %w", err)
	}
	j.gauge.SetOpenAnomalies(count)

	logCtx := j.logg.WithField(ctx, "open_anomalies", count)
	if count > 0 {
		j.logg.Warn(logCtx, "payment anomalies awaiting review")
		return nil
	}
	j.logg.Info(logCtx, "no open payment anomalies")
	return nil
}
