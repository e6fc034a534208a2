package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	// unpublished rows with this many attempts already have a dead letter
	deadLetterAttempts = 5
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error)
}

type deadLetterPruner interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams wire the retention job. Zero retention values
// fall back to 30 days for outbox rows and 90 days for dead letters.
type OutboxRetentionJobParams struct {
	Logger         *logger.Logger
	Outbox         outboxPruner
	DeadLetters    deadLetterPruner
	OutboxDays     int
	DeadLetterDays int
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	outbox      outboxPruner
	deadLetters deadLetterPruner
	outboxTTL   time.Duration
	dlqTTL      time.Duration
	now         func() time.Time
}

// NewOutboxRetentionJob prunes delivered outbox rows and stale dead letters.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("outbox retention: logger required")
	case params.Outbox == nil:
		return nil, errors.New("outbox retention: outbox repository required")
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		outbox:      params.Outbox,
		deadLetters: params.DeadLetters,
		outboxTTL:   daysOr(params.OutboxDays, defaultOutboxRetention),
		dlqTTL:      daysOr(params.DeadLetterDays, defaultDLQRetention),
		now:         time.Now,
	}, nil
}

func daysOr(days int, fallback time.Duration) time.Duration {
	if days <= 0 {
		return fallback
	}
	return time.Duration(days) * 24 * time.Hour
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	fields := map[string]any{}
	var errs error

	outboxCutoff := now.Add(-j.outboxTTL)
	pruned, err := j.outbox.DeletePublishedBefore(ctx, nil, outboxCutoff, deadLetterAttempts)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune outbox: %w", err))
	} else {
		fields["outbox_cutoff"] = outboxCutoff
		fields["outbox_rows_deleted"] = pruned
	}

	if j.deadLetters != nil {
		dlqCutoff := now.Add(-j.dlqTTL)
		purged, err := j.deadLetters.PurgeBefore(ctx, dlqCutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purge dead letters: %w", err))
		} else {
			fields["dlq_cutoff"] = dlqCutoff
			fields["dlq_rows_deleted"] = purged
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention pass finished")
	return errs
}
