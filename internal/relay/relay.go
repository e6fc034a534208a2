// Package relay moves committed outbox rows onto Pub/Sub.
//
// Each pass claims a batch inside one transaction, publishes it grouped by
// aggregate so per-order ordering survives concurrency, then settles every
// row before the transaction commits. Rows that cannot ever be delivered are
// copied to outbox_dlq and parked.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	defaultConcurrency    = 8
	maxIdleBackoff        = 10 * time.Second
)

type outcome string

const (
	outcomePublished  outcome = "published"
	outcomeRetry      outcome = "retry"
	outcomeDeadLetter outcome = "dead_letter"
	// An earlier event for the same aggregate failed in this pass.
	outcomeDeferred outcome = "deferred"
)

type txRunner interface {
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterWriter interface {
	RecordTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type router interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type recorder interface {
	IncPublish(eventType, outcome string)
}

// Params wires a Relay. Zero numeric fields fall back to defaults.
type Params struct {
	Logger         *logger.Logger
	DB             txRunner
	Events         eventStore
	DeadLetters    deadLetterWriter
	Routes         router
	Sink           Sink
	Metrics        recorder
	BatchSize      int
	MaxAttempts    int
	PollInterval   time.Duration
	PublishTimeout time.Duration
	Concurrency    int
}

type Relay struct {
	logg        *logger.Logger
	db          txRunner
	events      eventStore
	deadLetters deadLetterWriter
	routes      router
	sink        Sink
	metrics     recorder

	batchSize      int
	maxAttempts    int
	poll           time.Duration
	publishTimeout time.Duration
	concurrency    int
}

func New(p Params) (*Relay, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("relay: db required")
	case p.Events == nil:
		return nil, errors.New("relay: event store required")
	case p.DeadLetters == nil:
		return nil, errors.New("relay: dead letter store required")
	case p.Routes == nil:
		return nil, errors.New("relay: event routes required")
	case p.Sink == nil:
		return nil, errors.New("relay: sink required")
	}
	r := &Relay{
		logg:           p.Logger,
		db:             p.DB,
		events:         p.Events,
		deadLetters:    p.DeadLetters,
		routes:         p.Routes,
		sink:           p.Sink,
		metrics:        p.Metrics,
		batchSize:      orDefault(p.BatchSize, defaultBatchSize),
		maxAttempts:    orDefault(p.MaxAttempts, defaultMaxAttempts),
		poll:           orDefault(p.PollInterval, defaultPollInterval),
		publishTimeout: orDefault(p.PublishTimeout, defaultPublishTimeout),
		concurrency:    orDefault(p.Concurrency, defaultConcurrency),
	}
	if r.logg == nil {
		r.logg = logger.Nop()
	}
	return r, nil
}

// Run drains the outbox until ctx is cancelled. A full batch is followed
// immediately by another pass; failures back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("relay: database unreachable: %w", err)
	}
	wait := r.poll
	for {
		claimed, err := r.Drain(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay pass failed", err)
			wait = min(max(wait*2, r.poll), maxIdleBackoff)
		case claimed >= r.batchSize:
			wait = 0
		default:
			wait = r.poll
		}
		if err := pause(ctx, jitter(wait)); err != nil {
			return err
		}
	}
}

// Drain runs one claim-publish-settle pass and reports how many rows it
// claimed.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows)
		if claimed == 0 {
			return nil
		}
		results := r.publishAll(ctx, rows)
		for i := range rows {
			if err := r.settle(ctx, tx, rows[i], results[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

type delivery struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	err     error
	topic   string
	eventID string
}

// publishAll fans out one goroutine per aggregate. Within an aggregate rows
// go out in claim order and stop at the first retryable failure.
func (r *Relay) publishAll(ctx context.Context, rows []models.OutboxEvent) []delivery {
	results := make([]delivery, len(rows))
	var order []string
	groups := map[string][]int{}
	for i, row := range rows {
		if _, seen := groups[row.AggregateID]; !seen {
			order = append(order, row.AggregateID)
		}
		groups[row.AggregateID] = append(groups[row.AggregateID], i)
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, key := range order {
		idxs := groups[key]
		g.Go(func() error {
			blocked := false
			for _, i := range idxs {
				if blocked {
					results[i] = delivery{outcome: outcomeDeferred}
					continue
				}
				results[i] = r.publishOne(ctx, rows[i])
				blocked = results[i].outcome == outcomeRetry
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Relay) publishOne(ctx context.Context, row models.OutboxEvent) delivery {
	resolved, err := r.routes.Resolve(row)
	if err != nil {
		return delivery{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	d := delivery{topic: resolved.Descriptor.Topic, eventID: resolved.Envelope.EventID}

	sendCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	_, err = r.sink.Send(sendCtx, Message{
		Topic:       d.topic,
		OrderingKey: row.AggregateID,
		Data:        row.Payload,
		Attributes:  attributes(row, resolved),
	})

	var permanent registry.NonRetryableError
	switch {
	case err == nil:
		d.outcome = outcomePublished
	case errors.Is(err, ErrUnroutable):
		d.outcome, d.reason, d.err = outcomeDeadLetter, enums.OutboxDLQReasonUnroutable, err
	case errors.As(err, &permanent):
		d.outcome, d.reason, d.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case row.AttemptCount+1 >= r.maxAttempts:
		d.outcome, d.reason = outcomeDeadLetter, enums.OutboxDLQReasonMaxAttempts
		d.err = fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err)
	default:
		d.outcome, d.err = outcomeRetry, err
	}
	return d
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, d delivery) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID,
		"attempt_count": row.AttemptCount,
		"outcome":       d.outcome,
	})
	if d.topic != "" {
		ctx = r.logg.WithField(ctx, "topic", d.topic)
	}
	if d.eventID != "" {
		ctx = r.logg.WithField(ctx, "event_id", d.eventID)
	}

	switch d.outcome {
	case outcomePublished:
		if err := r.events.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		r.logg.Debug(ctx, "outbox event published")
	case outcomeRetry:
		if err := r.events.MarkFailedTx(tx, row.ID, d.err); err != nil {
			return fmt.Errorf("mark %s failed: %w", row.ID, err)
		}
		r.logg.Warn(r.logg.WithField(ctx, "error", d.err.Error()), "outbox publish failed, will retry")
	case outcomeDeadLetter:
		message := d.err.Error()
		entry := models.OutboxDLQ{
			EventID:       row.ID,
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			AggregateID:   row.AggregateID,
			Payload:       row.Payload,
			ErrorReason:   d.reason,
			ErrorMessage:  &message,
			AttemptCount:  row.AttemptCount + 1,
			FailedAt:      time.Now().UTC(),
		}
		if err := r.deadLetters.RecordTx(tx, entry); err != nil {
			return fmt.Errorf("dead-letter %s: %w", row.ID, err)
		}
		if err := r.events.MarkTerminalTx(tx, row.ID, d.err, r.maxAttempts); err != nil {
			return fmt.Errorf("park %s: %w", row.ID, err)
		}
		r.logg.Error(r.logg.WithField(ctx, "dlq_reason", d.reason), "outbox event dead-lettered", d.err)
	case outcomeDeferred:
		r.logg.Debug(ctx, "outbox event deferred behind failed predecessor")
	}
	if r.metrics != nil {
		r.metrics.IncPublish(string(row.EventType), string(d.outcome))
	}
	return nil
}

func attributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID,
		"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		"schema_version": fmt.Sprint(resolved.Envelope.Version),
	}
	if !resolved.Envelope.OccurredAt.IsZero() {
		attrs["occurred_at"] = resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	return attrs
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter adds up to a quarter of d.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/4+1)
}

func orDefault[T int | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
