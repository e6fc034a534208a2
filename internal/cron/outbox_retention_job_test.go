package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

type fakeOutboxPruner struct {
	cutoff      time.Time
	minAttempts int
	err         error
}

func (f *fakeOutboxPruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttempts int) (int64, error) {
	f.cutoff = cutoff
	f.minAttempts = minAttempts
	return 12, f.err
}

type fakeDeadLetterPruner struct {
	cutoff time.Time
	err    error
}

func (f *fakeDeadLetterPruner) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 2, f.err
}

func newRetentionJob(t *testing.T, params OutboxRetentionJobParams, now time.Time) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	job, err := NewOutboxRetentionJob(params)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	typed := job.(*outboxRetentionJob)
	typed.now = func() time.Time { return now }
	return typed
}

func TestOutboxRetentionUsesDefaultWindows(t *testing.T) {
	now := time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC)
	outbox := &fakeOutboxPruner{}
	dlq := &fakeDeadLetterPruner{}
	job := newRetentionJob(t, OutboxRetentionJobParams{Outbox: outbox, DeadLetters: dlq}, now)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-30 * 24 * time.Hour); !outbox.cutoff.Equal(want) {
		t.Fatalf("outbox cutoff %s, want %s", outbox.cutoff, want)
	}
	if outbox.minAttempts != deadLetterAttempts {
		t.Fatalf("min attempts %d, want %d", outbox.minAttempts, deadLetterAttempts)
	}
	if want := now.Add(-90 * 24 * time.Hour); !dlq.cutoff.Equal(want) {
		t.Fatalf("dlq cutoff %s, want %s", dlq.cutoff, want)
	}
}

func TestOutboxRetentionHonorsConfiguredDays(t *testing.T) {
	now := time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC)
	outbox := &fakeOutboxPruner{}
	dlq := &fakeDeadLetterPruner{}
	job := newRetentionJob(t, OutboxRetentionJobParams{Outbox: outbox, DeadLetters: dlq, OutboxDays: 7, DeadLetterDays: 14}, now)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-7 * 24 * time.Hour); !outbox.cutoff.Equal(want) {
		t.Fatalf("outbox cutoff %s, want %s", outbox.cutoff, want)
	}
	if want := now.Add(-14 * 24 * time.Hour); !dlq.cutoff.Equal(want) {
		t.Fatalf("dlq cutoff %s, want %s", dlq.cutoff, want)
	}
}

func TestOutboxRetentionRunsBothPrunesWhenOneFails(t *testing.T) {
	outbox := &fakeOutboxPruner{err: errors.New("outbox locked")}
	dlq := &fakeDeadLetterPruner{err: errors.New("dlq locked")}
	job := newRetentionJob(t, OutboxRetentionJobParams{Outbox: outbox, DeadLetters: dlq}, time.Now())

	err := job.Run(context.Background())
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected both failures, got %d (%v)", got, err)
	}
	if dlq.cutoff.IsZero() {
		t.Fatal("dead letter purge skipped after outbox failure")
	}
}

func TestNewOutboxRetentionJobRequiresOutbox(t *testing.T) {
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without outbox repository")
	}
}
