// Package idempotency records which Pub/Sub events a consumer has already
// handled, so at-least-once delivery turns into effectively-once handling.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aidigitalagency/storefront-backend/pkg/redis"
)

// Ledger claims event ids per consumer in Redis. A claim is a SETNX on
// sf:idempotency:evt:<consumer>:<event_id> that lives for ttl.
type Ledger struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewLedger(store redis.IdempotencyStore, ttl time.Duration) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("idempotency: store required")
	}
	if ttl <= 0 {
		return nil, errors.New("idempotency: ttl must be positive")
	}
	return &Ledger{store: store, ttl: ttl}, nil
}

// Claim reports whether this delivery is the first to claim eventID for
// consumer. A false result means an earlier delivery holds the claim.
func (l *Ledger) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return l.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl)
}

// Release drops a claim after a failed handling attempt so the redelivery
// is processed.
func (l *Ledger) Release(ctx context.Context, consumer, eventID string) error {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return err
	}
	return l.store.Del(ctx, key)
}

func (l *Ledger) key(consumer, eventID string) (string, error) {
	consumer, eventID = strings.TrimSpace(consumer), strings.TrimSpace(eventID)
	switch {
	case consumer == "":
		return "", errors.New("idempotency: consumer name required")
	case eventID == "":
		return "", errors.New("idempotency: event id required")
	}
	return l.store.IdempotencyKey("evt:"+consumer, eventID), nil
}
