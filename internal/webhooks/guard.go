package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

type markStore interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(provider, eventID string) string
}

// EventGuard remembers provider delivery ids so replays short-circuit before
// reaching the store. Reconciliation stays correct without it.
type EventGuard struct {
	store markStore
	ttl   time.Duration
}

func NewEventGuard(store markStore, ttl time.Duration) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("mark store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &EventGuard{store: store, ttl: ttl}, nil
}

// Mark reports whether this call is the first to see the delivery.
func (g *EventGuard) Mark(ctx context.Context, provider enums.PaymentMethod, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	first, err := g.store.MarkOnce(ctx, g.store.WebhookEventKey(string(provider), eventID), g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook event: %w", err)
	}
	return first, nil
}

// Release forgets a delivery so the provider's retry is processed.
func (g *EventGuard) Release(ctx context.Context, provider enums.PaymentMethod, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.WebhookEventKey(string(provider), eventID))
}
