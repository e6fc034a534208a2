package subscriber

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox"
)

// Event is a domain event as delivered by the outbox relay: routing metadata
// from the message attributes plus the stored payload envelope.
type Event struct {
	ID            string
	Type          enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Version       int
	OccurredAt    time.Time
	Actor         *outbox.ActorRef
	Data          json.RawMessage
}

var errMalformed = errors.New("malformed event")

// Decode rebuilds an Event from a Pub/Sub delivery. The envelope's event id
// wins over the attribute copy; occurred_at falls back to created_at.
func Decode(attrs map[string]string, data []byte) (Event, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Event{}, fmt.Errorf("%w: envelope: %v", errMalformed, err)
	}

	eventType, err := enums.ParseOutboxEventType(attr(attrs, "event_type"))
	if err != nil {
		return Event{}, fmt.Errorf("%w: event_type: %v", errMalformed, err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr(attrs, "aggregate_type"))
	if err != nil {
		return Event{}, fmt.Errorf("%w: aggregate_type: %v", errMalformed, err)
	}

	ev := Event{
		ID:            strings.TrimSpace(envelope.EventID),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   attr(attrs, "aggregate_id"),
		Version:       envelope.Version,
		OccurredAt:    envelope.OccurredAt.UTC(),
		Actor:         envelope.Actor,
		Data:          envelope.Data,
	}
	if ev.ID == "" {
		ev.ID = attr(attrs, "event_id")
	}
	if ev.OccurredAt.IsZero() {
		if created, err := time.Parse(time.RFC3339Nano, attr(attrs, "created_at")); err == nil {
			ev.OccurredAt = created.UTC()
		}
	}

	switch {
	case ev.ID == "":
		return Event{}, fmt.Errorf("%w: event id missing", errMalformed)
	case ev.AggregateID == "":
		return Event{}, fmt.Errorf("%w: aggregate_id missing", errMalformed)
	case len(ev.Data) == 0:
		return Event{}, fmt.Errorf("%w: empty payload", errMalformed)
	}
	return ev, nil
}

// Bind unmarshals the event payload into T.
func Bind[T any](ev Event) (T, error) {
	var out T
	if err := json.Unmarshal(ev.Data, &out); err != nil {
		return out, fmt.Errorf("%w: %s payload: %v", errMalformed, ev.Type, err)
	}
	return out, nil
}

// IsMalformed reports whether err came from Decode or Bind.
func IsMalformed(err error) bool {
	return errors.Is(err, errMalformed)
}

func attr(attrs map[string]string, key string) string {
	return strings.TrimSpace(attrs[key])
}
