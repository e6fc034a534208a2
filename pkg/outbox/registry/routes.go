// Package registry maps outbox rows to their Pub/Sub route and typed payload.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/db/models"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox"
	"github.com/aidigitalagency/storefront-backend/pkg/outbox/payloads"
)

// ErrUnknownEvent is wrapped when a row carries an event type with no route.
var ErrUnknownEvent = errors.New("unknown event type")

var payloadRules = validator.New(validator.WithRequiredStructEnabled())

// EventDescriptor is one route: the aggregate an event belongs to, the topic
// it is published on and the payload shape it must decode into.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (any, error)
}

// ResolvedEvent is a row that passed routing and payload checks. Payload is a
// pointer to the matching payloads type.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// EventRegistry holds the route for every event the storefront emits.
type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

func route[T any](event enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{EventType: event, AggregateType: aggregate, decode: decodeAs[T]}
}

func decodeAs[T any](data json.RawMessage) (any, error) {
	payload := new(T)
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, err
	}
	if err := payloadRules.Struct(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// NewEventRegistry routes every event to the domain topic. Consumers select
// what they need through the event_type attribute.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.DomainTopic)
	if topic == "" {
		return nil, errors.New("registry: domain topic is required")
	}
	reg := &EventRegistry{routes: map[enums.OutboxEventType]EventDescriptor{}}
	for _, d := range []EventDescriptor{
		route[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder),
		route[payloads.OrderPaymentRecordedEvent](enums.EventOrderPaymentRecorded, enums.AggregateOrder),
		route[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder),
		route[payloads.OrderCompletedEvent](enums.EventOrderCompleted, enums.AggregateOrder),
		route[payloads.PaymentAnomalyRecordedEvent](enums.EventPaymentAnomalyRecorded, enums.AggregatePaymentAnomaly),
		route[payloads.PaymentAnomalyResolvedEvent](enums.EventPaymentAnomalyResolved, enums.AggregatePaymentAnomaly),
	} {
		d.Topic = topic
		reg.routes[d.EventType] = d
	}
	return reg, nil
}

// Lookup returns the route for an event type.
func (r *EventRegistry) Lookup(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	d, ok := r.routes[eventType]
	return d, ok
}

// Resolve checks the row against its route and decodes the payload. Every
// failure is a NonRetryableError: the stored bytes will not get better.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	d, ok := r.routes[row.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("%w %q", ErrUnknownEvent, row.EventType))
	}
	if d.AggregateType != row.AggregateType {
		return nil, permanent("%s belongs to %s, row says %s", row.EventType, d.AggregateType, row.AggregateType)
	}
	if strings.TrimSpace(row.AggregateID) == "" {
		return nil, permanent("%s row %s has no aggregate_id", row.EventType, row.ID)
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	if env.EventID == "" {
		return nil, permanent("%s envelope has no eventId", row.EventType)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("%s envelope has no data", row.EventType)
	}

	payload, err := d.decode(env.Data)
	if err != nil {
		return nil, permanent("%s payload: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: d, Envelope: env, Payload: payload}, nil
}
