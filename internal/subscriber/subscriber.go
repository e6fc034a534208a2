// Package subscriber runs a Pub/Sub consumer over relay-published domain
// events: decode, claim the event id, handle, then ack or nack.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/multierr"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

const stopTimeout = 30 * time.Second

// ErrIgnored tells the subscriber the handler chose not to act on an event.
// The delivery is acked and the claim kept.
var ErrIgnored = errors.New("event ignored")

type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Ledger records which events a consumer has claimed.
type Ledger interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type recorder interface {
	IncMessage(consumer, eventType, outcome string)
}

// Verdict is the settlement of one delivery.
type Verdict int

const (
	Ack Verdict = iota
	Nack
)

func (v Verdict) String() string {
	if v == Nack {
		return "nack"
	}
	return "ack"
}

type Option func(*Subscriber)

// OnlyEvents restricts handling to the listed types. Other events are acked
// without touching the ledger.
func OnlyEvents(types ...enums.OutboxEventType) Option {
	return func(s *Subscriber) {
		if s.only == nil {
			s.only = make(map[enums.OutboxEventType]struct{}, len(types))
		}
		for _, t := range types {
			s.only[t] = struct{}{}
		}
	}
}

// OnStop registers a hook run after Receive returns, such as a buffer flush.
func OnStop(fn func(context.Context) error) Option {
	return func(s *Subscriber) {
		if fn != nil {
			s.onStop = append(s.onStop, fn)
		}
	}
}

func WithMetrics(m recorder) Option {
	return func(s *Subscriber) { s.metrics = m }
}

type Subscriber struct {
	name    string
	handler Handler
	ledger  Ledger
	logg    *logger.Logger
	only    map[enums.OutboxEventType]struct{}
	onStop  []func(context.Context) error
	metrics recorder
}

func New(name string, handler Handler, ledger Ledger, logg *logger.Logger, opts ...Option) (*Subscriber, error) {
	switch {
	case name == "":
		return nil, errors.New("subscriber name required")
	case handler == nil:
		return nil, errors.New("subscriber handler required")
	case ledger == nil:
		return nil, errors.New("idempotency ledger required")
	case logg == nil:
		return nil, errors.New("logger required")
	}
	s := &Subscriber{name: name, handler: handler, ledger: ledger, logg: logg}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run receives until ctx is canceled or the subscription fails, then runs
// the stop hooks on a context detached from ctx.
func (s *Subscriber) Run(ctx context.Context, sub receiver) error {
	if sub == nil {
		return fmt.Errorf("%s: subscription required", s.name)
	}
	s.logg.Info(ctx, "subscriber receiving")
	err := sub.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if s.Process(ctx, msg.ID, msg.Attributes, msg.Data) == Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	for _, hook := range s.onStop {
		if hookErr := hook(stopCtx); hookErr != nil {
			s.logg.Error(stopCtx, "subscriber stop hook failed", hookErr)
			err = multierr.Append(err, hookErr)
		}
	}
	return err
}

// Process settles a single delivery.
func (s *Subscriber) Process(ctx context.Context, messageID string, attrs map[string]string, data []byte) Verdict {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"consumer":   s.name,
		"message_id": messageID,
		"event_type": attrs["event_type"],
	})

	ev, err := Decode(attrs, data)
	if err != nil {
		s.logg.Error(ctx, "dropping malformed event", err)
		return s.settle(attrs["event_type"], "malformed", Ack)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     ev.ID,
		"aggregate_id": ev.AggregateID,
	})

	if s.only != nil {
		if _, ok := s.only[ev.Type]; !ok {
			s.logg.Debug(ctx, "event not handled by this consumer")
			return s.settle(string(ev.Type), "ignored", Ack)
		}
	}

	fresh, err := s.ledger.Claim(ctx, s.name, ev.ID)
	if err != nil {
		s.logg.Error(ctx, "idempotency claim failed", err)
		return s.settle(string(ev.Type), "nack", Nack)
	}
	if !fresh {
		s.logg.Info(ctx, "event already processed")
		return s.settle(string(ev.Type), "duplicate", Ack)
	}

	err = s.handler.Handle(ctx, ev)
	switch {
	case err == nil:
		s.logg.Info(ctx, "event handled")
		return s.settle(string(ev.Type), "handled", Ack)
	case errors.Is(err, ErrIgnored):
		s.logg.Debug(ctx, "handler ignored event")
		return s.settle(string(ev.Type), "ignored", Ack)
	case IsMalformed(err):
		s.logg.Error(ctx, "dropping event with undecodable payload", err)
		return s.settle(string(ev.Type), "malformed", Ack)
	}

	s.logg.Error(ctx, "event handler failed", err)
	if relErr := s.ledger.Release(ctx, s.name, ev.ID); relErr != nil {
		s.logg.Error(ctx, "idempotency release failed", relErr)
	}
	return s.settle(string(ev.Type), "nack", Nack)
}

func (s *Subscriber) settle(eventType, outcome string, v Verdict) Verdict {
	if s.metrics != nil {
		s.metrics.IncMessage(s.name, eventType, outcome)
	}
	return v
}
