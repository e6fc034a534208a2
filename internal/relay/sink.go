package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// ErrUnroutable means no publisher exists for the message topic.
var ErrUnroutable = errors.New("no publisher for topic")

// Message is one outbox row ready for the broker.
type Message struct {
	Topic       string
	OrderingKey string
	Data        []byte
	Attributes  map[string]string
}

// Sink delivers a message and returns the broker-assigned id once accepted.
type Sink interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type topicSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// PubSubSink publishes through one cached, ordering-enabled publisher per topic.
type PubSubSink struct {
	source topicSource

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

func NewPubSubSink(source topicSource) *PubSubSink {
	return &PubSubSink{source: source, publishers: map[string]*gcppubsub.Publisher{}}
}

func (s *PubSubSink) Send(ctx context.Context, msg Message) (string, error) {
	pub := s.publisher(msg.Topic)
	if pub == nil {
		return "", fmt.Errorf("%w %q", ErrUnroutable, msg.Topic)
	}
	id, err := pub.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.OrderingKey,
	}).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		// An ordering key stays paused after a failure until resumed.
		pub.ResumePublish(msg.OrderingKey)
	}
	return id, err
}

// Stop flushes and stops every cached publisher.
func (s *PubSubSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, pub := range s.publishers {
		pub.Stop()
		delete(s.publishers, topic)
	}
}

func (s *PubSubSink) publisher(topic string) *gcppubsub.Publisher {
	if topic == "" || s.source == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.source.Publisher(topic)
	if pub == nil {
		return nil
	}
	pub.EnableMessageOrdering = true
	s.publishers[topic] = pub
	return pub
}
