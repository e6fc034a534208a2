package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
)

// ErrMissingResource marks a topic or subscription that does not exist.
var ErrMissingResource = errors.New("pubsub resource not found")

// Client wraps the Pub/Sub v2 client with project-relative naming and
// existence checks. Each process declares the resources it depends on.
type Client struct {
	raw     *gcppubsub.Client
	project string

	topics        []string
	subscriptions []string
}

// Option declares a resource the process needs.
type Option func(*Client)

func RequireTopic(name string) Option {
	return func(c *Client) { c.topics = appendName(c.topics, name) }
}

func RequireSubscription(name string) Option {
	return func(c *Client) { c.subscriptions = appendName(c.subscriptions, name) }
}

// NewClient dials Pub/Sub and fails when a required resource is absent.
func NewClient(ctx context.Context, gcp config.GCPConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("pubsub: gcp project id is required")
	}
	raw, err := gcppubsub.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: dial: %w", err)
	}
	c := &Client{raw: raw, project: project}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":        c.topics,
			"subscriptions": c.subscriptions,
		}), "pubsub client ready")
	}
	return c, nil
}

// Ping confirms every required topic and subscription still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.raw == nil {
		return errors.New("pubsub: client not initialized")
	}
	for _, name := range c.topics {
		_, err := c.raw.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topicPath(name)})
		if err := lookupError("topic", name, err); err != nil {
			return err
		}
	}
	for _, name := range c.subscriptions {
		_, err := c.raw.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.subscriptionPath(name)})
		if err := lookupError("subscription", name, err); err != nil {
			return err
		}
	}
	return nil
}

// Publisher returns a new publisher for a topic id or full resource name.
// Callers own the handle and must Stop it.
func (c *Client) Publisher(topic string) *gcppubsub.Publisher {
	path := c.topicPath(topic)
	if path == "" {
		return nil
	}
	return c.raw.Publisher(path)
}

// Subscriber returns a receiver for a subscription id or full resource name.
func (c *Client) Subscriber(subscription string) *gcppubsub.Subscriber {
	path := c.subscriptionPath(subscription)
	if path == "" {
		return nil
	}
	return c.raw.Subscriber(path)
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) topicPath(name string) string {
	return resourcePath(c.project, "topics", name)
}

func (c *Client) subscriptionPath(name string) string {
	return resourcePath(c.project, "subscriptions", name)
}

// resourcePath expands an id into projects/<project>/<kind>/<id>. Names that
// are already fully qualified pass through.
func resourcePath(project, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if project == "" {
		return ""
	}
	return "projects/" + project + "/" + kind + "/" + name
}

func lookupError(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%w: %s %q", ErrMissingResource, kind, name)
	default:
		return fmt.Errorf("pubsub: look up %s %q: %w", kind, name, err)
	}
}

func appendName(names []string, name string) []string {
	if name = strings.TrimSpace(name); name != "" {
		return append(names, name)
	}
	return names
}

