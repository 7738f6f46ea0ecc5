// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// EventAttribute carries the logical topic on every message.
const EventAttribute = "event"

// Config maps logical topics (e.g. "equipment.created") to Pub/Sub topic
// IDs. Unmapped topics are used as topic IDs directly.
type Config struct {
	ProjectID string            `mapstructure:"project_id"`
	Topics    map[string]string `mapstructure:"topics"`
}

// Publisher publishes JSON payloads to Pub/Sub topics.
type Publisher struct {
	client  *pubsub.Client
	owned   bool
	topics  map[string]string
	mu      sync.Mutex
	handles map[string]*pubsub.Topic
	logger  *zap.Logger
}

// Open creates a client and checks that every mapped topic exists.
func Open(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Publisher, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub.project_id is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	p := New(client, cfg.Topics, logger)
	p.owned = true
	for logical, id := range cfg.Topics {
		exists, err := client.Topic(id).Exists(ctx)
		if err == nil && !exists {
			err = fmt.Errorf("topic %q does not exist in project %q", id, cfg.ProjectID)
		}
		if err != nil {
			if closeErr := p.Close(); closeErr != nil {
				p.logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
			}
			return nil, fmt.Errorf("check pubsub topic for %s: %w", logical, err)
		}
	}
	return p, nil
}

// New wraps an existing client. The caller keeps ownership of client.
func New(client *pubsub.Client, topics map[string]string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:  client,
		topics:  topics,
		handles: make(map[string]*pubsub.Topic),
		logger:  logger.Named("pubsub"),
	}
}

// Publish marshals the payload to JSON, publishes it and waits for the
// server-assigned message ID. Trace context is propagated in attributes.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{EventAttribute: topic}}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	id, err := p.handle(topic).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func (p *Publisher) handle(topic string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.handles[topic]; ok {
		return t
	}
	id := topic
	if mapped := p.topics[topic]; mapped != "" {
		id = mapped
	}
	t := p.client.Topic(id)
	p.handles[topic] = t
	return t
}

// Close flushes pending messages and closes the client when Open created it.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.handles {
		t.Stop()
	}
	p.handles = make(map[string]*pubsub.Topic)
	p.mu.Unlock()
	if !p.owned {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
