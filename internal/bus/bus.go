package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// New creates a new event bus based on configuration.
// "channel" returns an in-process ChannelBus, "nats" a NATSBus and
// "none" a bus that drops every event.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "none":
		return Nop{}, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	return b.Publish(ctx, topic, payload)
}

// Nop is an EventBus that discards everything.
type Nop struct{}

func (Nop) Publish(ctx context.Context, topic string, payload []byte) error { return nil }

func (Nop) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return nopSubscription(topic), nil
}

func (Nop) Ping(ctx context.Context) error { return nil }
func (Nop) Close() error                   { return nil }

type nopSubscription string

func (s nopSubscription) Unsubscribe() error { return nil }
func (s nopSubscription) Topic() string      { return string(s) }
