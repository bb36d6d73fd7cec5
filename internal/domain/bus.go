package domain

import (
	"context"
)

// EventBus defines the interface for pipeline event notifications.
// Supports Go channels or NATS.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel", "nats" or "none"
	Type string `koanf:"type"`

	// Channel settings
	ChannelBufferSize int `koanf:"channel_buffer_size"`

	// NATS settings
	NATSUrl           string `koanf:"nats_url"`
	NATSToken         string `koanf:"nats_token"`
	NATSMaxReconnects int    `koanf:"nats_max_reconnects"`
	NATSReconnectWait int    `koanf:"nats_reconnect_wait"` // seconds
}

// Standard topic names for the scan pipeline.
const (
	TopicDetectorCompleted = "fraudscan.detector.completed"
	TopicDetectorFailed    = "fraudscan.detector.failed"
	TopicReportGenerated   = "fraudscan.report.generated"
)

// DetectorEvent is the payload of detector topics.
type DetectorEvent struct {
	RunID      string     `json:"run_id"`
	Signal     SignalType `json:"signal"`
	Count      int        `json:"count"`
	DurationMs int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
}

// ReportEvent is the payload of TopicReportGenerated.
type ReportEvent struct {
	RunID                string  `json:"run_id"`
	GeneratedAt          string  `json:"generated_at"`
	ProvidersFlagged     int     `json:"providers_flagged"`
	ActionableNetworks   int     `json:"actionable_networks"`
	EstimatedOverpayment float64 `json:"estimated_overpayment_usd"`
}
