package mq

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MessageQueue publishes and consumes domain events.
type MessageQueue interface {
	Producer

	// Subscribe registers a handler; consumption begins after Start.
	Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error
	Start() error
	Stop() error
	Close() error
}

// Producer publishes messages.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
}

// Message is one event on a topic.
type Message struct {
	ID         string
	Key        string
	Body       []byte
	Headers    map[string]string
	Timestamp  time.Time
	RetryCount int
	MaxRetries int
}

// HandlerFunc processes one message. A non-nil error triggers a retry.
type HandlerFunc func(ctx context.Context, message *Message) error

// SubscribeOptions defines options for subscribing to a topic
type SubscribeOptions struct {
	// ConsumerGroup defaults to "codearena-<topic>".
	ConsumerGroup string
	Concurrency   int
	MaxRetries    int
	RetryDelay    time.Duration
	// DeadLetterTopic receives messages that exhausted their retries.
	DeadLetterTopic string
}

// SetDefaults sets default values for subscribe options
func (o *SubscribeOptions) SetDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = time.Second
	}
}

// NewMessage creates a message with a fresh id. key selects the partition.
func NewMessage(key string, body []byte) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Key:       key,
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}
