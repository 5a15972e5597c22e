// Package events publishes newly recorded drops to Kafka as a
// best-effort side channel.
package events

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// DropEvent is emitted once per newly recorded item drop
type DropEvent struct {
	Username   string    `json:"username"`
	ItemName   string    `json:"item_name"`
	OccurredAt time.Time `json:"occurred_at"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Publisher defines the interface for emitting drop events
type Publisher interface {
	// Publish emits one drop event, keyed by username
	Publish(ctx context.Context, event DropEvent) error

	// Close gracefully shuts down the publisher
	Close() error
}

// KafkaPublisher implements Publisher using kafka-go
type KafkaPublisher struct {
	writer *kafka.Writer
}

// Config holds Kafka publisher configuration
type Config struct {
	Brokers []string
	Topic   string
}

// NewKafkaPublisher creates a new KafkaPublisher instance
func NewKafkaPublisher(cfg Config) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Async:    true, // Non-blocking; delivery is best effort
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event DropEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Username),
		Value: value,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop is the publisher used when Kafka is not configured
type Nop struct{}

func (Nop) Publish(ctx context.Context, event DropEvent) error { return nil }
func (Nop) Close() error                                       { return nil }
