package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Event types emitted on the user-events topic.
const (
	TypeUserRegistered = "user_registered"
	TypeUserLoggedIn   = "user_logged_in"
	TypeUserLoggedOut  = "user_logged_out"
)

// Producer publishes account lifecycle events to Kafka. A nil Producer is a
// no-op, so event publishing stays optional at runtime.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: w}
}

// Publish sends one JSON event keyed by the principal id. Keying by
// principal keeps per-user events ordered within a partition.
func (p *Producer) Publish(ctx context.Context, eventType, principalID string) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"type":   eventType,
		"userId": principalID,
	})
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(principalID),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write message: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
