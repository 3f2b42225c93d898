package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes meal events to a single topic keyed by meal id, so
// all events for one meal land on one partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a synchronous writer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish writes ev and waits for the brokers to acknowledge it.
func (p *KafkaPublisher) Publish(ctx context.Context, ev MealEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(ev.MealID),
		Value:   payload,
		Headers: []kafka.Header{{Key: "type", Value: []byte(ev.Type)}},
	})
}

// Close flushes pending writes and releases the writer.
func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, MealEvent) error { return nil }
