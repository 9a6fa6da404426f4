package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/multiindex/pkg/config"
)

// Producer publishes JSON-encoded events to one topic. Events with the same
// key land on the same partition, so they are consumed in publish order.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			RequiredAcks: kafka.RequireAll,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes one event synchronously and returns once every in-sync
// replica has it.
func (p *Producer) Publish(ctx context.Context, key string, value any) error {
	data, err := Encode(key, value)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, data); err != nil {
		p.logger.Error("failed to publish message", "key", key, "error", err)
		return fmt.Errorf("publishing %s to kafka: %w", key, err)
	}
	p.logger.Debug("message published", "key", key, "value_size", len(data.Value))
	return nil
}

// Encode builds the message Publish would write for key and value.
func Encode(key string, value any) (kafka.Message, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling event %s: %w", key, err)
	}
	return kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
	}, nil
}

// Close flushes pending writes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
