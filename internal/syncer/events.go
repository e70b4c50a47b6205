package syncer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher emits sync-result events to a kafka topic, keyed by entity
// type so downstream consumers see per-entity ordering.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
}
