package workqueue

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer used by KafkaQueue.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue publishes envelopes to one topic, keyed by service name so
// items for the same worker keep their relative order.
type KafkaQueue struct {
	writer MessageWriter
}

func NewKafkaQueue(writer MessageWriter) *KafkaQueue {
	return &KafkaQueue{writer: writer}
}

// NewKafkaWriter returns a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.writer.WriteMessages(ctx, kafka.Message{Key: []byte(env.Service), Value: b})
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}
