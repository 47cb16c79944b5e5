// Package kafka appends audit events to a Kafka topic, used when the
// trail must outlive the process and feed downstream tooling.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "meridian/pkg/platform/audit"
)

// DefaultTopic is the topic audit events land on unless overridden.
const DefaultTopic = "meridian.audit"

// Store publishes audit events to Kafka. Records are keyed by action so
// per-action ordering survives partitioning.
type Store struct {
	client *kgo.Client
	topic  string
}

// New connects a producer to the given brokers.
func New(brokers []string, topic string) (*Store, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

// Append publishes one event. The write is synchronous; the audit
// worker already keeps this off the query path.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Action),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// ListRecent is not supported on the Kafka sink; reads happen through
// downstream consumers.
func (s *Store) ListRecent(context.Context, int) ([]audit.Event, error) {
	return nil, fmt.Errorf("kafka audit store is write-only")
}

// Close flushes and releases the producer.
func (s *Store) Close() {
	s.client.Close()
}
