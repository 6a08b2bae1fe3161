// Package kafka forwards audit events to a Kafka topic for downstream
// retention and alerting.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	audit "lifeline/pkg/platform/audit"

	"github.com/twmb/franz-go/pkg/kgo"
)

const DefaultTopic = "lifeline.audit"

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Sink struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{producer: producer, topic: topic}
}

// NewClient builds a franz-go client for the given seed brokers.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// Publish writes the event keyed by subject so per-candidate events stay ordered.
func (s *Sink) Publish(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(event.Category)},
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}
