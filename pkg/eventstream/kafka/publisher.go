// Package kafka implements pkg/eventstream's Publisher on a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/keyframeco/prism/pkg/eventstream"
)

// Config holds Kafka connection configuration for the publisher.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic is the topic record events are written to.
	Topic string
}

// Publisher writes record events to a Kafka topic. Messages are keyed by
// record id, so events for the same record stay ordered within a partition.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}

	return &Publisher{
		writer: writer,
		logger: logger,
	}, nil
}

// PublishRecord writes the event to the topic as a JSON message.
func (p *Publisher) PublishRecord(ctx context.Context, event *eventstream.RecordEvent) error {
	if event == nil {
		return eventstream.ErrNilRecordEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling record event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Record.ID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("writing record event: %w", err)
	}

	p.logger.Debug("published record event",
		zap.String("event_type", event.EventType),
		zap.String("record_id", event.Record.ID),
	)

	return nil
}

// Close flushes pending messages and releases the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Ensure Publisher implements eventstream.Publisher
var _ eventstream.Publisher = (*Publisher)(nil)
