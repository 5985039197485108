// Package kafka publishes index events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/totenbilder/imagesearch/pkg/eventstream"
)

const headerEventType = "event_type"

// Writer is the subset of *kafkago.Writer used by the publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// WriteTimeout bounds a single publish. Zero uses a 10s default.
	WriteTimeout time.Duration
}

// Publisher writes JSON encoded events keyed by object key (image events) or
// run id (run events) so events for one image land on one partition.
type Publisher struct {
	writer  Writer
	timeout time.Duration
	logger  *slog.Logger
}

var _ eventstream.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher backed by a kafka-go writer.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(w, cfg, logger), nil
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w Writer, cfg Config, logger *slog.Logger) *Publisher {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{writer: w, timeout: timeout, logger: logger}
}

// PublishImageIndexed writes one image event.
func (p *Publisher) PublishImageIndexed(ctx context.Context, event *eventstream.ImageIndexedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return p.write(ctx, event.Key, event.EventType, event)
}

// PublishRunCompleted writes one run summary event.
func (p *Publisher) PublishRunCompleted(ctx context.Context, event *eventstream.RunCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return p.write(ctx, event.RunID, event.EventType, event)
}

func (p *Publisher) write(ctx context.Context, key, eventType string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafkago.Header{
			{Key: headerEventType, Value: []byte(eventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s event: %w", eventType, err)
	}

	p.logger.Debug("event published", "type", eventType, "key", key)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
