package nop

import (
	"context"

	"github.com/totenbilder/imagesearch/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

var _ eventstream.Publisher = (*Publisher)(nil)

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishImageIndexed validates input and otherwise does nothing.
func (p *Publisher) PublishImageIndexed(_ context.Context, event *eventstream.ImageIndexedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return nil
}

// PublishRunCompleted validates input and otherwise does nothing.
func (p *Publisher) PublishRunCompleted(_ context.Context, event *eventstream.RunCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
