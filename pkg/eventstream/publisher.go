package eventstream

import "context"

// Publisher publishes index events to an event stream backend.
type Publisher interface {
	PublishImageIndexed(ctx context.Context, event *ImageIndexedEvent) error
	PublishRunCompleted(ctx context.Context, event *RunCompletedEvent) error
	Close() error
}
