package eventstreamutils

import (
	"fmt"
	"log/slog"

	"github.com/totenbilder/imagesearch/pkg/eventstream"
	"github.com/totenbilder/imagesearch/pkg/eventstream/kafka"
	"github.com/totenbilder/imagesearch/pkg/eventstream/nop"
)

// NewPublisherOpts selects and configures an event publisher.
type NewPublisherOpts struct {
	// ProviderType is "none" (or empty) or "kafka".
	ProviderType string
	Brokers      []string
	Topic        string
	Logger       *slog.Logger
}

// NewPublisher creates the publisher for o.ProviderType.
func NewPublisher(o NewPublisherOpts) (eventstream.Publisher, error) {
	switch o.ProviderType {
	case "", "none":
		return nop.NewPublisher(), nil
	case "kafka":
		return kafka.NewPublisher(kafka.Config{Brokers: o.Brokers, Topic: o.Topic}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported event stream provider: %q", o.ProviderType)
	}
}
