package nop

import (
	"context"

	"github.com/keyframeco/prism/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishRecord validates input and otherwise does nothing.
func (p *Publisher) PublishRecord(_ context.Context, event *eventstream.RecordEvent) error {
	if event == nil {
		return eventstream.ErrNilRecordEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
