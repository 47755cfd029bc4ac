package nop

import (
	"context"

	"github.com/papercomputeco/canvas/pkg/eventbus"
)

// Publisher is a no-op eventbus publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventbus publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish validates input and otherwise does nothing.
func (p *Publisher) Publish(_ context.Context, event *eventbus.Event) error {
	if event == nil {
		return eventbus.ErrNilEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
