// Package memory provides an in-process eventbus publisher that delivers
// events synchronously to registered subscribers.
package memory

import (
	"context"
	"sync"

	"github.com/papercomputeco/canvas/pkg/eventbus"
)

// Handler receives published events.
type Handler func(*eventbus.Event)

// Publisher fans events out to subscribers in publish order.
type Publisher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler // keyed by event name, "" matches all

	// recorded keeps every published event when recording is enabled
	recording bool
	recorded  []*eventbus.Event
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithRecording keeps a copy of every published event, retrievable with Events.
func WithRecording() Option {
	return func(p *Publisher) {
		p.recording = true
	}
}

// NewPublisher creates an in-memory publisher.
func NewPublisher(opts ...Option) *Publisher {
	p := &Publisher{
		handlers: make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe registers h for events with the given name. An empty name
// subscribes to every event.
func (p *Publisher) Subscribe(name string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[name] = append(p.handlers[name], h)
}

// Publish delivers event to matching subscribers on the caller's goroutine.
func (p *Publisher) Publish(_ context.Context, event *eventbus.Event) error {
	if event == nil {
		return eventbus.ErrNilEvent
	}

	p.mu.Lock()
	if p.recording {
		p.recorded = append(p.recorded, event)
	}
	handlers := make([]Handler, 0, len(p.handlers[event.Name])+len(p.handlers[""]))
	handlers = append(handlers, p.handlers[event.Name]...)
	handlers = append(handlers, p.handlers[""]...)
	p.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []*eventbus.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*eventbus.Event, len(p.recorded))
	copy(out, p.recorded)
	return out
}

// Names returns the names of the recorded events in publish order.
func (p *Publisher) Names() []string {
	events := p.Events()
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

// Reset drops recorded events.
func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorded = nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
