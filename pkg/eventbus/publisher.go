package eventbus

import "context"

// Publisher publishes lifecycle events. Publishing is fire-and-forget from
// the core's point of view: callers log returned errors and move on.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
