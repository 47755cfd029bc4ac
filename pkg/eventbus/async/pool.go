// Package async decouples event publishing from the request hot path.
//
// A Pool wraps any eventbus.Publisher (usually the Kafka publisher) and hands
// events to a fixed set of background workers so that a slow or unavailable
// sink never stalls dispatching or streaming.
package async

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/eventbus"
	"github.com/papercomputeco/canvas/pkg/logger"
)

var (
	defaultNumWorkers     uint = 2
	defaultQueueSize      uint = 256
	defaultPublishTimeout      = 5 * time.Second
)

// ErrQueueFull is returned by Publish when the event was dropped.
var ErrQueueFull = errors.New("event queue full")

// Config is the configuration options for the pool.
type Config struct {
	// Sink receives events from the workers.
	Sink eventbus.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered event channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds each delivery to the sink.
	PublishTimeout time.Duration

	Logger *zap.Logger
}

// Pool publishes events asynchronously via a worker pool.
type Pool struct {
	config    *Config
	queue     chan *eventbus.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Sink == nil {
		return nil, errors.New("sink publisher is required")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		config: c,
		queue:  make(chan *eventbus.Event, c.QueueSize),
		logger: logger.OrNop(c.Logger),
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Publish enqueues the event without blocking. A full queue drops the event
// and returns ErrQueueFull.
func (p *Pool) Publish(_ context.Context, event *eventbus.Event) error {
	if event == nil {
		return eventbus.ErrNilEvent
	}

	select {
	case p.queue <- event:
		return nil
	default:
		p.logger.Error("event not queued, queue full, event dropped",
			zap.String("event", event.Name),
			zap.String("node_id", event.NodeID),
		)
		return ErrQueueFull
	}
}

// Close stops the workers after draining queued events, then closes the sink.
// Publish must not be called after Close.
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()
		err = p.config.Sink.Close()
	})
	return err
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("event worker started", zap.Uint("worker_id", id))

	for event := range p.queue {
		p.deliver(event)
	}

	p.logger.Debug("event worker stopped", zap.Uint("worker_id", id))
}

func (p *Pool) deliver(event *eventbus.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	if err := p.config.Sink.Publish(ctx, event); err != nil {
		p.logger.Warn("event delivery failed",
			zap.String("event", event.Name),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}
