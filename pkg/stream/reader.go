// Package stream consumes chunked "data: " event streams from the canvas API.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/eventbus"
	"github.com/papercomputeco/canvas/pkg/eventbus/nop"
	"github.com/papercomputeco/canvas/pkg/logger"
	"github.com/papercomputeco/canvas/pkg/sse"
)

const readBufferSize = 4096

// Opener issues a streaming request. *dispatch.Dispatcher satisfies it.
type Opener interface {
	Open(ctx context.Context, req dispatch.Request) (*http.Response, error)
}

// Handlers receive the outcome of one Consume call. Any of them may be nil.
type Handlers struct {
	// OnChunk receives the text after each "data: " prefix, in order.
	// Errors and panics raised here are logged and do not stop the stream.
	OnChunk func(chunk string) error

	// OnComplete receives every chunk concatenated once the body ends.
	// It is never called after a failure.
	OnComplete func(full string)

	// OnError receives the failure that ended the stream.
	OnError func(err error)
}

// Reader consumes event streams.
type Reader struct {
	opener    Opener
	publisher eventbus.Publisher
	logger    *zap.Logger
}

// NewReader creates a Reader. A nil publisher disables lifecycle events.
func NewReader(opener Opener, publisher eventbus.Publisher, log *zap.Logger) *Reader {
	if publisher == nil {
		publisher = nop.NewPublisher()
	}
	return &Reader{
		opener:    opener,
		publisher: publisher,
		logger:    logger.OrNop(log),
	}
}

// Consume POSTs payload to target and reads the event stream to the end.
// It returns the full content on success. On failure the partial content
// is discarded and the returned error is the one passed to OnError.
func (r *Reader) Consume(ctx context.Context, target string, payload any, h Handlers) (string, error) {
	r.emit(ctx, eventbus.StreamStart, target, nil)

	full, err := r.consume(ctx, target, payload, h)
	if err != nil {
		de := dispatch.Enrich(err, target, http.MethodPost)
		r.emit(ctx, eventbus.StreamError, target, de.Error())
		if h.OnError != nil {
			h.OnError(de)
		}
		return "", de
	}

	r.emit(ctx, eventbus.StreamComplete, target, len(full))
	if h.OnComplete != nil {
		h.OnComplete(full)
	}
	return full, nil
}

func (r *Reader) consume(ctx context.Context, target string, payload any, h Handlers) (string, error) {
	resp, err := r.opener.Open(ctx, dispatch.Request{
		Method:  http.MethodPost,
		Target:  target,
		Payload: payload,
		Stream:  true,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	dec := sse.NewDecoder()
	dec.OnSkip = func(err error) {
		r.logger.Warn("skipping undecodable stream fragment", zap.String("target", target), zap.Error(err))
	}
	var full strings.Builder
	buf := make([]byte, readBufferSize)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			r.dispatchLines(dec.Feed(buf[:n]), &full, h.OnChunk)
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return "", &dispatch.Error{Kind: dispatch.KindNetwork, Err: fmt.Errorf("reading stream: %w", readErr)}
		}
	}

	r.dispatchLines(dec.Flush(), &full, h.OnChunk)

	return full.String(), nil
}

func (r *Reader) dispatchLines(lines []string, full *strings.Builder, onChunk func(string) error) {
	for _, line := range lines {
		chunk, ok := sse.Data(line)
		if !ok {
			if line != "" {
				r.logger.Debug("ignoring non-data stream line", zap.String("line", line))
			}
			continue
		}

		full.WriteString(chunk)
		r.deliver(onChunk, chunk)
	}
}

// deliver invokes onChunk, containing any error or panic it raises.
func (r *Reader) deliver(onChunk func(string) error, chunk string) {
	if onChunk == nil {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("chunk handler panicked", zap.Any("panic", p))
		}
	}()

	if err := onChunk(chunk); err != nil {
		r.logger.Warn("chunk handler failed", zap.Error(err))
	}
}

func (r *Reader) emit(ctx context.Context, name, target string, payload any) {
	event := eventbus.NewEvent(name).ForRequest(target, http.MethodPost).With(payload)
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Debug("publishing stream event", zap.String("event", name), zap.Error(err))
	}
}
