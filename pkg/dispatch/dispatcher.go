// Package dispatch issues outbound calls to the canvas API under a global
// concurrency cap. Requests beyond the cap wait in arrival order and are
// admitted one at a time as earlier requests complete.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/papercomputeco/canvas/pkg/eventbus"
	"github.com/papercomputeco/canvas/pkg/eventbus/nop"
	"github.com/papercomputeco/canvas/pkg/logger"
)

// DefaultMaxConcurrent is the default cap on in-flight requests.
const DefaultMaxConcurrent = 5

// Config is the dispatcher configuration.
type Config struct {
	// BaseURL is the API origin, e.g. "http://localhost:5000".
	// A malformed value falls back to DefaultOrigin.
	BaseURL string

	// Prefix is applied to relative endpoints. Defaults to DefaultPrefix
	// unless NoPrefix is set.
	Prefix   string
	NoPrefix bool

	// MaxConcurrent caps in-flight requests. Defaults to DefaultMaxConcurrent.
	MaxConcurrent int

	HTTPClient *http.Client
	Publisher  eventbus.Publisher
	Metrics    *Metrics
	Logger     *zap.Logger
}

// Request is one outbound call.
type Request struct {
	// Method defaults to POST when Payload is set and GET otherwise.
	Method string

	// Target is an endpoint path or absolute URL.
	Target string

	// Payload is JSON encoded as the request body when non-nil.
	Payload any

	// Stream asks the server for an event stream body.
	Stream bool

	Header http.Header
}

// Result is a successful response.
type Result struct {
	StatusCode int
	Header     http.Header

	// Body is the decoded JSON value, the raw text for non-JSON bodies, or
	// nil when the response carried no content type.
	Body any

	// Raw is the undecoded body.
	Raw []byte
}

// Decode unmarshals the raw JSON body into v.
func (r *Result) Decode(v any) error {
	if len(r.Raw) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Raw, v)
}

// Dispatcher issues requests with bounded concurrency.
type Dispatcher struct {
	base      string
	prefix    string
	max       int
	sem       *semaphore.Weighted
	inFlight  atomic.Int64
	queued    atomic.Int64
	client    *http.Client
	publisher eventbus.Publisher
	metrics   *Metrics
	logger    *zap.Logger
}

// New creates a Dispatcher. It never fails: a malformed base address is
// replaced with DefaultOrigin and a warning is logged.
func New(c Config) *Dispatcher {
	log := logger.OrNop(c.Logger)

	base, ok := parseBase(c.BaseURL)
	if !ok {
		log.Warn("malformed API base address, falling back to default origin",
			zap.String("base_url", c.BaseURL),
			zap.String("fallback", DefaultOrigin),
		)
		base, _ = parseBase(DefaultOrigin)
	}

	prefix := c.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if c.NoPrefix {
		prefix = ""
	}

	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}

	return &Dispatcher{
		base:      base.String(),
		prefix:    prefix,
		max:       c.MaxConcurrent,
		sem:       semaphore.NewWeighted(int64(c.MaxConcurrent)),
		client:    c.HTTPClient,
		publisher: c.Publisher,
		metrics:   c.Metrics,
		logger:    log,
	}
}

// AddPrefix normalizes endpoint against the dispatcher's prefix.
func (d *Dispatcher) AddPrefix(endpoint string) string {
	return AddPrefix(d.prefix, endpoint)
}

// URL resolves endpoint to the absolute address that will be called.
func (d *Dispatcher) URL(endpoint string) string {
	target := d.AddPrefix(endpoint)
	if isAbsolute(target) {
		return target
	}
	return d.base + target
}

// MaxConcurrent returns the concurrency cap.
func (d *Dispatcher) MaxConcurrent() int { return d.max }

// InFlight returns the number of admitted, uncompleted requests.
func (d *Dispatcher) InFlight() int { return int(d.inFlight.Load()) }

// Queued returns the number of requests waiting for admission.
func (d *Dispatcher) Queued() int { return int(d.queued.Load()) }

// Get is shorthand for a GET Submit.
func (d *Dispatcher) Get(ctx context.Context, target string) (*Result, error) {
	return d.Submit(ctx, Request{Method: http.MethodGet, Target: target})
}

// Post is shorthand for a POST Submit.
func (d *Dispatcher) Post(ctx context.Context, target string, payload any) (*Result, error) {
	return d.Submit(ctx, Request{Method: http.MethodPost, Target: target, Payload: payload})
}

// Submit issues req once a concurrency slot is free and returns the parsed
// response. Failures are always *Error values carrying target and method.
//
// Lifecycle events are published in the order start, success or error, end.
// End is published exactly once.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (*Result, error) {
	method := req.method()
	target := d.AddPrefix(req.Target)

	d.emit(ctx, eventbus.RequestStart, target, method, nil)
	defer d.emit(ctx, eventbus.RequestEnd, target, method, nil)

	release, err := d.admit(ctx)
	if err != nil {
		return nil, d.fail(ctx, err, target, method)
	}
	defer release()

	resp, err := d.do(ctx, method, target, req)
	if err != nil {
		return nil, d.fail(ctx, err, target, method)
	}
	defer resp.Body.Close()

	result, err := d.parse(resp)
	if err != nil {
		return nil, d.fail(ctx, err, target, method)
	}

	d.metrics.Requests.WithLabelValues(method, "success").Inc()
	d.emit(ctx, eventbus.RequestSuccess, target, method, result.StatusCode)
	return result, nil
}

// Open issues req with streaming semantics and returns the live response.
// A response without a body fails with KindStreamCapability. The concurrency slot stays held until the returned body is closed, at
// which point the end event is published. Non-success statuses are returned
// as *Error with the body already consumed.
func (d *Dispatcher) Open(ctx context.Context, req Request) (*http.Response, error) {
	req.Stream = true
	method := req.method()
	target := d.AddPrefix(req.Target)

	d.emit(ctx, eventbus.RequestStart, target, method, nil)

	release, err := d.admit(ctx)
	if err != nil {
		err = d.fail(ctx, err, target, method)
		d.emit(ctx, eventbus.RequestEnd, target, method, nil)
		return nil, err
	}

	done := func() {
		release()
		d.emit(ctx, eventbus.RequestEnd, target, method, nil)
	}

	resp, err := d.do(ctx, method, target, req)
	if err != nil {
		err = d.fail(ctx, err, target, method)
		done()
		return nil, err
	}

	if !success(resp.StatusCode) {
		_, err := d.parse(resp)
		resp.Body.Close()
		err = d.fail(ctx, err, target, method)
		done()
		return nil, err
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		err = d.fail(ctx, &Error{Kind: KindStreamCapability, StatusCode: resp.StatusCode}, target, method)
		done()
		return nil, err
	}

	d.metrics.Requests.WithLabelValues(method, "success").Inc()
	d.emit(ctx, eventbus.RequestSuccess, target, method, resp.StatusCode)

	resp.Body = &releasingBody{ReadCloser: resp.Body, release: done}
	return resp, nil
}

// admit blocks until a slot is free. Waiters are admitted in arrival order.
func (d *Dispatcher) admit(ctx context.Context) (func(), error) {
	d.metrics.Queued.Set(float64(d.queued.Add(1)))
	err := d.sem.Acquire(ctx, 1)
	d.metrics.Queued.Set(float64(d.queued.Add(-1)))
	if err != nil {
		return nil, err
	}

	d.metrics.InFlight.Set(float64(d.inFlight.Add(1)))

	var once sync.Once
	return func() {
		once.Do(func() {
			d.metrics.InFlight.Set(float64(d.inFlight.Add(-1)))
			d.sem.Release(1)
		})
	}, nil
}

func (d *Dispatcher) do(ctx context.Context, method, target string, req Request) (*http.Response, error) {
	var body io.Reader
	if req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, &Error{Kind: KindDecode, Err: fmt.Errorf("encoding payload: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	url := target
	if !isAbsolute(url) {
		url = d.base + target
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	d.logger.Debug("dispatching request",
		zap.String("method", method),
		zap.String("url", url),
		zap.Bool("stream", req.Stream),
	)

	return d.client.Do(httpReq)
}

// parse reads and classifies the response body.
func (d *Dispatcher) parse(resp *http.Response) (*Result, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}

	contentType := resp.Header.Get("Content-Type")
	isJSON := false
	if contentType != "" {
		mediaType, _, _ := mime.ParseMediaType(contentType)
		isJSON = mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
	}

	if !success(resp.StatusCode) {
		return nil, &Error{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       errorBody(raw, isJSON),
		}
	}

	result := &Result{StatusCode: resp.StatusCode, Header: resp.Header, Raw: raw}
	switch {
	case contentType == "":
		// No declared content: an empty success.
	case isJSON:
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &result.Body); err != nil {
				return nil, &Error{Kind: KindDecode, StatusCode: resp.StatusCode, Err: err}
			}
		}
	default:
		result.Body = string(raw)
	}
	return result, nil
}

func errorBody(raw []byte, isJSON bool) any {
	if isJSON {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return map[string]any{"message": string(raw)}
}

func (d *Dispatcher) fail(ctx context.Context, err error, target, method string) *Error {
	de := Enrich(err, target, method)
	d.metrics.Requests.WithLabelValues(method, string(de.Kind)).Inc()
	d.logger.Debug("request failed",
		zap.String("method", method),
		zap.String("target", target),
		zap.String("kind", string(de.Kind)),
		zap.Error(de),
	)
	d.emit(ctx, eventbus.RequestError, target, method, de.Error())
	return de
}

func (d *Dispatcher) emit(ctx context.Context, name, target, method string, payload any) {
	event := eventbus.NewEvent(name).ForRequest(target, method).With(payload)
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger.Debug("publishing request event", zap.String("event", name), zap.Error(err))
	}
}

func (r Request) method() string {
	if r.Method != "" {
		return r.Method
	}
	if r.Payload != nil {
		return http.MethodPost
	}
	return http.MethodGet
}

func success(code int) bool {
	return code >= 200 && code < 300
}

// releasingBody frees the dispatcher slot when the stream is closed.
type releasingBody struct {
	io.ReadCloser
	release func()
	once    sync.Once
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
