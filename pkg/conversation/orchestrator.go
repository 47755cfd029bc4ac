// Package conversation runs node conversations: it tracks the active node,
// builds chat payloads from a node's history and its parents' latest
// replies, sends them, and records the normalized reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/eventbus"
	"github.com/papercomputeco/canvas/pkg/eventbus/nop"
	"github.com/papercomputeco/canvas/pkg/graph"
	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/logger"
	"github.com/papercomputeco/canvas/pkg/stream"
)

// DefaultChatEndpoint is the node chat route.
const DefaultChatEndpoint = "/node/chat"

// Dispatcher issues single request/response calls.
type Dispatcher interface {
	Submit(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// Streamer consumes streamed chat replies.
type Streamer interface {
	Consume(ctx context.Context, target string, payload any, h stream.Handlers) (string, error)
}

// Config configures an Orchestrator.
type Config struct {
	Graph      graph.Lookup
	Store      *Store
	Dispatcher Dispatcher
	Streamer   Streamer
	Registry   *backend.Registry
	Publisher  eventbus.Publisher
	Logger     *zap.Logger

	// ChatEndpoint defaults to DefaultChatEndpoint.
	ChatEndpoint string

	// OnChunk, when set, receives each streamed fragment as it arrives.
	OnChunk func(nodeID, chunk string)
}

// Orchestrator owns the conversation store and serializes sends.
//
// A single in-flight flag covers the whole orchestrator: while a send for one
// node is running, sends for every other node are refused.
type Orchestrator struct {
	graph      graph.Lookup
	store      *Store
	dispatcher Dispatcher
	streamer   Streamer
	registry   *backend.Registry
	publisher  eventbus.Publisher
	logger     *zap.Logger
	endpoint   string
	onChunk    func(nodeID, chunk string)

	mu     sync.RWMutex
	active string

	sending atomic.Bool
}

// New creates an Orchestrator.
func New(c Config) *Orchestrator {
	if c.Store == nil {
		c.Store = NewStore()
	}
	if c.Registry == nil {
		c.Registry = backend.NewRegistry()
	}
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
	if c.ChatEndpoint == "" {
		c.ChatEndpoint = DefaultChatEndpoint
	}

	return &Orchestrator{
		graph:      c.Graph,
		store:      c.Store,
		dispatcher: c.Dispatcher,
		streamer:   c.Streamer,
		registry:   c.Registry,
		publisher:  c.Publisher,
		logger:     logger.OrNop(c.Logger),
		endpoint:   c.ChatEndpoint,
		onChunk:    c.OnChunk,
	}
}

// Activate selects nodeID as the target of subsequent sends, creating its
// conversation on first selection.
func (o *Orchestrator) Activate(ctx context.Context, nodeID string) error {
	node, ok := o.graph.NodeData(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}

	o.store.Ensure(nodeID)

	o.mu.Lock()
	o.active = nodeID
	o.mu.Unlock()

	o.emit(ctx, eventbus.ConversationActivated, nodeID, node)
	return nil
}

// Deactivate clears the active node.
func (o *Orchestrator) Deactivate(ctx context.Context) {
	o.mu.Lock()
	prev := o.active
	o.active = ""
	o.mu.Unlock()

	if prev != "" {
		o.emit(ctx, eventbus.ConversationDeactivated, prev, nil)
	}
}

// ActiveNode returns the active node ID, or "" when none is selected.
func (o *Orchestrator) ActiveNode() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active
}

// Sending reports whether a send is in flight.
func (o *Orchestrator) Sending() bool {
	return o.sending.Load()
}

// SendMessage sends text to the active node and returns the message that
// concluded the exchange: the assistant reply, or a system message
// describing the failure. cb, if non-nil, receives the same message.
//
// SendMessage returns nil without side effects when no node is active, a
// send is already in flight, or text is blank.
func (o *Orchestrator) SendMessage(ctx context.Context, text string, cb func(llm.Message)) *llm.Message {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	nodeID := o.ActiveNode()
	if nodeID == "" {
		return nil
	}
	if !o.sending.CompareAndSwap(false, true) {
		o.logger.Debug("send refused, another send is in flight", zap.String("node_id", nodeID))
		return nil
	}
	defer o.sending.Store(false)

	prior := o.store.History(nodeID)
	user := llm.NewTextMessage(llm.RoleUser, text)
	o.store.Append(nodeID, user)
	o.emit(ctx, eventbus.ConversationMessageSent, nodeID, user)

	node, ok := o.graph.NodeData(nodeID)
	if !ok {
		return o.fail(ctx, nodeID, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID), cb)
	}

	payload := llm.ChatPayload{
		NodeID:              nodeID,
		Backend:             node.Backend,
		Model:               node.Model,
		SystemMessage:       node.SystemMessage,
		ParentContexts:      o.ParentContexts(nodeID),
		ConversationHistory: prior,
		UserInput:           text,
		Temperature:         node.Temperature,
		MaxTokens:           node.MaxTokens,
		Stream:              o.registry.Streaming(node.Backend),
	}
	payload.Normalize()

	var (
		reply string
		err   error
	)
	if payload.Stream {
		reply, err = o.sendStreaming(ctx, nodeID, &payload)
	} else {
		reply, err = o.sendBatch(ctx, node.Backend, &payload)
	}
	if err != nil {
		return o.fail(ctx, nodeID, err, cb)
	}

	msg := llm.NewTextMessage(llm.RoleAssistant, reply)
	o.store.Append(nodeID, msg)
	o.emit(ctx, eventbus.ConversationMessageReceived, nodeID, msg)
	if cb != nil {
		cb(msg)
	}
	return &msg
}

func (o *Orchestrator) sendStreaming(ctx context.Context, nodeID string, payload *llm.ChatPayload) (string, error) {
	if o.streamer == nil {
		return "", errors.New("no stream reader configured")
	}

	return o.streamer.Consume(ctx, o.endpoint, payload, stream.Handlers{
		OnChunk: func(chunk string) error {
			if o.onChunk != nil {
				o.onChunk(nodeID, chunk)
			}
			return nil
		},
	})
}

func (o *Orchestrator) sendBatch(ctx context.Context, kind string, payload *llm.ChatPayload) (string, error) {
	if o.dispatcher == nil {
		return "", errors.New("no dispatcher configured")
	}

	result, err := o.dispatcher.Submit(ctx, dispatch.Request{
		Method:  http.MethodPost,
		Target:  o.endpoint,
		Payload: payload,
	})
	if err != nil {
		return "", err
	}
	return o.registry.ExtractReply(kind, result.Body)
}

// ParentContexts snapshots the latest assistant reply of each of nodeID's
// parents. Parents that cannot be resolved become llm.UnknownParent.
func (o *Orchestrator) ParentContexts(nodeID string) []llm.ParentContext {
	parents := o.graph.ParentNodes(nodeID)
	contexts := make([]llm.ParentContext, 0, len(parents))
	for i, p := range parents {
		if p == nil || p.ID == "" {
			o.logger.Warn("unresolvable parent node",
				zap.String("node_id", nodeID),
				zap.Int("parent_index", i),
			)
			contexts = append(contexts, llm.UnknownParent)
			continue
		}
		contexts = append(contexts, llm.ParentContext{
			NodeID:       p.ID,
			LastResponse: o.store.LastAssistant(p.ID),
		})
	}
	return contexts
}

// fail records err as the single system message concluding a send.
func (o *Orchestrator) fail(ctx context.Context, nodeID string, err error, cb func(llm.Message)) *llm.Message {
	msg := failureMessage(err)
	o.logger.Warn("send failed", zap.String("node_id", nodeID), zap.Error(err))

	o.store.Append(nodeID, msg)
	o.emit(ctx, eventbus.ConversationMessageSystem, nodeID, msg)
	if cb != nil {
		cb(msg)
	}
	return &msg
}

// failureMessage renders err on one line. Backend format failures carry
// their own user-facing text and are shown verbatim.
func failureMessage(err error) llm.Message {
	var fe *backend.FormatError
	if errors.As(err, &fe) {
		return llm.NewTextMessage(llm.RoleSystem, llm.OneLine(fe.Text))
	}

	var de *dispatch.Error
	if errors.As(err, &de) {
		return llm.NewSystemError(de.Reason())
	}
	return llm.NewSystemError(err.Error())
}

// History returns a snapshot of nodeID's conversation.
func (o *Orchestrator) History(nodeID string) []llm.Message {
	return o.store.History(nodeID)
}

// Clear truncates nodeID's conversation.
func (o *Orchestrator) Clear(ctx context.Context, nodeID string) {
	o.store.Clear(nodeID)
	o.emit(ctx, eventbus.ConversationCleared, nodeID, nil)
}

// HandleGraphCleared drops every conversation and the active selection.
func (o *Orchestrator) HandleGraphCleared(ctx context.Context) {
	o.Deactivate(ctx)
	o.store.ClearAll()
	o.emit(ctx, eventbus.ConversationCleared, "", "all")
}

// Export returns a snapshot of every conversation.
func (o *Orchestrator) Export() map[string][]llm.Message {
	return o.store.Snapshot()
}

// Import replaces every conversation with data. Messages with unknown roles
// are rejected and the store is left untouched.
func (o *Orchestrator) Import(ctx context.Context, data map[string][]llm.Message) error {
	for nodeID, msgs := range data {
		for i, m := range msgs {
			if !llm.ValidRole(m.Role) {
				return fmt.Errorf("conversation %s message %d: invalid role %q", nodeID, i, m.Role)
			}
		}
	}

	o.store.Restore(data)
	o.emit(ctx, eventbus.ConversationImported, "", len(data))
	return nil
}

// Save persists nodeID's conversation through the API.
func (o *Orchestrator) Save(ctx context.Context, nodeID string) error {
	if o.dispatcher == nil {
		return errors.New("no dispatcher configured")
	}

	_, err := o.dispatcher.Submit(ctx, dispatch.Request{
		Method:  http.MethodPost,
		Target:  conversationPath(nodeID),
		Payload: llm.Conversation{NodeID: nodeID, Messages: o.store.History(nodeID)},
	})
	if err != nil {
		return fmt.Errorf("saving conversation %s: %w", nodeID, err)
	}
	return nil
}

// Load replaces nodeID's conversation with the persisted copy.
func (o *Orchestrator) Load(ctx context.Context, nodeID string) error {
	if o.dispatcher == nil {
		return errors.New("no dispatcher configured")
	}

	result, err := o.dispatcher.Submit(ctx, dispatch.Request{
		Method: http.MethodGet,
		Target: conversationPath(nodeID),
	})
	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", nodeID, err)
	}

	var envelope struct {
		Status  string           `json:"status"`
		Data    llm.Conversation `json:"data"`
		Message string           `json:"message"`
	}
	if err := result.Decode(&envelope); err != nil {
		return fmt.Errorf("decoding conversation %s: %w", nodeID, err)
	}
	if envelope.Status != llm.StatusSuccess {
		return fmt.Errorf("loading conversation %s: %s", nodeID, envelope.Message)
	}

	o.store.Replace(nodeID, envelope.Data.Messages)
	o.emit(ctx, eventbus.ConversationLoaded, nodeID, len(envelope.Data.Messages))
	return nil
}

func conversationPath(nodeID string) string {
	return "/conversations/" + url.PathEscape(nodeID)
}

func (o *Orchestrator) emit(ctx context.Context, name, nodeID string, payload any) {
	if err := o.publisher.Publish(ctx, eventbus.NewEvent(name).ForNode(nodeID).With(payload)); err != nil {
		o.logger.Debug("publishing conversation event", zap.String("event", name), zap.Error(err))
	}
}
