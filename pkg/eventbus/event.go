// Package eventbus carries lifecycle notifications from the canvas core to
// whoever renders them: the CLI, tests, or an external event stream.
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Conversation lifecycle events.
const (
	ConversationActivated       = "conversation:activated"
	ConversationDeactivated     = "conversation:deactivated"
	ConversationMessageSent     = "conversation:message-sent"
	ConversationMessageReceived = "conversation:message-received"
	ConversationMessageSystem   = "conversation:message-system"
	ConversationCleared         = "conversation:cleared"
	ConversationLoaded          = "conversation:loaded"
	ConversationImported        = "conversation:imported"
)

// Request lifecycle events.
const (
	RequestStart   = "request:start"
	RequestSuccess = "request:success"
	RequestError   = "request:error"
	RequestEnd     = "request:end"
)

// Stream lifecycle events.
const (
	StreamStart    = "stream:start"
	StreamComplete = "stream:complete"
	StreamError    = "stream:error"
)

// Graph events.
const (
	GraphCleared  = "graph:cleared"
	GraphReloaded = "graph:reloaded"
)

// Workflow execution events, published by the server.
const (
	ExecutionNodeComplete = "execution:node-complete"
	ExecutionComplete     = "execution:complete"
)

// Event is a transport-neutral notification.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	EmittedAt time.Time `json:"emitted_at"`
	NodeID    string    `json:"node_id,omitempty"`
	Target    string    `json:"target,omitempty"`
	Method    string    `json:"method,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(name string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Name:      name,
		EmittedAt: time.Now().UTC(),
	}
}

// ForNode sets the node identifier.
func (e *Event) ForNode(nodeID string) *Event {
	e.NodeID = nodeID
	return e
}

// ForRequest sets the request target and method.
func (e *Event) ForRequest(target, method string) *Event {
	e.Target = target
	e.Method = method
	return e
}

// With sets the payload.
func (e *Event) With(payload any) *Event {
	e.Payload = payload
	return e
}
