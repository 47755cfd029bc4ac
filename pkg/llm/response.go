package llm

// ErrorResponse is the JSON error body returned by the canvas server.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Envelope is the status envelope used by the execution and persistence
// routes: {"status": "success", "data": ...} or {"status": "error", "message": ...}.
type Envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Success wraps data in a success envelope.
func Success(data any) Envelope {
	return Envelope{Status: StatusSuccess, Data: data}
}

// Failure wraps a message in an error envelope.
func Failure(message string) Envelope {
	return Envelope{Status: StatusError, Message: message}
}

// Conversation is the persisted form of one node's message history.
type Conversation struct {
	NodeID   string    `json:"node_id"`
	Messages []Message `json:"messages"`
}
