// Package backend maps backend kinds to the rules for talking to them: how a
// reply is pulled out of a chat response, whether the backend streams, and
// how the server reaches the real upstream model.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/llm"
)

// Supported backend kinds.
const (
	Ollama = "ollama"
	Groq   = "groq"
)

// API routes serving the model catalogue, relative to the API prefix.
const (
	ModelsEndpoint     = "/models"
	GroqLimitsEndpoint = "/groq/model-limits"
)

// UnsupportedReply is the reply text produced for unknown backend kinds.
const UnsupportedReply = "Unsupported backend. Only Ollama and Groq are supported at the moment."

// ErrNoUpstream is returned by Chat when a backend was built without a
// transport, as the client side registry is.
var ErrNoUpstream = errors.New("backend has no upstream transport")

// Backend is one model provider.
type Backend interface {
	// Name returns the backend kind, e.g. "ollama".
	Name() string

	// Streaming reports whether node chats against this backend are streamed.
	Streaming() bool

	// ExtractReply pulls the assistant text out of a decoded chat response.
	// A response without the expected fields yields a *FormatError.
	ExtractReply(body any) (string, error)

	// ReplyBody builds the non-streaming chat response the server returns
	// for reply. ExtractReply applied to its JSON form yields reply.
	ReplyBody(model, reply string) any

	// Chat sends req to the upstream model and returns the full reply.
	Chat(ctx context.Context, req ChatRequest) (string, error)

	// ChatStream sends req upstream and calls onChunk for each piece of the
	// reply as it arrives. It returns the full reply.
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(string) error) (string, error)

	// Models lists the model names a node may pick for this backend. It
	// never returns an empty list without an error.
	Models(ctx context.Context) ([]string, error)
}

// NoLimit marks a rate limit the provider does not enforce.
const NoLimit = -1

// ModelLimits are a hosted model's published rate limits.
type ModelLimits struct {
	RequestsPerMinute int `json:"req_per_min"`
	RequestsPerDay    int `json:"req_per_day"`
	TokensPerMinute   int `json:"tokens_per_min"`
	TokensPerDay      int `json:"tokens_per_day"`
}

// MarshalJSON writes NoLimit fields as the string "No limit".
func (l ModelLimits) MarshalJSON() ([]byte, error) {
	field := func(v int) any {
		if v == NoLimit {
			return "No limit"
		}
		return v
	}
	return json.Marshal(map[string]any{
		"req_per_min":    field(l.RequestsPerMinute),
		"req_per_day":    field(l.RequestsPerDay),
		"tokens_per_min": field(l.TokensPerMinute),
		"tokens_per_day": field(l.TokensPerDay),
	})
}

// UnmarshalJSON accepts the "No limit" string form written by MarshalJSON.
func (l *ModelLimits) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	field := func(key string) int {
		if v, ok := raw[key].(float64); ok {
			return int(v)
		}
		return NoLimit
	}
	*l = ModelLimits{
		RequestsPerMinute: field("req_per_min"),
		RequestsPerDay:    field("req_per_day"),
		TokensPerMinute:   field("tokens_per_min"),
		TokensPerDay:      field("tokens_per_day"),
	}
	return nil
}

// Limiter is implemented by backends that publish per-model rate limits.
type Limiter interface {
	ModelLimits() map[string]ModelLimits
}

// ChatRequest is a provider-neutral upstream chat call.
type ChatRequest struct {
	Model       string
	Messages    []llm.Message
	Temperature float64
	MaxTokens   int
}

// Transport issues upstream calls. *dispatch.Dispatcher satisfies it.
type Transport interface {
	Submit(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
	Open(ctx context.Context, req dispatch.Request) (*http.Response, error)
}

// FormatError is a chat response missing the fields a backend expects.
// Its text is shown to the user verbatim.
type FormatError struct {
	Backend string
	Text    string
}

func (e *FormatError) Error() string {
	return e.Text
}

// ErrorField reads an "error" member that may be a plain string or an
// object with a "message" string.
func ErrorField(body map[string]any) string {
	switch v := body["error"].(type) {
	case string:
		return v
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	return ""
}
