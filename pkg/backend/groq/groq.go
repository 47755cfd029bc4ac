// Package groq is the batch-only Groq backend, spoken over Groq's
// OpenAI-compatible chat completions API.
package groq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/llm"
)

// NoResponseText is shown when a reply has neither choices nor an error.
const NoResponseText = "No response or unexpected format from Groq"

// DefaultBaseURL is Groq's OpenAI-compatible API root.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

const completionsPath = "/chat/completions"

// Backend implements backend.Backend for Groq.
type Backend struct {
	transport backend.Transport
	apiKey    string
}

// New creates a Groq backend. transport may be nil when only reply
// extraction is needed.
func New(transport backend.Transport, apiKey string) *Backend {
	return &Backend{transport: transport, apiKey: apiKey}
}

func (b *Backend) Name() string { return backend.Groq }

func (b *Backend) Streaming() bool { return false }

// ExtractReply expects a non-empty "choices" array whose first entry has
// message.content. Failing that, an "error" string or {"message"} object
// is the failure reason.
func (b *Backend) ExtractReply(body any) (string, error) {
	m, _ := body.(map[string]any)
	if choices, ok := m["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if msg, ok := choice["message"].(map[string]any); ok {
				if content, ok := msg["content"].(string); ok {
					return content, nil
				}
			}
		}
	}
	if reason := backend.ErrorField(m); reason != "" {
		return "", errors.New(reason)
	}
	return "", &backend.FormatError{Backend: backend.Groq, Text: NoResponseText}
}

// ReplyBody mirrors a chat completions response with a single choice.
func (b *Backend) ReplyBody(model, reply string) any {
	resp := groqResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
	}
	resp.Choices = append(resp.Choices, groqChoice{
		Message:      groqMessage{Role: llm.RoleAssistant, Content: reply},
		FinishReason: "stop",
	})
	return resp
}

// Chat sends one chat completion and returns the first choice's content.
func (b *Backend) Chat(ctx context.Context, req backend.ChatRequest) (string, error) {
	if b.transport == nil {
		return "", backend.ErrNoUpstream
	}
	if b.apiKey == "" {
		return "", errors.New("groq API key is not configured")
	}

	result, err := b.transport.Submit(ctx, dispatch.Request{
		Method:  http.MethodPost,
		Target:  completionsPath,
		Payload: newRequest(req),
		Header:  http.Header{"Authorization": []string{"Bearer " + b.apiKey}},
	})
	if err != nil {
		var de *dispatch.Error
		if errors.As(err, &de) && de.Kind == dispatch.KindHTTP {
			return "", fmt.Errorf("groq API returned status code %d: %s", de.StatusCode, de.Reason())
		}
		return "", fmt.Errorf("contacting groq: %w", err)
	}

	var resp groqResponse
	if err := result.Decode(&resp); err != nil {
		return "", fmt.Errorf("decoding groq response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", &backend.FormatError{Backend: backend.Groq, Text: NoResponseText}
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream delivers the whole reply as a single chunk.
func (b *Backend) ChatStream(ctx context.Context, req backend.ChatRequest, onChunk func(string) error) (string, error) {
	reply, err := b.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	if err := onChunk(reply); err != nil {
		return "", err
	}
	return reply, nil
}

func newRequest(req backend.ChatRequest) groqRequest {
	messages := make([]groqMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, groqMessage{Role: m.Role, Content: m.Content})
	}

	temperature := req.Temperature
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = llm.DefaultMaxTokens
	}

	return groqRequest{
		Model:               req.Model,
		Messages:            messages,
		Temperature:         &temperature,
		MaxCompletionTokens: &maxTokens,
	}
}
