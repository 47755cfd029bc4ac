// Package ollama is the streaming-capable Ollama backend.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/llm"
)

// NoResponseText is shown when a reply has neither a message nor an error.
const NoResponseText = "No response from Ollama"

const chatPath = "/api/chat"

// Backend implements backend.Backend for Ollama.
type Backend struct {
	transport backend.Transport
}

// New creates an Ollama backend. transport may be nil when only reply
// extraction is needed.
func New(transport backend.Transport) *Backend {
	return &Backend{transport: transport}
}

func (b *Backend) Name() string { return backend.Ollama }

func (b *Backend) Streaming() bool { return true }

// ExtractReply expects {"message": {"content": ...}}. Failing that, an
// "error" field is the failure reason.
func (b *Backend) ExtractReply(body any) (string, error) {
	m, _ := body.(map[string]any)
	if msg, ok := m["message"].(map[string]any); ok {
		if content, ok := msg["content"].(string); ok {
			return content, nil
		}
	}
	if reason := backend.ErrorField(m); reason != "" {
		return "", errors.New(reason)
	}
	return "", &backend.FormatError{Backend: backend.Ollama, Text: NoResponseText}
}

// ReplyBody mirrors a final /api/chat response object.
func (b *Backend) ReplyBody(model, reply string) any {
	return ollamaResponse{
		Model:      model,
		CreatedAt:  time.Now().UTC(),
		Message:    ollamaMessage{Role: llm.RoleAssistant, Content: reply},
		Done:       true,
		DoneReason: "stop",
	}
}

// Chat sends a non-streaming chat and accumulates the reply. Ollama may
// still answer with several JSON lines; their contents are concatenated.
func (b *Backend) Chat(ctx context.Context, req backend.ChatRequest) (string, error) {
	if b.transport == nil {
		return "", backend.ErrNoUpstream
	}

	result, err := b.transport.Submit(ctx, dispatch.Request{
		Method:  http.MethodPost,
		Target:  chatPath,
		Payload: newRequest(req, false),
	})
	if err != nil {
		return "", upstreamError(err)
	}

	var (
		content strings.Builder
		parsed  bool
	)
	for _, line := range strings.Split(strings.TrimSpace(string(result.Raw)), "\n") {
		var resp ollamaResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return "", errors.New(resp.Error)
		}
		parsed = true
		content.WriteString(resp.Message.Content)
	}
	if !parsed {
		return "", errors.New("no valid response data found")
	}
	return content.String(), nil
}

// ChatStream sends a streaming chat and calls onChunk for every non-empty
// content fragment until the final object arrives.
func (b *Backend) ChatStream(ctx context.Context, req backend.ChatRequest, onChunk func(string) error) (string, error) {
	if b.transport == nil {
		return "", backend.ErrNoUpstream
	}

	resp, err := b.transport.Open(ctx, dispatch.Request{
		Method:  http.MethodPost,
		Target:  chatPath,
		Payload: newRequest(req, true),
	})
	if err != nil {
		return "", upstreamError(err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var full strings.Builder
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Skip malformed lines rather than failing the stream.
			continue
		}
		if chunk.Error != "" {
			return "", errors.New(chunk.Error)
		}

		if text := chunk.Message.Content; text != "" {
			full.WriteString(text)
			if err := onChunk(text); err != nil {
				return "", err
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading ollama stream: %w", err)
	}

	return full.String(), nil
}

func newRequest(req backend.ChatRequest, stream bool) ollamaRequest {
	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	temperature := req.Temperature
	numPredict := req.MaxTokens
	if numPredict == 0 {
		numPredict = llm.DefaultMaxTokens
	}

	return ollamaRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   stream,
		Options: &ollamaOptions{
			Temperature: &temperature,
			NumPredict:  &numPredict,
		},
	}
}

func upstreamError(err error) error {
	var de *dispatch.Error
	if errors.As(err, &de) && de.Kind == dispatch.KindHTTP {
		return fmt.Errorf("ollama API returned status code %d: %s", de.StatusCode, de.Reason())
	}
	return fmt.Errorf("contacting ollama: %w", err)
}
