package api

import (
	"context"
	"encoding/json"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/sse"
)

// handleNodeChat answers one node chat. Streaming backends reply with
// "data: <chunk>" events when the payload asks for a stream. Everything
// else gets the backend's own response shape as JSON.
func (s *Server) handleNodeChat(c *fiber.Ctx) error {
	payload := llm.ChatPayload{
		Temperature: llm.DefaultTemperature,
		MaxTokens:   llm.DefaultMaxTokens,
	}
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if payload.NodeID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "node_id is required"})
	}

	b, ok := s.registry.Get(payload.Backend)
	if !ok {
		s.logger.Error("unsupported backend", zap.String("backend", payload.Backend))
		s.metrics.Chats.WithLabelValues(payload.Backend, "unsupported").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "Unsupported backend: " + payload.Backend})
	}

	s.logger.Info("node chat request",
		zap.String("node_id", payload.NodeID),
		zap.String("backend", payload.Backend),
		zap.String("model", payload.Model),
		zap.Bool("stream", payload.Stream),
		zap.Int("parents", len(payload.ParentContexts)),
	)

	// A failed write is logged and the chat still goes ahead.
	if err := s.store.Append(c.UserContext(), payload.NodeID, llm.NewTextMessage(llm.RoleUser, payload.UserInput)); err != nil {
		s.logger.Error("failed to store user message", zap.String("node_id", payload.NodeID), zap.Error(err))
	}

	req := backend.ChatRequest{
		Model:       payload.Model,
		Messages:    llm.BuildUpstreamMessages(payload.SystemMessage, payload.ParentContexts, payload.ConversationHistory, payload.UserInput),
		Temperature: payload.Temperature,
		MaxTokens:   payload.MaxTokens,
	}

	if payload.Stream && b.Streaming() {
		c.Set(fiber.HeaderContentType, sse.ContentType)
		c.Set(fiber.HeaderCacheControl, "no-cache")

		// io.Pipe gives per-chunk flushing: each write blocks until fasthttp
		// has sent it as its own chunk.
		pr, pw := io.Pipe()
		go s.streamChat(b, payload.NodeID, req, pw)
		c.Context().Response.SetBodyStream(pr, -1)
		return nil
	}

	reply, err := b.Chat(c.UserContext(), req)
	if err != nil {
		s.logger.Error("chat failed", zap.String("backend", b.Name()), zap.Error(err))
		s.metrics.Chats.WithLabelValues(b.Name(), "error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	s.storeReply(c.UserContext(), payload.NodeID, reply)
	s.metrics.Chats.WithLabelValues(b.Name(), "success").Inc()
	return c.JSON(b.ReplyBody(payload.Model, reply))
}

// streamChat runs a streaming chat into pw. Upstream failures become a
// final data event carrying a JSON error object.
func (s *Server) streamChat(b backend.Backend, nodeID string, req backend.ChatRequest, pw *io.PipeWriter) {
	defer pw.Close()

	ctx := context.Background()
	w := sse.NewWriter(pw)
	full, err := b.ChatStream(ctx, req, func(chunk string) error {
		s.metrics.StreamedChunks.Inc()
		return w.WriteData(chunk)
	})
	if err != nil {
		s.logger.Error("streaming chat failed", zap.String("backend", b.Name()), zap.Error(err))
		s.metrics.Chats.WithLabelValues(b.Name(), "error").Inc()

		body, _ := json.Marshal(llm.ErrorResponse{Error: "Error streaming from " + b.Name() + ": " + err.Error()})
		if werr := w.WriteData(string(body)); werr != nil {
			s.logger.Debug("client went away", zap.Error(werr))
		}
		return
	}

	s.storeReply(ctx, nodeID, full)
	s.metrics.Chats.WithLabelValues(b.Name(), "success").Inc()
}

func (s *Server) storeReply(ctx context.Context, nodeID, reply string) {
	if err := s.store.Append(ctx, nodeID, llm.NewTextMessage(llm.RoleAssistant, reply)); err != nil {
		s.logger.Error("failed to store reply", zap.String("node_id", nodeID), zap.Error(err))
	}
}
