package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/llm"
)

// handleModels lists the models each registered backend offers, keyed by
// backend kind.
func (s *Server) handleModels(c *fiber.Ctx) error {
	models, err := s.registry.Models(c.UserContext())
	if err != nil {
		s.logger.Error("failed to list models", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.Failure("Failed to get models: " + err.Error()))
	}
	return c.JSON(models)
}

// handleGroqModelLimits returns Groq's per-model rate limits.
func (s *Server) handleGroqModelLimits(c *fiber.Ctx) error {
	b, ok := s.registry.Get(backend.Groq)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(llm.Failure("Groq backend is not configured"))
	}
	limiter, ok := b.(backend.Limiter)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(llm.Failure("Groq backend publishes no model limits"))
	}
	return c.JSON(limiter.ModelLimits())
}
