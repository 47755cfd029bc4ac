package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/execution"
	"github.com/papercomputeco/canvas/pkg/graph"
	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/workflow"
)

// handleExecuteWorkflow runs every node in the graph.
func (s *Server) handleExecuteWorkflow(c *fiber.Ctx) error {
	plan, err := s.workflow.ExecuteWorkflow(c.UserContext())
	if err != nil {
		return s.executionError(c, "execute workflow", err)
	}
	return c.JSON(llm.Success(plan))
}

// handleExecuteNode runs a single node.
func (s *Server) handleExecuteNode(c *fiber.Ctx) error {
	plan, err := s.workflow.ExecuteNode(c.UserContext(), param(c, "id"))
	if err != nil {
		return s.executionError(c, "execute node", err)
	}
	return c.JSON(llm.Success(plan))
}

// handleExecutePath runs a target node and its ancestors.
func (s *Server) handleExecutePath(c *fiber.Ctx) error {
	var req execution.PathRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.Failure("invalid request body"))
	}
	if req.TargetNodeID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.Failure("target_node_id is required"))
	}

	plan, err := s.workflow.ExecutePath(c.UserContext(), req.TargetNodeID)
	if err != nil {
		return s.executionError(c, "execute path", err)
	}
	return c.JSON(llm.Success(plan))
}

func (s *Server) executionError(c *fiber.Ctx, action string, err error) error {
	var cycleErr *workflow.CycleError
	switch {
	case errors.As(err, &cycleErr):
		return c.Status(fiber.StatusBadRequest).JSON(llm.Envelope{
			Status:  llm.StatusError,
			Message: err.Error(),
			Data:    fiber.Map{"cycles": cycleErr.Cycles},
		})
	case errors.Is(err, graph.ErrNodeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(llm.Failure("Node not found"))
	case errors.Is(err, execution.ErrEmptyPlan):
		return c.Status(fiber.StatusBadRequest).JSON(llm.Failure(err.Error()))
	default:
		s.logger.Error("execution failed", zap.String("action", action), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.Failure("Failed to " + action + ": " + err.Error()))
	}
}
