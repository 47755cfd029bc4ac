package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/graph"
	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/storage"
)

// NodeSummary describes a node in execution order and validation responses.
type NodeSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Backend string `json:"backend,omitempty"`
	Model   string `json:"model,omitempty"`
}

// param returns a copy of a route parameter. Fiber's values alias the
// request buffer, which is reused once the handler returns.
func param(c *fiber.Ctx, key string) string {
	return utils.CopyString(c.Params(key))
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleGetGraph returns every node in definition order.
func (s *Server) handleGetGraph(c *fiber.Ctx) error {
	return c.JSON(llm.Success(s.graph.Nodes()))
}

// handleValidateGraph reports whether the graph can be executed, listing
// the nodes of every cycle when it cannot.
func (s *Server) handleValidateGraph(c *fiber.Ctx) error {
	v := s.workflow.Validate()
	if v.IsValid {
		return c.JSON(llm.Success(fiber.Map{
			"is_valid": true,
			"message":  "Graph is valid for execution",
		}))
	}

	cycles := make([][]NodeSummary, 0, len(v.Cycles))
	for _, cycle := range v.Cycles {
		nodes := make([]NodeSummary, 0, len(cycle))
		for _, id := range cycle {
			nodes = append(nodes, s.summary(id))
		}
		cycles = append(cycles, nodes)
	}

	return c.Status(fiber.StatusBadRequest).JSON(llm.Envelope{
		Status:  llm.StatusError,
		Message: graph.ErrCycle.Error(),
		Data: fiber.Map{
			"is_valid": false,
			"cycles":   cycles,
		},
	})
}

// handleExecutionOrder returns the order a workflow run would use without
// running anything.
func (s *Server) handleExecutionOrder(c *fiber.Ctx) error {
	order, err := s.workflow.ExecutionOrder()
	if err != nil {
		return s.executionError(c, "get execution order", err)
	}

	nodes := make([]NodeSummary, 0, len(order))
	for _, id := range order {
		nodes = append(nodes, s.summary(id))
	}

	return c.JSON(llm.Success(fiber.Map{
		"execution_order": order,
		"nodes":           nodes,
	}))
}

func (s *Server) summary(id string) NodeSummary {
	n, ok := s.graph.NodeData(id)
	if !ok {
		return NodeSummary{ID: id, Name: id}
	}
	return NodeSummary{ID: n.ID, Name: n.Label(), Backend: n.Backend, Model: n.Model}
}

// handleListConversations returns the IDs of every node with a stored
// conversation.
func (s *Server) handleListConversations(c *fiber.Ctx) error {
	ids, err := s.store.NodeIDs(c.UserContext())
	if err != nil {
		s.logger.Error("failed to list conversations", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.Failure("Failed to list conversations"))
	}
	return c.JSON(llm.Success(ids))
}

// handleGetConversation returns one node's stored conversation.
func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	nodeID := param(c, "node_id")

	msgs, err := s.store.Messages(c.UserContext(), nodeID)
	if storage.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(llm.Failure("Conversation not found"))
	}
	if err != nil {
		s.logger.Error("failed to read conversation", zap.String("node_id", nodeID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.Failure("Failed to retrieve conversation"))
	}

	return c.JSON(llm.Success(llm.Conversation{NodeID: nodeID, Messages: msgs}))
}

// handleSaveConversation replaces one node's stored conversation.
func (s *Server) handleSaveConversation(c *fiber.Ctx) error {
	nodeID := param(c, "node_id")

	var conv llm.Conversation
	if err := c.BodyParser(&conv); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.Failure("invalid request body"))
	}
	if conv.NodeID != "" && conv.NodeID != nodeID {
		return c.Status(fiber.StatusBadRequest).JSON(llm.Failure(
			fmt.Sprintf("node_id %q does not match path %q", conv.NodeID, nodeID)))
	}
	for i, m := range conv.Messages {
		if !llm.ValidRole(m.Role) {
			return c.Status(fiber.StatusBadRequest).JSON(llm.Failure(
				fmt.Sprintf("message %d has invalid role %q", i, m.Role)))
		}
	}
	if conv.Messages == nil {
		conv.Messages = []llm.Message{}
	}

	if err := s.store.Replace(c.UserContext(), nodeID, conv.Messages); err != nil {
		s.logger.Error("failed to save conversation", zap.String("node_id", nodeID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.Failure("Failed to save conversation"))
	}

	conv.NodeID = nodeID
	return c.JSON(llm.Success(conv))
}

// handleDeleteConversation removes one node's stored conversation.
func (s *Server) handleDeleteConversation(c *fiber.Ctx) error {
	nodeID := param(c, "node_id")
	if err := s.store.Clear(c.UserContext(), nodeID); err != nil {
		s.logger.Error("failed to delete conversation", zap.String("node_id", nodeID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.Failure("Failed to delete conversation"))
	}
	return c.JSON(llm.Envelope{Status: llm.StatusSuccess, Message: "Conversation deleted successfully"})
}
