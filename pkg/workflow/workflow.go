// Package workflow runs node graphs on the server: every node in an
// execution order is sent to its backend with its parents' latest outputs,
// and the replies are stored as the nodes' new assistant messages.
package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/backend"
	"github.com/papercomputeco/canvas/pkg/eventbus"
	"github.com/papercomputeco/canvas/pkg/eventbus/nop"
	"github.com/papercomputeco/canvas/pkg/execution"
	"github.com/papercomputeco/canvas/pkg/graph"
	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/logger"
	"github.com/papercomputeco/canvas/pkg/storage"
)

// DefaultPrompt is stored as a node's user message when it is executed
// without ever having been asked anything.
const DefaultPrompt = "Process the context from parent nodes and provide insights."

// CycleError is returned when the graph cannot be ordered.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	return graph.ErrCycle.Error()
}

func (e *CycleError) Unwrap() error {
	return graph.ErrCycle
}

// Config configures a Service.
type Config struct {
	Graph     *graph.Graph
	Store     storage.Driver
	Registry  *backend.Registry
	Publisher eventbus.Publisher
	Logger    *zap.Logger
}

// Service executes graphs.
type Service struct {
	graph     *graph.Graph
	store     storage.Driver
	registry  *backend.Registry
	publisher eventbus.Publisher
	logger    *zap.Logger
}

// New creates a Service.
func New(c Config) *Service {
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
	return &Service{
		graph:     c.Graph,
		store:     c.Store,
		registry:  c.Registry,
		publisher: c.Publisher,
		logger:    logger.OrNop(c.Logger),
	}
}

// Validation reports whether the graph can be executed.
type Validation struct {
	IsValid bool       `json:"is_valid"`
	Cycles  [][]string `json:"cycles,omitempty"`
}

// Validate checks the graph for cycles.
func (s *Service) Validate() Validation {
	cycles := s.graph.DetectCycles()
	return Validation{IsValid: len(cycles) == 0, Cycles: cycles}
}

// ExecutionOrder returns the order ExecuteWorkflow would run nodes in.
func (s *Service) ExecutionOrder() ([]string, error) {
	if cycles := s.graph.DetectCycles(); len(cycles) > 0 {
		return nil, &CycleError{Cycles: cycles}
	}
	return s.graph.TopologicalSort()
}

// ExecuteWorkflow runs every node in topological order.
func (s *Service) ExecuteWorkflow(ctx context.Context) (execution.Plan, error) {
	order, err := s.ExecutionOrder()
	if err != nil {
		return execution.Plan{}, err
	}
	if len(order) == 0 {
		return execution.Plan{}, execution.ErrEmptyPlan
	}
	return s.run(ctx, order), nil
}

// ExecuteNode runs a single node against its parents' current outputs.
func (s *Service) ExecuteNode(ctx context.Context, nodeID string) (execution.Plan, error) {
	if _, ok := s.graph.NodeData(nodeID); !ok {
		return execution.Plan{}, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, nodeID)
	}
	return s.run(ctx, []string{nodeID}), nil
}

// ExecutePath runs target and every ancestor it depends on, parents first.
func (s *Service) ExecutePath(ctx context.Context, target string) (execution.Plan, error) {
	if cycles := s.graph.DetectCycles(); len(cycles) > 0 {
		return execution.Plan{}, &CycleError{Cycles: cycles}
	}
	order, err := s.graph.PathTo(target)
	if err != nil {
		return execution.Plan{}, err
	}
	return s.run(ctx, order), nil
}

func (s *Service) run(ctx context.Context, order []string) execution.Plan {
	plan := execution.Plan{
		Order:   order,
		Results: make(map[string]string, len(order)),
	}

	for _, id := range order {
		result, err := s.runNode(ctx, id)
		if err != nil {
			s.logger.Error("node execution failed", zap.String("node_id", id), zap.Error(err))
			result = execution.ErrorPrefix + " " + llm.OneLine(err.Error())
		}
		plan.Results[id] = result
		s.emit(ctx, eventbus.NewEvent(eventbus.ExecutionNodeComplete).ForNode(id).With(result))
	}

	s.emit(ctx, eventbus.NewEvent(eventbus.ExecutionComplete).With(plan))
	return plan
}

func (s *Service) runNode(ctx context.Context, id string) (string, error) {
	node, ok := s.graph.NodeData(id)
	if !ok {
		return "", graph.ErrNodeNotFound
	}

	b, ok := s.registry.Get(node.Backend)
	if !ok {
		return "", fmt.Errorf("unsupported backend: %s", node.Backend)
	}

	parents, err := s.parentContexts(ctx, id)
	if err != nil {
		return "", err
	}

	history, err := storage.MessagesOrEmpty(ctx, s.store, id)
	if err != nil {
		return "", fmt.Errorf("reading conversation: %w", err)
	}
	if !hasUserMessage(history) {
		prompt := llm.NewTextMessage(llm.RoleUser, DefaultPrompt)
		if err := s.store.Append(ctx, id, prompt); err != nil {
			return "", fmt.Errorf("storing default prompt: %w", err)
		}
		history = append(history, prompt)
	}

	reply, err := b.Chat(ctx, backend.ChatRequest{
		Model:       node.Model,
		Messages:    llm.BuildUpstreamMessages(node.SystemMessage, parents, history, ""),
		Temperature: node.Temperature,
		MaxTokens:   node.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	if err := s.store.Append(ctx, id, llm.NewTextMessage(llm.RoleAssistant, reply)); err != nil {
		return "", fmt.Errorf("storing reply: %w", err)
	}
	return reply, nil
}

// parentContexts reads each resolvable parent's latest assistant output.
func (s *Service) parentContexts(ctx context.Context, id string) ([]llm.ParentContext, error) {
	parents := s.graph.ParentNodes(id)
	out := make([]llm.ParentContext, 0, len(parents))
	for _, p := range parents {
		if p == nil {
			continue
		}
		last, err := storage.LastAssistant(ctx, s.store, p.ID)
		if err != nil {
			return nil, fmt.Errorf("reading parent %s: %w", p.ID, err)
		}
		out = append(out, llm.ParentContext{NodeID: p.ID, LastResponse: last})
	}
	return out, nil
}

func (s *Service) emit(ctx context.Context, event *eventbus.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event", event.Name), zap.Error(err))
	}
}

func hasUserMessage(msgs []llm.Message) bool {
	for _, m := range msgs {
		if m.Role == llm.RoleUser {
			return true
		}
	}
	return false
}
