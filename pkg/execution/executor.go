package execution

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/papercomputeco/canvas/pkg/dispatch"
	"github.com/papercomputeco/canvas/pkg/llm"
	"github.com/papercomputeco/canvas/pkg/logger"
)

// Execution routes.
const (
	WorkflowEndpoint = "/execute"
	PathEndpoint     = "/execute/path"
)

// NodeEndpoint returns the single node execution route for nodeID.
func NodeEndpoint(nodeID string) string {
	return "/nodes/" + url.PathEscape(nodeID) + "/execute"
}

// PathRequest is the body of a path execution call.
type PathRequest struct {
	TargetNodeID string `json:"target_node_id"`
}

// Dispatcher issues the execute calls.
type Dispatcher interface {
	Submit(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// Executor calls the execution service and loads each resulting plan into
// its cursor.
type Executor struct {
	dispatcher Dispatcher
	cursor     *Cursor
	logger     *zap.Logger
}

// NewExecutor creates an Executor driving cursor.
func NewExecutor(d Dispatcher, cursor *Cursor, log *zap.Logger) *Executor {
	if cursor == nil {
		cursor = NewCursor()
	}
	return &Executor{dispatcher: d, cursor: cursor, logger: logger.OrNop(log)}
}

// Cursor returns the cursor plans are loaded into.
func (e *Executor) Cursor() *Cursor {
	return e.cursor
}

// ExecuteWorkflow runs every node in the graph.
func (e *Executor) ExecuteWorkflow(ctx context.Context) (HistoryEntry, error) {
	return e.execute(ctx, KindWorkflow, nil, WorkflowEndpoint, struct{}{})
}

// ExecuteNode runs a single node with its parents' current outputs.
func (e *Executor) ExecuteNode(ctx context.Context, nodeID string) (HistoryEntry, error) {
	return e.execute(ctx, KindNode, []string{nodeID}, NodeEndpoint(nodeID), struct{}{})
}

// ExecutePath runs target and every ancestor it depends on.
func (e *Executor) ExecutePath(ctx context.Context, target string) (HistoryEntry, error) {
	return e.execute(ctx, KindPath, []string{target}, PathEndpoint, PathRequest{TargetNodeID: target})
}

func (e *Executor) execute(ctx context.Context, kind Kind, inputs []string, endpoint string, body any) (HistoryEntry, error) {
	result, err := e.dispatcher.Submit(ctx, dispatch.Request{
		Method:  http.MethodPost,
		Target:  endpoint,
		Payload: body,
	})
	if err != nil {
		var de *dispatch.Error
		if errors.As(err, &de) {
			return HistoryEntry{}, fmt.Errorf("%s execution failed: %s", kind, de.Reason())
		}
		return HistoryEntry{}, fmt.Errorf("%s execution failed: %w", kind, err)
	}

	var envelope struct {
		Status  string `json:"status"`
		Data    Plan   `json:"data"`
		Message string `json:"message"`
	}
	if err := result.Decode(&envelope); err != nil {
		return HistoryEntry{}, fmt.Errorf("decoding %s execution result: %w", kind, err)
	}
	if envelope.Status != llm.StatusSuccess {
		return HistoryEntry{}, fmt.Errorf("%s execution failed: %s", kind, envelope.Message)
	}

	entry, err := e.cursor.Load(kind, inputs, envelope.Data)
	if err != nil {
		return HistoryEntry{}, err
	}

	e.logger.Debug("execution plan loaded",
		zap.String("kind", string(kind)),
		zap.String("history_id", entry.ID),
		zap.Int("steps", len(entry.Plan.Order)),
	)
	return entry, nil
}
