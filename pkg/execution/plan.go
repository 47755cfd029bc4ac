// Package execution replays precomputed workflow executions one step at a
// time and keeps a short history of past runs.
package execution

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmptyPlan is returned when a plan has no steps.
	ErrEmptyPlan = errors.New("execution plan has no steps")

	// ErrHistoryNotFound is returned by Replay for unknown entries.
	ErrHistoryNotFound = errors.New("history entry not found")
)

// ErrorPrefix marks a per-node result that records a failure.
const ErrorPrefix = "Error:"

// Plan is the output of one execute call: the node visiting order and each
// node's result text.
type Plan struct {
	Order   []string          `json:"execution_order"`
	Results map[string]string `json:"results"`
}

// Clone returns a deep copy of p.
func (p Plan) Clone() Plan {
	results := make(map[string]string, len(p.Results))
	for k, v := range p.Results {
		results[k] = v
	}
	return Plan{Order: slices.Clone(p.Order), Results: results}
}

// Failed reports whether nodeID's result records a failure.
func (p Plan) Failed(nodeID string) bool {
	return strings.HasPrefix(p.Results[nodeID], ErrorPrefix)
}

// Kind is the kind of execute call that produced a plan.
type Kind string

const (
	KindWorkflow Kind = "workflow"
	KindNode     Kind = "node"
	KindPath     Kind = "path"
)

// HistoryEntry is a retained past execution.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Inputs    []string  `json:"inputs,omitempty"`
	Plan      Plan      `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}

func newHistoryEntry(kind Kind, inputs []string, plan Plan) HistoryEntry {
	return HistoryEntry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Inputs:    slices.Clone(inputs),
		Plan:      plan.Clone(),
		CreatedAt: time.Now().UTC(),
	}
}
