package execution

import (
	"slices"
	"sync"
)

// MaxHistory is the number of past executions retained.
const MaxHistory = 10

// State is the cursor's lifecycle state.
type State string

const (
	StateEmpty    State = "empty"
	StatePlanned  State = "planned"
	StateStepping State = "stepping"
)

// Status is a node's position relative to the cursor.
type Status string

const (
	StatusUntouched Status = ""
	StatusCompleted Status = "completed"
	StatusActive    Status = "active"
)

// Cursor steps through a Plan. Out of range navigation is a no-op.
//
// Node status is never stored: it is derived from the step index and the
// plan order every time it is asked for.
type Cursor struct {
	mu      sync.RWMutex
	state   State
	plan    Plan
	index   int
	history []HistoryEntry
}

// NewCursor returns an empty cursor.
func NewCursor() *Cursor {
	return &Cursor{state: StateEmpty}
}

// Load installs plan, entering the planned state, and records it in the
// history. Any previous plan and step position are discarded.
func (c *Cursor) Load(kind Kind, inputs []string, plan Plan) (HistoryEntry, error) {
	if len(plan.Order) == 0 {
		return HistoryEntry{}, ErrEmptyPlan
	}

	entry := newHistoryEntry(kind, inputs, plan)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.install(entry.Plan)
	c.history = append(c.history, entry)
	if over := len(c.history) - MaxHistory; over > 0 {
		c.history = slices.Delete(c.history, 0, over)
	}
	return entry, nil
}

func (c *Cursor) install(plan Plan) {
	c.plan = plan.Clone()
	c.index = 0
	c.state = StatePlanned
}

// StartStepExecution enters stepping at the first step. It is a no-op when
// no plan is loaded.
func (c *Cursor) StartStepExecution() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEmpty {
		return
	}
	c.index = 0
	c.state = StateStepping
}

// NextStep advances one step unless already at the last step.
func (c *Cursor) NextStep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStepping || c.index >= len(c.plan.Order)-1 {
		return
	}
	c.index++
}

// PreviousStep moves back one step unless already at the first step.
func (c *Cursor) PreviousStep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStepping || c.index <= 0 {
		return
	}
	c.index--
}

// JumpToStep moves to step i when 0 <= i < TotalSteps.
func (c *Cursor) JumpToStep(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStepping || i < 0 || i >= len(c.plan.Order) {
		return
	}
	c.index = i
}

// Reset discards the plan and returns to the empty state. History is kept.
func (c *Cursor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plan = Plan{}
	c.index = 0
	c.state = StateEmpty
}

// State returns the lifecycle state.
func (c *Cursor) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// CurrentIndex returns the current step index.
func (c *Cursor) CurrentIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index
}

// TotalSteps returns the number of steps in the loaded plan.
func (c *Cursor) TotalSteps() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.plan.Order)
}

// CurrentNode returns the node at the current step, or "" outside stepping.
func (c *Cursor) CurrentNode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateStepping {
		return ""
	}
	return c.plan.Order[c.index]
}

// Plan returns a copy of the loaded plan.
func (c *Cursor) Plan() Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plan.Clone()
}

// Status derives nodeID's status: completed before the current step, active
// at it, untouched after it or when not stepping.
func (c *Cursor) Status(nodeID string) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusLocked(slices.Index(c.plan.Order, nodeID))
}

func (c *Cursor) statusLocked(position int) Status {
	if c.state != StateStepping || position < 0 {
		return StatusUntouched
	}
	switch {
	case position < c.index:
		return StatusCompleted
	case position == c.index:
		return StatusActive
	default:
		return StatusUntouched
	}
}

// Statuses derives the status of every planned node.
func (c *Cursor) Statuses() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Status, len(c.plan.Order))
	for i, id := range c.plan.Order {
		out[id] = c.statusLocked(i)
	}
	return out
}

// History returns retained executions, oldest first.
func (c *Cursor) History() []HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.history)
}

// Replay reloads a retained execution and starts stepping through it.
// Replays do not add history entries.
func (c *Cursor) Replay(id string) (HistoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.history {
		if entry.ID == id {
			c.install(entry.Plan)
			c.state = StateStepping
			return entry, nil
		}
	}
	return HistoryEntry{}, ErrHistoryNotFound
}
