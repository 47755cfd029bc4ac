// Package graph holds the node graph: node definitions, parent edges and the
// topology queries used to plan workflow executions.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/canvas/pkg/llm"
)

var (
	// ErrNodeNotFound is returned for unknown node identifiers.
	ErrNodeNotFound = errors.New("node not found")

	// ErrCycle is returned when an operation needs an acyclic graph.
	ErrCycle = errors.New("graph contains cycles and cannot be executed sequentially")
)

// Node is a unit of conversation configuration.
type Node struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name,omitempty" json:"name,omitempty"`
	Backend       string   `yaml:"backend" json:"backend"`
	Model         string   `yaml:"model" json:"model"`
	SystemMessage string   `yaml:"system_message,omitempty" json:"system_message"`
	Temperature   float64  `yaml:"temperature" json:"temperature"`
	MaxTokens     int      `yaml:"max_tokens" json:"max_tokens"`
	Parents       []string `yaml:"parents,omitempty" json:"parents"`
}

// UnmarshalYAML applies the default generation settings to keys the
// document leaves out.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	type plain Node
	p := plain{Temperature: llm.DefaultTemperature, MaxTokens: llm.DefaultMaxTokens}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*n = Node(p)
	return nil
}

// Label returns the display name, falling back to the ID.
func (n Node) Label() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Lookup is the read-only view of the graph used by the conversation core.
type Lookup interface {
	// NodeData returns the node with id.
	NodeData(id string) (*Node, bool)

	// ParentNodes returns one entry per declared parent of id, in declared
	// order. Parents that cannot be resolved are nil entries.
	ParentNodes(id string) []*Node
}

// Graph is an in-memory node graph. It is safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string // definition order, used to break ties deterministically
}

// New builds a graph from nodes. Node IDs must be unique and non-empty.
func New(nodes []Node) (*Graph, error) {
	g := &Graph{}
	if err := g.replace(nodes); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) replace(nodes []Node) error {
	byID := make(map[string]*Node, len(nodes))
	order := make([]string, 0, len(nodes))
	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return fmt.Errorf("node %d has no id", i)
		}
		if _, dup := byID[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		byID[n.ID] = &n
		order = append(order, n.ID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = byID
	g.order = order
	return nil
}

// NodeData returns a copy of the node with id.
func (g *Graph) NodeData(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	c := *n
	return &c, true
}

// ParentNodes returns copies of id's declared parents. Unknown parent IDs
// produce nil entries.
func (g *Graph) ParentNodes(id string) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}

	parents := make([]*Node, 0, len(n.Parents))
	for _, pid := range n.Parents {
		p, ok := g.nodes[pid]
		if !ok {
			parents = append(parents, nil)
			continue
		}
		c := *p
		parents = append(parents, &c)
	}
	return parents
}

// Nodes returns copies of all nodes in definition order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}
