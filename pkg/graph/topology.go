package graph

import (
	"fmt"
	"slices"
)

// TopologicalSort orders every node so that parents precede children.
// Among nodes whose parents are all placed, the earliest defined goes first.
// Edges to unknown parents are ignored.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortLocked(nil)
}

// sortLocked runs Kahn's algorithm over the nodes in include, or over every
// node when include is nil.
func (g *Graph) sortLocked(include map[string]bool) ([]string, error) {
	inDegree := make(map[string]int, len(g.order))
	children := make(map[string][]string, len(g.order))
	ids := make([]string, 0, len(g.order))

	for _, id := range g.order {
		if include != nil && !include[id] {
			continue
		}
		ids = append(ids, id)
		inDegree[id] += 0
		for _, pid := range g.nodes[id].Parents {
			if _, ok := g.nodes[pid]; !ok {
				continue
			}
			if include != nil && !include[pid] {
				continue
			}
			inDegree[id]++
			children[pid] = append(children[pid], id)
		}
	}

	ready := make([]string, 0, len(ids))
	for _, id := range ids {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	sorted := make([]string, 0, len(ids))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		sorted = append(sorted, id)

		for _, child := range children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
				slices.SortStableFunc(ready, func(a, b string) int {
					return position[a] - position[b]
				})
			}
		}
	}

	if len(sorted) != len(ids) {
		return nil, ErrCycle
	}
	return sorted, nil
}

// DetectCycles returns every elementary cycle reachable by a depth-first
// walk, each as the list of node IDs along the cycle starting from its
// first visited member. An acyclic graph yields nil.
func (g *Graph) DetectCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(g.order))
	var (
		stack  []string
		cycles [][]string
		visit  func(id string)
	)

	// Walk parent to child so cycles read in execution direction.
	children := make(map[string][]string, len(g.order))
	for _, id := range g.order {
		for _, pid := range g.nodes[id].Parents {
			if _, ok := g.nodes[pid]; ok {
				children[pid] = append(children[pid], id)
			}
		}
	}

	visit = func(id string) {
		state[id] = onStack
		stack = append(stack, id)
		for _, child := range children[id] {
			switch state[child] {
			case unvisited:
				visit(child)
			case onStack:
				start := slices.Index(stack, child)
				cycles = append(cycles, slices.Clone(stack[start:]))
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for _, id := range g.order {
		if state[id] == unvisited {
			visit(id)
		}
	}
	return cycles
}

// Ancestors returns every node reachable from id by following parent edges.
func (g *Graph) Ancestors(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	seen := map[string]bool{}
	var walk func(string)
	walk = func(cur string) {
		for _, pid := range g.nodes[cur].Parents {
			if _, ok := g.nodes[pid]; !ok || seen[pid] {
				continue
			}
			seen[pid] = true
			walk(pid)
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for _, nid := range g.order {
		if seen[nid] {
			out = append(out, nid)
		}
	}
	return out, nil
}

// PathTo returns target and all of its ancestors in execution order: the
// minimal plan that produces target's output.
func (g *Graph) PathTo(target string) ([]string, error) {
	ancestors, err := g.Ancestors(target)
	if err != nil {
		return nil, err
	}

	include := make(map[string]bool, len(ancestors)+1)
	for _, id := range ancestors {
		include[id] = true
	}
	include[target] = true

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortLocked(include)
}
