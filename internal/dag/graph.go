package dag

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Graph is a collection of nodes and their dependencies. All operations on
// the graph are concurrency-safe.
type Graph struct {
	mutex  sync.RWMutex
	nodes  map[string]*Node
	frozen bool
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
	}
}

// AddNode registers n. Registering an ID twice is a configuration fault and
// is never merged.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("node must have a non-empty ID")
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.frozen {
		return fmt.Errorf("adding node %s: %w", n.ID, ErrFrozen)
	}
	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}

	n.deps = make(map[string]*Node)
	n.dependents = make(map[string]*Node)
	n.reset()
	g.nodes[n.ID] = n
	return nil
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node,
// meaning `toID` cannot start before `fromID` is done.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.frozen {
		return fmt.Errorf("adding edge %s -> %s: %w", fromID, toID, ErrFrozen)
	}

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode
	return nil
}

// AddInputs appends paths to the declared inputs of node id, skipping paths
// it already declares. Inputs can only grow before the graph is frozen.
func (g *Graph) AddInputs(id string, paths ...string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.frozen {
		return fmt.Errorf("adding inputs to %s: %w", id, ErrFrozen)
	}
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("node not found: %s", id)
	}
	for _, p := range paths {
		if !slices.Contains(n.Inputs, p) {
			n.Inputs = append(n.Inputs, p)
		}
	}
	return nil
}

// Node looks up a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node sorted by ID.
func (g *Graph) Nodes() []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the sorted IDs of the nodes the given node depends on.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedKeys(n.deps), nil
}

// Dependents returns the sorted IDs of the nodes that depend on the given node.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedKeys(n.dependents), nil
}

// DetectCycles checks the graph for any cycles. It returns an error wrapping
// ErrCycle that names a node involved in the cycle.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.detectCycles()
}

func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("%w involving node '%s'", ErrCycle, n.ID)
		}
		temporary[n.ID] = true
		for _, id := range sortedKeys(n.dependents) {
			if err := visit(n.dependents[id]); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, id := range sortedKeys(g.nodes) {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

// Freeze validates the graph and rejects all later mutation.
func (g *Graph) Freeze() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.frozen {
		return nil
	}
	if err := g.detectCycles(); err != nil {
		return err
	}
	g.frozen = true
	return nil
}

// Frozen reports whether Freeze has succeeded.
func (g *Graph) Frozen() bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.frozen
}

// Subgraph returns the targets and all of their transitive predecessors,
// sorted by ID. With no targets it returns every node.
func (g *Graph) Subgraph(targets ...string) ([]*Node, error) {
	if len(targets) == 0 {
		return g.Nodes(), nil
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	seen := make(map[string]*Node)
	var walk func(n *Node)
	walk = func(n *Node) {
		if _, ok := seen[n.ID]; ok {
			return
		}
		seen[n.ID] = n
		for _, dep := range n.deps {
			walk(dep)
		}
	}
	for _, id := range targets {
		n, ok := g.nodes[id]
		if !ok {
			return nil, fmt.Errorf("unknown target: %s", id)
		}
		walk(n)
	}

	out := make([]*Node, 0, len(seen))
	for _, id := range sortedKeys(seen) {
		out = append(out, seen[id])
	}
	return out, nil
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
