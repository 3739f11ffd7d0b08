package graph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/avi3tal/graphflow/pkg/types"
)

const defaultGraphName = "graph"

// Graph owns the nodes, the per-source edge lists, the named conditions and
// the entry and finish points. It is safe for concurrent use.
type Graph struct {
	mu sync.RWMutex

	graphID    string
	nodes      map[string]types.Node
	order      []string // node insertion order
	edges      map[string][]Edge
	conditions map[string]Condition

	entryPoints  []string
	finishPoints []string
}

// Option configures a Graph
type Option func(*Graph)

// WithGraphID overrides the id derived from the graph name. Checkpoints are
// keyed by this id, so it must be stable across processes that share a store.
func WithGraphID(id string) Option {
	return func(g *Graph) {
		g.graphID = id
	}
}

// WithCondition registers a named predicate at construction time
func WithCondition(name string, cond Condition) Option {
	return func(g *Graph) {
		if name != "" && cond != nil {
			g.conditions[name] = cond
		}
	}
}

// NewGraph creates a new graph instance
func NewGraph(name string, opts ...Option) *Graph {
	graphName := defaultGraphName
	if name != "" {
		graphName = name
	}

	g := &Graph{
		// remove spaces
		graphID:    strings.ReplaceAll(graphName, " ", "-"),
		nodes:      make(map[string]types.Node),
		edges:      make(map[string][]Edge),
		conditions: make(map[string]Condition),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// ID returns the graph identifier
func (g *Graph) ID() string {
	return g.graphID
}

// AddNode adds a new node to the graph
func (g *Graph) AddNode(node types.Node) error {
	if node == nil || node.ID() == "" {
		return NewGraphStructureError("add_node", "", ErrInvalidNode)
	}
	id := node.ID()

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		return NewGraphStructureError("add_node", id, ErrDuplicateNode)
	}
	g.nodes[id] = node
	g.order = append(g.order, id)
	return nil
}

// AddEdge appends an edge to the source's edge list after validating both endpoints
func (g *Graph) AddEdge(e Edge) error {
	if err := e.Validate(); err != nil {
		return NewGraphStructureError("add_edge", e.From, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.validateEdgeNodes(e.From, e.Targets()); err != nil {
		return err
	}
	g.edges[e.From] = append(g.edges[e.From], e.clone())
	return nil
}

// validateEdgeNodes validates source and target nodes
func (g *Graph) validateEdgeNodes(from string, targets []string) error {
	if _, exists := g.nodes[from]; !exists {
		return NewGraphStructureError("add_edge", from, fmt.Errorf("source: %w", ErrNodeNotFound))
	}
	for _, target := range targets {
		if _, exists := g.nodes[target]; !exists {
			return NewGraphStructureError("add_edge", target, fmt.Errorf("target: %w", ErrNodeNotFound))
		}
	}
	return nil
}

// SetEntryPoint makes name the only entry point
func (g *Graph) SetEntryPoint(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[name]; !exists {
		return NewGraphStructureError("set_entry_point", name, ErrNodeNotFound)
	}
	g.entryPoints = []string{name}
	return nil
}

// AddEntryPoint registers an additional entry point. The first one starts runs;
// the others seed reachability analysis.
func (g *Graph) AddEntryPoint(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[name]; !exists {
		return NewGraphStructureError("add_entry_point", name, ErrNodeNotFound)
	}
	if !contains(g.entryPoints, name) {
		g.entryPoints = append(g.entryPoints, name)
	}
	return nil
}

// SetFinishPoint marks name as a node where a run may complete
func (g *Graph) SetFinishPoint(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[name]; !exists {
		return NewGraphStructureError("set_finish_point", name, ErrNodeNotFound)
	}
	if !contains(g.finishPoints, name) {
		g.finishPoints = append(g.finishPoints, name)
	}
	return nil
}

// Validate checks the structural invariants required before a run.
// Cycles are allowed.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.entryPoints) == 0 {
		return NewGraphStructureError("validate", "", ErrNoEntryPoint)
	}
	for _, ep := range g.entryPoints {
		if _, exists := g.nodes[ep]; !exists {
			return NewGraphStructureError("validate", ep, fmt.Errorf("entry point: %w", ErrNodeNotFound))
		}
	}
	if len(g.finishPoints) == 0 {
		return NewGraphStructureError("validate", "", ErrNoFinishPoint)
	}
	for _, from := range g.order {
		for _, e := range g.edges[from] {
			for _, t := range e.Targets() {
				if _, exists := g.nodes[t]; !exists {
					return NewGraphStructureError("validate", t, fmt.Errorf("edge from %s: %w", from, ErrNodeNotFound))
				}
			}
			if e.Kind == EdgeConditional {
				if _, ok := g.conditions[e.Condition]; !ok {
					return NewGraphStructureError("validate", from, fmt.Errorf("%w: %q", ErrConditionNotFound, e.Condition))
				}
			}
		}
	}
	return nil
}

// Node returns the node registered under id
func (g *Graph) Node(id string) (types.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether id is registered
func (g *Graph) HasNode(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// NodeIDs returns node ids in insertion order
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Edges returns a copy of the edges leaving from, in evaluation order
func (g *Graph) Edges(from string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edges[from]))
	for _, e := range g.edges[from] {
		out = append(out, e.clone())
	}
	return out
}

// EntryPoints returns the entry points, the run entry first
func (g *Graph) EntryPoints() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.entryPoints...)
}

// FinishPoints returns the finish points
func (g *Graph) FinishPoints() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.finishPoints...)
}

// IsFinishPoint reports whether reaching id completes a path
func (g *Graph) IsFinishPoint(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return contains(g.finishPoints, id)
}

// Successors returns the distinct nodes any edge of id can lead to
func (g *Graph) Successors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.successorsLocked(id)
}

// Predecessors returns the nodes with an edge that can lead to id, in insertion order
func (g *Graph) Predecessors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, from := range g.order {
		for _, e := range g.edges[from] {
			if e.References(id) {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

// Reachable returns every node reachable from start, start included
func (g *Graph) Reachable(start string) map[string]struct{} {
	_, adj := g.snapshot()
	return bfs(adj, []string{start})
}

func (g *Graph) successorsLocked(id string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, e := range g.edges[id] {
		for _, t := range e.Targets() {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// snapshot copies the node order and adjacency so analysis runs without holding the lock
func (g *Graph) snapshot() ([]string, map[string][]string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked()
}

func (g *Graph) snapshotLocked() ([]string, map[string][]string) {
	order := append([]string(nil), g.order...)
	adj := make(map[string][]string, len(order))
	for _, id := range order {
		adj[id] = g.successorsLocked(id)
	}
	return order, adj
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
