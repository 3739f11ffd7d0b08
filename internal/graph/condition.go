package graph

import (
	"fmt"

	"github.com/avi3tal/graphflow/pkg/state"
)

// Condition is a named boolean predicate evaluated against the state when a
// conditional edge is resolved.
type Condition func(st state.State) bool

// RegisterCondition adds or replaces a named predicate
func (g *Graph) RegisterCondition(name string, cond Condition) error {
	if name == "" || cond == nil {
		return NewGraphStructureError("register_condition", "", fmt.Errorf("%w: name and predicate are required", ErrInvalidCondition))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conditions[name] = cond
	return nil
}

// HasCondition reports whether name is registered
func (g *Graph) HasCondition(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.conditions[name]
	return ok
}

// Next resolves the outgoing edges of node against st. Edges are tried in
// insertion order and the first one that yields a target wins.
func (g *Graph) Next(node string, st state.State) (Route, error) {
	g.mu.RLock()
	edges := g.edges[node]
	conds := make([]Condition, len(edges))
	for i, e := range edges {
		if e.Kind == EdgeConditional {
			cond, ok := g.conditions[e.Condition]
			if !ok {
				g.mu.RUnlock()
				return Route{}, fmt.Errorf("%w: %q", ErrConditionNotFound, e.Condition)
			}
			conds[i] = cond
		}
	}
	edges = append([]Edge(nil), edges...)
	g.mu.RUnlock()

	// predicates run without the lock so they may inspect the graph
	for i, e := range edges {
		switch e.Kind {
		case EdgeSimple:
			return Route{Kind: EdgeSimple, Targets: []string{e.To[0]}}, nil
		case EdgeParallel:
			return Route{Kind: EdgeParallel, Targets: append([]string(nil), e.To...)}, nil
		case EdgeConditional:
			target := e.IfFalse
			if conds[i](st) {
				target = e.IfTrue
			}
			if target != "" {
				return Route{Kind: EdgeConditional, Targets: []string{target}}, nil
			}
		}
	}
	return Route{}, nil
}
