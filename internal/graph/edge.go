package graph

import "fmt"

// EdgeKind distinguishes the three edge variants
type EdgeKind string

const (
	EdgeSimple      EdgeKind = "simple"
	EdgeParallel    EdgeKind = "parallel"
	EdgeConditional EdgeKind = "conditional"
)

// Edge represents a directed relation leaving From. Edges of one source are
// evaluated in insertion order.
type Edge struct {
	Kind EdgeKind `json:"kind"`
	From string   `json:"from"`
	// To holds the single target of a simple edge or every target of a parallel edge
	To []string `json:"to,omitempty"`
	// Condition names a predicate registered on the graph
	Condition string `json:"condition,omitempty"`
	IfTrue    string `json:"if_true,omitempty"`
	IfFalse   string `json:"if_false,omitempty"`
}

// Simple creates an edge that always advances from -> to
func Simple(from, to string) Edge {
	return Edge{Kind: EdgeSimple, From: from, To: []string{to}}
}

// Parallel creates an edge that fans out to every target
func Parallel(from string, to ...string) Edge {
	return Edge{Kind: EdgeParallel, From: from, To: append([]string(nil), to...)}
}

// Conditional creates an edge that picks ifTrue or ifFalse by evaluating the
// named condition. An empty side means the edge yields no route for that outcome.
func Conditional(from, condition, ifTrue, ifFalse string) Edge {
	return Edge{Kind: EdgeConditional, From: from, Condition: condition, IfTrue: ifTrue, IfFalse: ifFalse}
}

// Targets returns every node this edge may lead to, without duplicates
func (e Edge) Targets() []string {
	var candidates []string
	switch e.Kind {
	case EdgeConditional:
		candidates = []string{e.IfTrue, e.IfFalse}
	default:
		candidates = e.To
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, t := range candidates {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// References reports whether the edge can lead to node
func (e Edge) References(node string) bool {
	for _, t := range e.Targets() {
		if t == node {
			return true
		}
	}
	return false
}

func (e Edge) clone() Edge {
	e.To = append([]string(nil), e.To...)
	return e
}

// Validate validates the edge configuration
func (e Edge) Validate() error {
	if e.From == "" {
		return fmt.Errorf("%w: edge must have a source node", ErrInvalidEdge)
	}
	switch e.Kind {
	case EdgeSimple:
		if len(e.To) != 1 || e.To[0] == "" {
			return fmt.Errorf("%w: simple edge needs exactly one target", ErrInvalidEdge)
		}
	case EdgeParallel:
		if len(e.To) == 0 {
			return fmt.Errorf("%w: parallel edge needs at least one target", ErrInvalidEdge)
		}
		seen := make(map[string]struct{}, len(e.To))
		for _, t := range e.To {
			if t == "" {
				return fmt.Errorf("%w: parallel edge has an empty target", ErrInvalidEdge)
			}
			if _, ok := seen[t]; ok {
				return fmt.Errorf("%w: parallel edge lists %q twice", ErrInvalidEdge, t)
			}
			seen[t] = struct{}{}
		}
	case EdgeConditional:
		if e.Condition == "" {
			return fmt.Errorf("%w: conditional edge must name a condition", ErrInvalidCondition)
		}
		if e.IfTrue == "" && e.IfFalse == "" {
			return fmt.Errorf("%w: conditional edge needs at least one target", ErrInvalidEdge)
		}
	default:
		return fmt.Errorf("%w: unknown edge kind %q", ErrInvalidEdge, e.Kind)
	}
	return nil
}

// Route is the outcome of resolving a node's outgoing edges
type Route struct {
	Kind    EdgeKind
	Targets []string
}

// Empty reports whether no edge produced a route
func (r Route) Empty() bool {
	return len(r.Targets) == 0
}

// Parallel reports whether the route forks into concurrent branches
func (r Route) Parallel() bool {
	return r.Kind == EdgeParallel && len(r.Targets) > 1
}
