package graph

import "fmt"

// OptimizationReport describes what Optimize pruned
type OptimizationReport struct {
	RemovedNodes     []string `json:"removed_nodes"`
	RemovedNodeCount int      `json:"removed_node_count"`
	RemovedEdgeCount int      `json:"removed_edge_count"`
	// CycleCount is informational; cycles are left in place
	CycleCount int `json:"cycle_count"`
}

// RemoveNode deletes a node after removing every edge that touches it
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; !exists {
		return NewGraphStructureError("remove_node", id, ErrNodeNotFound)
	}
	g.removeNodeLocked(id)
	return nil
}

// removeNodeLocked returns the number of links (source, target pairs) dropped
func (g *Graph) removeNodeLocked(id string) int {
	removed := len(g.successorsLocked(id))
	delete(g.edges, id)

	for _, from := range g.order {
		if from == id {
			continue
		}
		before := len(g.successorsLocked(from))
		g.detachTargetLocked(from, id)
		removed += before - len(g.successorsLocked(from))
	}

	delete(g.nodes, id)
	g.order = without(g.order, id)
	g.entryPoints = without(g.entryPoints, id)
	g.finishPoints = without(g.finishPoints, id)
	return removed
}

// RemoveEdge removes the link from -> to. A parallel edge loses that target
// and disappears once empty; a conditional edge naming to is dropped whole.
func (g *Graph) RemoveEdge(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[from]; !exists {
		return NewGraphStructureError("remove_edge", from, fmt.Errorf("source: %w", ErrNodeNotFound))
	}
	if _, exists := g.nodes[to]; !exists {
		return NewGraphStructureError("remove_edge", to, fmt.Errorf("target: %w", ErrNodeNotFound))
	}
	if !g.detachTargetLocked(from, to) {
		return NewGraphStructureError("remove_edge", from, fmt.Errorf("%w: %s -> %s", ErrEdgeNotFound, from, to))
	}
	return nil
}

func (g *Graph) detachTargetLocked(from, to string) bool {
	edges := g.edges[from]
	if len(edges) == 0 {
		return false
	}

	changed := false
	kept := edges[:0]
	for _, e := range edges {
		if !e.References(to) {
			kept = append(kept, e)
			continue
		}
		changed = true
		if e.Kind == EdgeParallel {
			e.To = without(e.To, to)
			if len(e.To) > 0 {
				kept = append(kept, e)
			}
		}
	}

	if len(kept) == 0 {
		delete(g.edges, from)
	} else {
		g.edges[from] = kept
	}
	return changed
}

// Optimize removes every node not reachable from an entry point
func (g *Graph) Optimize() (OptimizationReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	report := OptimizationReport{RemovedNodes: []string{}}
	if len(g.entryPoints) == 0 {
		return report, NewGraphStructureError("optimize", "", ErrNoEntryPoint)
	}

	_, adj := g.snapshotLocked()
	reachable := bfs(adj, g.entryPoints)

	for _, id := range append([]string(nil), g.order...) {
		if _, ok := reachable[id]; ok {
			continue
		}
		report.RemovedEdgeCount += g.removeNodeLocked(id)
		report.RemovedNodes = append(report.RemovedNodes, id)
	}
	report.RemovedNodeCount = len(report.RemovedNodes)

	order, adj := g.snapshotLocked()
	report.CycleCount = len(detectCycles(order, adj))
	return report, nil
}

func without(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
