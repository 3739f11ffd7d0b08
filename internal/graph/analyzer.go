package graph

// Read-only structural algorithms. Every pass works on a snapshot of the
// adjacency (the union of all edge targets, both conditional sides included)
// taken under the read lock.

// Metrics summarises the shape of the graph
type Metrics struct {
	NodeCount int `json:"node_count"`
	// EdgeCount is the number of registered edges; a parallel or conditional edge counts once
	EdgeCount int `json:"edge_count"`
	// LinkCount is the number of distinct (source, target) pairs the degrees are computed on
	LinkCount    int     `json:"link_count"`
	MaxInDegree  int     `json:"max_in_degree"`
	MaxOutDegree int     `json:"max_out_degree"`
	AvgInDegree  float64 `json:"avg_in_degree"`
	AvgOutDegree float64 `json:"avg_out_degree"`
	// IsConnected reports weak connectivity
	IsConnected bool `json:"is_connected"`
	// Diameter is the longest finite shortest path; nil with fewer than two nodes
	Diameter *int `json:"diameter,omitempty"`
}

// ValidationReport lists structural defects that do not prevent a build
type ValidationReport struct {
	UnreachableNodes []string `json:"unreachable_nodes"`
	DeadEndNodes     []string `json:"dead_end_nodes"`
	IsolatedNodes    []string `json:"isolated_nodes"`
	IsValid          bool     `json:"is_valid"`
}

// DetectCycles runs a depth first search from every unvisited node and
// returns each cycle found as the path suffix closed by a back edge.
func (g *Graph) DetectCycles() [][]string {
	order, adj := g.snapshot()
	return detectCycles(order, adj)
}

func detectCycles(order []string, adj map[string][]string) [][]string {
	var cycles [][]string
	visited := make(map[string]bool, len(order))
	onStack := make(map[string]int, len(order)) // node -> index in path
	var path []string

	var visit func(n string)
	visit = func(n string) {
		visited[n] = true
		onStack[n] = len(path)
		path = append(path, n)

		for _, next := range adj[n] {
			if idx, ok := onStack[next]; ok {
				cycles = append(cycles, append([]string(nil), path[idx:]...))
				continue
			}
			if !visited[next] {
				visit(next)
			}
		}

		path = path[:len(path)-1]
		delete(onStack, n)
	}

	for _, n := range order {
		if !visited[n] {
			visit(n)
		}
	}
	return cycles
}

// TopologicalSort orders nodes with Kahn's algorithm. Ties are broken by
// insertion order so the result is deterministic.
func (g *Graph) TopologicalSort() ([]string, error) {
	order, adj := g.snapshot()

	inDegree := make(map[string]int, len(order))
	for _, n := range order {
		for _, t := range adj[n] {
			inDegree[t]++
		}
	}

	queue := make([]string, 0, len(order))
	for _, n := range order {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	sorted := make([]string, 0, len(order))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		sorted = append(sorted, n)
		for _, t := range adj[n] {
			inDegree[t]--
			if inDegree[t] == 0 {
				queue = append(queue, t)
			}
		}
	}

	if len(sorted) != len(order) {
		return nil, NewGraphStructureError("topological_sort", "", ErrCyclicDependency)
	}
	return sorted, nil
}

// StronglyConnectedComponents returns Tarjan's components, singletons included
func (g *Graph) StronglyConnectedComponents() [][]string {
	order, adj := g.snapshot()
	return tarjan(order, adj)
}

func tarjan(order []string, adj map[string][]string) [][]string {
	index := 0
	indices := make(map[string]int, len(order))
	lowLink := make(map[string]int, len(order))
	onStack := make(map[string]bool, len(order))
	var stack []string
	var components [][]string

	var connect func(v string)
	connect = func(v string) {
		indices[v] = index
		lowLink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := indices[w]; !seen {
				connect(w)
				lowLink[v] = min(lowLink[v], lowLink[w])
			} else if onStack[w] {
				lowLink[v] = min(lowLink[v], indices[w])
			}
		}

		if lowLink[v] == indices[v] {
			var component []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			components = append(components, component)
		}
	}

	for _, v := range order {
		if _, seen := indices[v]; !seen {
			connect(v)
		}
	}
	return components
}

// CalculateMetrics computes degree, connectivity and diameter figures
func (g *Graph) CalculateMetrics() Metrics {
	g.mu.RLock()
	order, adj := g.snapshotLocked()
	m := Metrics{NodeCount: len(order)}
	for _, edges := range g.edges {
		m.EdgeCount += len(edges)
	}
	g.mu.RUnlock()

	inDegree := make(map[string]int, len(order))
	for _, n := range order {
		out := len(adj[n])
		m.LinkCount += out
		m.MaxOutDegree = max(m.MaxOutDegree, out)
		for _, t := range adj[n] {
			inDegree[t]++
		}
	}
	for _, n := range order {
		m.MaxInDegree = max(m.MaxInDegree, inDegree[n])
	}
	if m.NodeCount > 0 {
		m.AvgInDegree = float64(m.LinkCount) / float64(m.NodeCount)
		m.AvgOutDegree = m.AvgInDegree
	}

	m.IsConnected = weaklyConnected(order, adj)

	if len(order) >= 2 {
		diameter := 0
		for _, n := range order {
			for _, d := range distances(adj, n) {
				diameter = max(diameter, d)
			}
		}
		m.Diameter = &diameter
	}
	return m
}

// ValidateGraph reports unreachable, dead end and isolated nodes
func (g *Graph) ValidateGraph() ValidationReport {
	g.mu.RLock()
	order, adj := g.snapshotLocked()
	entries := append([]string(nil), g.entryPoints...)
	finish := append([]string(nil), g.finishPoints...)
	g.mu.RUnlock()

	return validate(order, adj, entries, finish)
}

func validate(order []string, adj map[string][]string, entries, finish []string) ValidationReport {
	report := ValidationReport{
		UnreachableNodes: []string{},
		DeadEndNodes:     []string{},
		IsolatedNodes:    []string{},
	}

	reachable := bfs(adj, entries)
	hasIncoming := make(map[string]bool, len(order))
	for _, n := range order {
		for _, t := range adj[n] {
			hasIncoming[t] = true
		}
	}

	for _, n := range order {
		if _, ok := reachable[n]; !ok {
			report.UnreachableNodes = append(report.UnreachableNodes, n)
		}
		if len(adj[n]) == 0 && !contains(finish, n) {
			report.DeadEndNodes = append(report.DeadEndNodes, n)
		}
		if len(adj[n]) == 0 && !hasIncoming[n] {
			report.IsolatedNodes = append(report.IsolatedNodes, n)
		}
	}

	report.IsValid = len(report.UnreachableNodes) == 0 &&
		len(report.DeadEndNodes) == 0 &&
		len(report.IsolatedNodes) == 0
	return report
}

func bfs(adj map[string][]string, starts []string) map[string]struct{} {
	seen := make(map[string]struct{})
	queue := make([]string, 0, len(starts))
	for _, s := range starts {
		if _, ok := adj[s]; !ok {
			continue
		}
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, t := range adj[n] {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				queue = append(queue, t)
			}
		}
	}
	return seen
}

// distances returns BFS hop counts from start to every other reachable node
func distances(adj map[string][]string, start string) map[string]int {
	dist := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, t := range adj[n] {
			if _, ok := dist[t]; !ok {
				dist[t] = dist[n] + 1
				queue = append(queue, t)
			}
		}
	}
	return dist
}

func weaklyConnected(order []string, adj map[string][]string) bool {
	if len(order) <= 1 {
		return true
	}
	undirected := make(map[string][]string, len(order))
	for _, n := range order {
		undirected[n] = append(undirected[n], adj[n]...)
		for _, t := range adj[n] {
			undirected[t] = append(undirected[t], n)
		}
	}
	return len(bfs(undirected, order[:1])) == len(order)
}
