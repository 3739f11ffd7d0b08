package scheduler

import (
	"github.com/avi3tal/graphflow/internal/graph"
	"github.com/avi3tal/graphflow/internal/resources"
)

// Resource aware scoring weights
const (
	resourceBaseScore = 100.0
	memoryRatioWeight = 50.0
	cpuRatioWeight    = 30.0
)

func (s *Scheduler) score(g *graph.Graph, tasks []ScheduledTask, snap resources.Snapshot) []ScheduledTask {
	switch s.strategy {
	case Priority:
		for i := range tasks {
			tasks[i].Score = float64(tasks[i].Priority)
		}
	case ShortestJobFirst:
		for i := range tasks {
			tasks[i].Score = -float64(tasks[i].EstimatedDurationMs)
		}
	case ResourceAware:
		kept := tasks[:0]
		for _, t := range tasks {
			if !snap.Fits(t.ResourceRequirements) {
				continue
			}
			cpu, mem := snap.Ratios(t.ResourceRequirements)
			t.Score = max(0, resourceBaseScore-memoryRatioWeight*mem-cpuRatioWeight*cpu)
			kept = append(kept, t)
		}
		tasks = kept
	case CriticalPath:
		chains := criticalChains(g)
		for i := range tasks {
			tasks[i].Score = float64(chains[tasks[i].NodeID])
		}
	case LoadBalanced:
		for i := range tasks {
			req := tasks[i].ResourceRequirements
			load := req.MemoryMB*snap.MemoryLoad + req.CPUCores*snap.CPULoad
			tasks[i].Score = -load
		}
	default:
		for i := range tasks {
			tasks[i].Score = -float64(i)
		}
	}
	return tasks
}

// criticalChains returns, per node, the longest sum of expected durations
// along any downstream path starting at that node. Cycles are collapsed into
// their strongly connected component, which weighs the sum of its members.
func criticalChains(g *graph.Graph) map[string]int64 {
	sccs := g.StronglyConnectedComponents()
	component := make(map[string]int, len(sccs))
	weight := make([]int64, len(sccs))
	for i, scc := range sccs {
		for _, id := range scc {
			component[id] = i
			weight[i] += duration(g, id)
		}
	}

	successors := make([]map[int]struct{}, len(sccs))
	for i, scc := range sccs {
		successors[i] = make(map[int]struct{})
		for _, id := range scc {
			for _, next := range g.Successors(id) {
				if c := component[next]; c != i {
					successors[i][c] = struct{}{}
				}
			}
		}
	}

	memo := make(map[int]int64, len(sccs))
	var longest func(c int) int64
	longest = func(c int) int64 {
		if v, ok := memo[c]; ok {
			return v
		}
		var best int64
		for next := range successors[c] {
			best = max(best, longest(next))
		}
		memo[c] = weight[c] + best
		return memo[c]
	}

	out := make(map[string]int64, len(component))
	for id, c := range component {
		out[id] = longest(c)
	}
	return out
}

func duration(g *graph.Graph, id string) int64 {
	node, ok := g.Node(id)
	if !ok {
		return DefaultDurationMs
	}
	if d := node.Metadata().ExpectedDurationMs; d > 0 {
		return d
	}
	return DefaultDurationMs
}
