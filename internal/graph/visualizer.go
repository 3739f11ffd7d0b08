package graph

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Info represents the graph structure for visualization
type Info struct {
	ID           string     `json:"id"`
	Nodes        []string   `json:"nodes"`
	Edges        []EdgeInfo `json:"edges"`
	EntryPoints  []string   `json:"entry_points"`
	FinishPoints []string   `json:"finish_points"`
}

// EdgeInfo is a flattened edge
type EdgeInfo struct {
	From      string   `json:"from"`
	To        []string `json:"to"`
	Type      EdgeKind `json:"type"`
	Condition string   `json:"condition,omitempty"`
}

func (g *Graph) GetGraphInfo() *Info {
	g.mu.RLock()
	defer g.mu.RUnlock()

	info := &Info{
		ID:           g.graphID,
		Nodes:        append([]string(nil), g.order...),
		EntryPoints:  append([]string(nil), g.entryPoints...),
		FinishPoints: append([]string(nil), g.finishPoints...),
	}

	for _, from := range g.order {
		for _, e := range g.edges[from] {
			ei := EdgeInfo{From: from, Type: e.Kind, Condition: e.Condition}
			if e.Kind == EdgeConditional {
				ei.To = []string{e.IfTrue, e.IfFalse}
			} else {
				ei.To = append([]string(nil), e.To...)
			}
			info.Edges = append(info.Edges, ei)
		}
	}
	return info
}

// Fprint writes a text rendering of the graph to w
func (g *Graph) Fprint(w io.Writer) {
	info := g.GetGraphInfo()

	fmt.Fprintf(w, "Graph Structure: %s\n", info.ID)
	fmt.Fprintf(w, "Entry Points: %s\n", strings.Join(info.EntryPoints, ", "))
	fmt.Fprintf(w, "Finish Points: %s\n\n", strings.Join(info.FinishPoints, ", "))

	fmt.Fprintln(w, "Nodes:")
	for _, node := range info.Nodes {
		switch {
		case contains(info.EntryPoints, node):
			fmt.Fprintf(w, "  * %s (Entry)\n", node)
		case contains(info.FinishPoints, node):
			fmt.Fprintf(w, "  # %s (Finish)\n", node)
		default:
			fmt.Fprintf(w, "  - %s\n", node)
		}
	}

	fmt.Fprintln(w, "\nEdges:")
	for _, edge := range info.Edges {
		switch edge.Type {
		case EdgeSimple:
			fmt.Fprintf(w, "  %s --> %s\n", edge.From, edge.To[0])
		case EdgeParallel:
			fmt.Fprintf(w, "  %s ==> [%s]\n", edge.From, strings.Join(edge.To, ", "))
		case EdgeConditional:
			fmt.Fprintf(w, "  %s --[%s]--> %s | %s\n", edge.From, edge.Condition, orNone(edge.To[0]), orNone(edge.To[1]))
		}
	}
}

func (g *Graph) PrintGraph() {
	g.Fprint(os.Stdout)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
