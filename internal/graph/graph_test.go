package graph

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avi3tal/graphflow/pkg/state"
	"github.com/avi3tal/graphflow/pkg/types"
)

//---------------------------//
// Mock Node Implementation  //
//---------------------------//

// stubNode is a node that does nothing; structure tests never invoke it.
type stubNode struct {
	id string
}

func (n stubNode) ID() string { return n.id }

func (n stubNode) Metadata() types.NodeMetadata { return types.NodeMetadata{Name: n.id} }

func (n stubNode) Invoke(context.Context, state.State) (types.NodeOutput, error) {
	return types.Completed(), nil
}

// build creates a graph with the given nodes (in order) and edges
func build(t *testing.T, nodes []string, edges ...Edge) *Graph {
	t.Helper()
	g := NewGraph("test graph")
	for _, n := range nodes {
		require.NoError(t, g.AddNode(stubNode{id: n}))
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e))
	}
	return g
}

//---------------------------//
// Tests for the Graph Model //
//---------------------------//

func TestGraphConstruction(t *testing.T) {
	t.Parallel()

	t.Run("DuplicateNode", func(t *testing.T) {
		t.Parallel()
		g := build(t, []string{"A"})
		err := g.AddNode(stubNode{id: "A"})
		require.ErrorIs(t, err, ErrDuplicateNode)
		require.ErrorIs(t, err, types.ErrGraphStructure)
	})

	t.Run("EdgeToMissingNode", func(t *testing.T) {
		t.Parallel()
		g := build(t, []string{"A"})
		require.ErrorIs(t, g.AddEdge(Simple("A", "B")), ErrNodeNotFound)
		require.ErrorIs(t, g.AddEdge(Parallel("A", "A", "B")), ErrNodeNotFound)
		require.ErrorIs(t, g.AddEdge(Simple("X", "A")), ErrNodeNotFound)
	})

	t.Run("MalformedEdges", func(t *testing.T) {
		t.Parallel()
		g := build(t, []string{"A", "B"})
		require.ErrorIs(t, g.AddEdge(Parallel("A")), ErrInvalidEdge)
		require.ErrorIs(t, g.AddEdge(Parallel("A", "B", "B")), ErrInvalidEdge)
		require.ErrorIs(t, g.AddEdge(Conditional("A", "", "B", "")), ErrInvalidCondition)
		require.ErrorIs(t, g.AddEdge(Conditional("A", "cond", "", "")), ErrInvalidEdge)
	})

	t.Run("GraphID", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "my-graph", NewGraph("my graph").ID())
		require.Equal(t, "fixed", NewGraph("x", WithGraphID("fixed")).ID())
		require.Equal(t, "graph", NewGraph("").ID())
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(g *Graph)
		wantErr error
	}{
		{
			name:    "NoEntryPoint",
			setup:   func(g *Graph) { _ = g.SetFinishPoint("B") },
			wantErr: ErrNoEntryPoint,
		},
		{
			name:    "NoFinishPoint",
			setup:   func(g *Graph) { _ = g.SetEntryPoint("A") },
			wantErr: ErrNoFinishPoint,
		},
		{
			name: "UnknownCondition",
			setup: func(g *Graph) {
				_ = g.SetEntryPoint("A")
				_ = g.SetFinishPoint("B")
				_ = g.AddEdge(Conditional("B", "missing", "A", ""))
			},
			wantErr: ErrConditionNotFound,
		},
		{
			name: "Valid",
			setup: func(g *Graph) {
				_ = g.SetEntryPoint("A")
				_ = g.SetFinishPoint("B")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := build(t, []string{"A", "B"}, Simple("A", "B"))
			tt.setup(g)
			err := g.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, types.ErrGraphStructure)
		})
	}
}

func TestNextResolvesEdgesInOrder(t *testing.T) {
	t.Parallel()
	g := build(t, []string{"A", "B", "C", "D"})
	require.NoError(t, g.RegisterCondition("is_big", func(st state.State) bool {
		return state.Int(st, "n") > 10
	}))
	// conditional with an empty false side falls through to the next edge
	require.NoError(t, g.AddEdge(Conditional("A", "is_big", "B", "")))
	require.NoError(t, g.AddEdge(Parallel("A", "C", "D")))

	route, err := g.Next("A", state.FromMap(map[string]any{"n": 20}))
	require.NoError(t, err)
	require.Equal(t, EdgeConditional, route.Kind)
	require.Equal(t, []string{"B"}, route.Targets)

	route, err = g.Next("A", state.FromMap(map[string]any{"n": 1}))
	require.NoError(t, err)
	require.True(t, route.Parallel())
	require.Equal(t, []string{"C", "D"}, route.Targets)

	route, err = g.Next("B", state.New())
	require.NoError(t, err)
	require.True(t, route.Empty())

	require.NoError(t, g.AddEdge(Conditional("C", "unknown", "D", "")))
	_, err = g.Next("C", state.New())
	require.ErrorIs(t, err, ErrConditionNotFound)
}

func TestPredecessorsAndSuccessors(t *testing.T) {
	t.Parallel()
	g := build(t, []string{"A", "B", "C"},
		Parallel("A", "B", "C"),
		Simple("B", "C"),
	)
	require.Equal(t, []string{"B", "C"}, g.Successors("A"))
	require.Equal(t, []string{"A", "B"}, g.Predecessors("C"))
	require.Len(t, g.Reachable("B"), 2)
}

func TestFprint(t *testing.T) {
	t.Parallel()
	g := build(t, []string{"A", "B", "C"},
		Parallel("A", "B", "C"),
		Conditional("B", "done", "C", ""),
	)
	require.NoError(t, g.SetEntryPoint("A"))
	require.NoError(t, g.SetFinishPoint("C"))

	var buf bytes.Buffer
	g.Fprint(&buf)
	out := buf.String()
	require.Contains(t, out, "* A (Entry)")
	require.Contains(t, out, "# C (Finish)")
	require.Contains(t, out, "A ==> [B, C]")
	require.Contains(t, out, "B --[done]--> C | (none)")
}
