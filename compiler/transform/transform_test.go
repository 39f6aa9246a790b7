package transform

import (
	"testing"

	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear(kinds ...graph.Kind) (*graph.Graph, []graph.ID) {
	g := graph.New()
	var ids []graph.ID
	for k, kind := range kinds {
		n := g.AddNode(kind, string(rune('A'+k)))
		if k > 0 {
			g.AddEdge(ids[k-1], n.ID, graph.Scope{})
		}
		ids = append(ids, n.ID)
	}
	return g, ids
}

func consecutiveNoOps() *expr.ExpressionGraph {
	return expr.NewExpressionGraph(graph.ReverseTopological,
		expr.Category(graph.NoOps),
		expr.Category(graph.NoOps).Capture(expr.Primary))
}

func TestCollapseNoOpsTailFirst(t *testing.T) {
	// A -> B -> C with B and C no-ops.
	g, ids := linear(graph.Each, graph.Pipe, graph.Pipe)
	c := MustContracted(consecutiveNoOps(), Collapse)
	out, err := c.Transform(nil, g)
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)
	assert.Equal(t, []graph.ID{ids[2]}, graph.IDs(out.Matches[0].Captured(expr.Primary)))
	assert.Equal(t, 3, out.Start.NumNodes())
	assert.Equal(t, 2, out.End.NumNodes())
	collapsed := out.End.Node(out.End.Successors(ids[0])[0])
	assert.Equal(t, "C", collapsed.Name)
	assert.Equal(t, []graph.ID{ids[1], ids[2]}, graph.IDs(collapsed.Members))
}

func TestCollapseProgress(t *testing.T) {
	// A run of five no-ops collapses one node per application.
	g, _ := linear(graph.Tap, graph.Pipe, graph.Pipe, graph.Pipe, graph.Pipe, graph.Pipe, graph.Tap)
	c := MustContracted(consecutiveNoOps(), Collapse)
	out, err := c.Transform(nil, g)
	require.NoError(t, err)
	assert.Len(t, out.Matches, 4)
	assert.Equal(t, 3, out.End.NumNodes())
	assert.LessOrEqual(t, len(out.Matches), g.NumNodes())
	for _, m := range out.Matches {
		assert.EqualValues(t, 2, m.Nodes().GetCardinality())
	}
}

func TestElide(t *testing.T) {
	g, ids := linear(graph.Tap, graph.Each, graph.GroupBy, graph.Every, graph.Each, graph.Tap)
	c := MustContracted(expr.NewExpressionGraph(graph.Topological,
		expr.Category(graph.Operators).Capture(expr.Primary)), Elide)
	out, err := c.Transform(nil, g)
	require.NoError(t, err)
	assert.Len(t, out.Matches, 3)
	assert.Equal(t, []graph.ID{ids[0], ids[2], ids[5]}, out.End.IDs())
	edges := out.End.EdgesBetween(ids[2], ids[5])
	require.Len(t, edges, 1)
	assert.Equal(t, []graph.ID{ids[3], ids[4]}, graph.IDs(edges[0].Via))
	all := graph.EdgeSetOf()
	for _, e := range out.End.Edges() {
		all.Add(uint32(e.ID))
	}
	assert.Equal(t, g.IDs(), graph.IDs(out.End.Expand(out.End.NodeSet(), all)))
}

func TestCollapseSingleNodeIsInvariant(t *testing.T) {
	g, _ := linear(graph.Pipe, graph.Each)
	c := MustContracted(expr.NewExpressionGraph(graph.Topological,
		expr.Category(graph.NoOps).Capture(expr.Primary)), Collapse)
	_, err := c.Transform(nil, g)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestElideWithoutPrimaryIsInvariant(t *testing.T) {
	g, _ := linear(graph.Pipe, graph.Each)
	c := MustContracted(expr.NewExpressionGraph(graph.Topological,
		expr.Category(graph.NoOps)), Elide)
	_, err := c.Transform(nil, g)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestInsertAfter(t *testing.T) {
	g, ids := linear(graph.Tap, graph.Checkpoint, graph.Each, graph.Tap)
	i := MustInsertion(nil, expr.NewExpressionGraph(graph.Topological,
		expr.Kinds(graph.Checkpoint).Capture(expr.Primary),
		expr.Not(expr.Kinds(graph.Tap))), graph.Tap, graph.Temp, After, "checkpoint")
	out, err := i.Transform(nil, g)
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)
	succ := out.End.Successors(ids[1])
	require.Len(t, succ, 1)
	tap := out.End.Node(succ[0])
	assert.Equal(t, graph.Tap, tap.Kind)
	assert.Equal(t, graph.Temp, tap.Role)
	assert.Equal(t, "checkpoint-4", tap.Name)
	assert.Equal(t, []graph.ID{ids[2]}, out.End.Successors(tap.ID))
	assert.Equal(t, 4, g.NumNodes())
}

func TestInsertBeforeThroughContraction(t *testing.T) {
	// src -> group1 -> each -> group2 -> sink
	g, ids := linear(graph.Tap, graph.GroupBy, graph.Each, graph.GroupBy, graph.Tap)
	contraction := MustContracted(expr.NewExpressionGraph(graph.Topological,
		expr.Captured(expr.Primary, expr.Not(expr.Or(expr.Category(graph.Taps), expr.Category(graph.Groups))))), Elide)
	i := MustInsertion(contraction, expr.NewExpressionGraph(graph.Topological,
		expr.Category(graph.Groups),
		expr.Category(graph.Groups).Capture(expr.Primary)), graph.Tap, graph.Temp, Before, "temp")
	out, err := i.Transform(nil, g)
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)
	preds := out.End.Predecessors(ids[3])
	require.Len(t, preds, 1)
	tap := out.End.Node(preds[0])
	assert.Equal(t, graph.Tap, tap.Kind)
	assert.Equal(t, []graph.ID{ids[2]}, out.End.Predecessors(tap.ID))
	require.NoError(t, out.End.Validate())
}
