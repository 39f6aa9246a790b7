package expr

import (
	"testing"

	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementCaptures(t *testing.T) {
	g := graph.New()
	p := g.AddNode(graph.Pipe, "p")
	grp := g.AddNode(graph.GroupBy, "g")
	g.AddEdge(p.ID, grp.ID, graph.Scope{})
	ctx := NewContext(nil, "")

	noop := Category(graph.NoOps).Capture(Primary)
	group := Category(graph.Groups).Capture(Secondary)
	cases := []struct {
		name     string
		expr     ElementExpression
		node     *graph.Node
		matched  bool
		captures Captures
	}{
		{"leaf", noop, p, true, Captures(0).With(Primary)},
		{"leaf-miss", noop, grp, false, 0},
		{"and", And(noop, Topo(TopoHead)), p, true, Captures(0).With(Primary)},
		{"and-short", And(Topo(TopoTail), noop), p, false, 0},
		{"or-first", Or(group, noop), p, true, Captures(0).With(Primary)},
		{"or-second", Or(noop, group), grp, true, Captures(0).With(Secondary)},
		{"not", Not(noop), grp, true, 0},
		{"not-drops", Not(group), p, true, 0},
		{"captured", Captured(Primary, Or(Category(graph.Groups), Category(graph.Taps))), grp, true, Captures(0).With(Primary)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := c.expr.Eval(ctx, g, c.node)
			assert.Equal(t, c.matched, r.Matched)
			assert.Equal(t, c.captures, r.Captures)
		})
	}
}

func TestCaptureCopies(t *testing.T) {
	base := Kinds(graph.Pipe)
	tagged := base.Capture(Primary)
	assert.NotSame(t, base, tagged)
	assert.False(t, base.Tags().Has(Primary))
	assert.True(t, tagged.Tags().Has(Primary))
	assert.False(t, Not(tagged).Tags().Has(Primary))
}

func TestTopology(t *testing.T) {
	g := graph.New()
	a := g.AddNode(graph.Each, "a")
	b := g.AddNode(graph.Each, "b")
	c := g.AddNode(graph.HashJoin, "c")
	g.AddEdge(a.ID, b.ID, graph.Scope{})
	g.AddEdge(a.ID, c.ID, graph.Scope{})
	g.AddEdge(b.ID, c.ID, graph.Scope{Ordinal: 1})
	ctx := NewContext(nil, "")
	holds := func(topo Topology, n *graph.Node) bool { return Topo(topo).Eval(ctx, g, n).Matched }
	assert.True(t, holds(TopoHead, a))
	assert.True(t, holds(Split, a))
	assert.True(t, holds(SplitOnly, a))
	assert.True(t, holds(Linear, b))
	assert.True(t, holds(Splice, c))
	assert.True(t, holds(SpliceOnly, c))
	assert.True(t, holds(TopoTail, c))
	assert.False(t, holds(Linear, a))
}

func TestTopologyString(t *testing.T) {
	assert.Equal(t, "split-only", SplitOnly.String())
	assert.Equal(t, "topology(-1)", Topology(-1).String())
	assert.Equal(t, "topology(99)", Topology(99).String())
}

func TestScopes(t *testing.T) {
	ctx := NewContext(nil, "")
	blockingEdge := &graph.Edge{Scope: graph.Scope{Ordinal: 1, Blocking: true}}
	streamedEdge := &graph.Edge{}
	assert.True(t, BlockingScope.Applies(ctx, nil, blockingEdge))
	assert.False(t, BlockingScope.Applies(ctx, nil, streamedEdge))
	assert.True(t, NonBlockingScope.Applies(ctx, nil, streamedEdge))
	assert.True(t, OrdinalScope(1).Applies(ctx, nil, blockingEdge))
	assert.Equal(t, AllEdges, AllNonBlockingScope.Mode())
	assert.False(t, NoCaptureScope.Captures())
}

func TestExpressionGraph(t *testing.T) {
	a := Kinds(graph.Tap)
	b := Category(graph.Groups).Capture(Primary)
	c := Kinds(graph.Tap)
	e := NewExpressionGraph(graph.Topological, a, b, c)
	assert.Equal(t, 3, e.Len())
	assert.Len(t, e.Edges(), 2)
	assert.Equal(t, []graph.ID{1}, e.Successors(0))
	assert.Equal(t, []graph.ID{1}, e.Predecessors(2))
	assert.True(t, e.Tags().Has(Primary))
	require.NoError(t, e.Validate())

	assert.Panics(t, func() { e.Arc(a, AnyScope, Kinds(graph.Pipe)) })
	e.Freeze()
	assert.Panics(t, func() { e.Declare(Any()) })
}

func TestExpressionGraphEmpty(t *testing.T) {
	assert.Error(t, NewExpressionGraph(graph.Topological).Validate())
}

func TestExpressionGraphOrder(t *testing.T) {
	a, b, c := Any(), Any(), Any()
	e := NewExpressionGraph(graph.ReverseTopological).Declare(a, b, c)
	e.Arc(a, AnyScope, b).Arc(b, BlockingScope, c).Arc(b, NonBlockingScope, c)
	ids, err := graph.Order(e, e.SearchOrder())
	require.NoError(t, err)
	assert.Equal(t, []graph.ID{2, 1, 0}, ids)
	assert.Contains(t, e.DOT("test").String(), "non-blocking")
}
