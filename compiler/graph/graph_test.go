package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds head -> src -> a -> b -> sink -> tail.
func chain(t *testing.T) (*Graph, []*Node) {
	g := New()
	head := g.AddNode(Head, "head")
	src := g.AddTap("src", Source)
	a := g.AddNode(Pipe, "a")
	b := g.AddNode(Pipe, "b")
	sink := g.AddTap("sink", Sink)
	tail := g.AddNode(Tail, "tail")
	nodes := []*Node{head, src, a, b, sink, tail}
	for k := 1; k < len(nodes); k++ {
		g.AddEdge(nodes[k-1].ID, nodes[k].ID, Scope{})
	}
	require.NoError(t, g.Validate())
	return g, nodes
}

func TestGraphAdjacency(t *testing.T) {
	g := New()
	a := g.AddNode(Each, "a")
	b := g.AddNode(HashJoin, "b")
	g.AddEdge(a.ID, b.ID, Scope{Ordinal: 0})
	g.AddEdge(a.ID, b.ID, Scope{Ordinal: 1, Blocking: true})
	assert.Equal(t, []ID{b.ID}, g.Successors(a.ID))
	assert.Equal(t, []ID{a.ID}, g.Predecessors(b.ID))
	assert.Len(t, g.EdgesBetween(a.ID, b.ID), 2)
	assert.Equal(t, 2, g.OutDegree(a.ID))
	assert.Equal(t, 2, g.InDegree(b.ID))
	g.RemoveNode(a.ID)
	assert.Equal(t, 0, g.InDegree(b.ID))
	assert.Equal(t, 0, g.NumEdges())
	assert.Equal(t, 1, g.NumNodes())
}

func TestGraphAddEdgeMissingNode(t *testing.T) {
	g := New()
	a := g.AddNode(Each, "a")
	assert.Panics(t, func() { g.AddEdge(a.ID, 7, Scope{}) })
}

func TestGraphCopyIsIndependent(t *testing.T) {
	g, nodes := chain(t)
	c := g.Copy()
	c.RemoveNode(nodes[2].ID)
	assert.Equal(t, 6, g.NumNodes())
	assert.Equal(t, 5, c.NumNodes())
	assert.Equal(t, []ID{nodes[3].ID}, g.Successors(nodes[2].ID))
}

func TestGraphInducedKeepsIDs(t *testing.T) {
	g, nodes := chain(t)
	sub := g.Induced(SetOf(nodes[2].ID, nodes[3].ID, nodes[5].ID))
	assert.Equal(t, []ID{nodes[2].ID, nodes[3].ID, nodes[5].ID}, sub.IDs())
	assert.Len(t, sub.Edges(), 1)
	assert.Same(t, g.Node(nodes[3].ID), sub.Node(nodes[3].ID))
	n := sub.AddNode(Pipe, "new")
	assert.False(t, g.Has(n.ID))
	assert.GreaterOrEqual(t, int(n.ID), 6)
}

func TestGraphWithout(t *testing.T) {
	g, _ := chain(t)
	sub := g.Without(g.Extents())
	assert.Equal(t, 4, sub.NumNodes())
	assert.Nil(t, sub.Head())
	assert.Nil(t, sub.Tail())
}

func TestGraphTopological(t *testing.T) {
	g := New()
	a := g.AddNode(Each, "a")
	b := g.AddNode(Each, "b")
	c := g.AddNode(Each, "c")
	d := g.AddNode(Each, "d")
	g.AddEdge(d.ID, b.ID, Scope{})
	g.AddEdge(a.ID, c.ID, Scope{})
	g.AddEdge(b.ID, c.ID, Scope{})
	ids, err := g.Topological()
	require.NoError(t, err)
	assert.Equal(t, []ID{a.ID, d.ID, b.ID, c.ID}, ids)
	g.AddEdge(c.ID, d.ID, Scope{})
	_, err = g.Topological()
	assert.ErrorIs(t, err, ErrCycle)
}

func TestOrders(t *testing.T) {
	// 0 -> 1 -> 3, 0 -> 2 -> 3
	g := New()
	for _, name := range []string{"0", "1", "2", "3"} {
		g.AddNode(Each, name)
	}
	g.AddEdge(0, 1, Scope{})
	g.AddEdge(0, 2, Scope{})
	g.AddEdge(1, 3, Scope{})
	g.AddEdge(2, 3, Scope{})
	cases := []struct {
		order    SearchOrder
		expected []ID
	}{
		{Topological, []ID{0, 1, 2, 3}},
		{ReverseTopological, []ID{3, 2, 1, 0}},
		{Depth, []ID{0, 1, 3, 2}},
		{ReverseDepth, []ID{3, 1, 0, 2}},
		{Breadth, []ID{0, 1, 2, 3}},
		{ReverseBreadth, []ID{3, 1, 2, 0}},
	}
	for _, c := range cases {
		t.Run(c.order.String(), func(t *testing.T) {
			ids, err := Order(g, c.order)
			require.NoError(t, err)
			assert.Equal(t, c.expected, ids)
		})
	}
}

func TestTopologicalFollowsBranches(t *testing.T) {
	// head -> 0, 0 -> 1 -> 3, 0 -> 2, with the head added last as the
	// assembly builder does.
	g := New()
	for _, name := range []string{"0", "1", "2", "3"} {
		g.AddNode(Each, name)
	}
	head := g.AddNode(Head, "head")
	g.AddEdge(head.ID, 0, Scope{})
	g.AddEdge(0, 1, Scope{})
	g.AddEdge(0, 2, Scope{})
	g.AddEdge(1, 3, Scope{})
	ids, err := g.Topological()
	require.NoError(t, err)
	assert.Equal(t, []ID{head.ID, 0, 1, 3, 2}, ids)
	ids, err = Order(g, ReverseTopological)
	require.NoError(t, err)
	assert.Equal(t, []ID{2, 3, 1, 0, head.ID}, ids)
}

func TestTopologicalSelfLoop(t *testing.T) {
	g := New()
	a := g.AddNode(Each, "a")
	g.AddEdge(a.ID, a.ID, Scope{})
	_, err := g.Topological()
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, []ID{a.ID}, mustOrder(t, g, Depth))
}

func mustOrder(t *testing.T, g Digraph, order SearchOrder) []ID {
	ids, err := Order(g, order)
	require.NoError(t, err)
	return ids
}

func TestGraphValidate(t *testing.T) {
	g, nodes := chain(t)
	g.AddEdge(nodes[2].ID, nodes[0].ID, Scope{})
	assert.Error(t, g.Validate())

	g, _ = chain(t)
	g.AddNode(Each, "island")
	assert.EqualError(t, g.Validate(), "each island is not connected")
}

func TestGraphCollapse(t *testing.T) {
	g, nodes := chain(t)
	a, b := nodes[2], nodes[3]
	n, err := g.Collapse(SetOf(a.ID, b.ID), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", n.Name)
	assert.Equal(t, Pipe, n.Kind)
	assert.True(t, n.IsSynthetic())
	assert.Equal(t, []ID{a.ID, b.ID}, IDs(n.Members))
	assert.Equal(t, []ID{nodes[1].ID}, g.Predecessors(n.ID))
	assert.Equal(t, []ID{nodes[4].ID}, g.Successors(n.ID))
	assert.Equal(t, 5, g.NumNodes())
	assert.Equal(t, []ID{a.ID, b.ID}, IDs(g.Expand(SetOf(n.ID), nil)))
}

func TestGraphCollapseCycle(t *testing.T) {
	g, nodes := chain(t)
	// Collapsing src and b would create a cycle through a.
	_, err := g.Collapse(SetOf(nodes[1].ID, nodes[3].ID), nodes[1].ID)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, 6, g.NumNodes())
}

func TestGraphElide(t *testing.T) {
	g := New()
	src := g.AddTap("src", Source)
	p := g.AddNode(Pipe, "p")
	j := g.AddNode(HashJoin, "j")
	g.AddEdge(src.ID, p.ID, Scope{})
	g.AddEdge(p.ID, j.ID, Scope{Ordinal: 1, Blocking: true})
	require.NoError(t, g.Elide(p.ID))
	edges := g.EdgesBetween(src.ID, j.ID)
	require.Len(t, edges, 1)
	assert.Equal(t, Scope{Ordinal: 1, Blocking: true}, edges[0].Scope)
	assert.Equal(t, []ID{p.ID}, IDs(edges[0].Via))
	assert.Equal(t, []ID{src.ID, p.ID, j.ID}, IDs(g.Expand(g.NodeSet(), EdgeSetOf(edges[0].ID))))
}

func TestGraphInsert(t *testing.T) {
	g, nodes := chain(t)
	n, err := g.InsertAfter(nodes[2].ID, Tap, "tmp", Temp)
	require.NoError(t, err)
	assert.Equal(t, []ID{n.ID}, g.Successors(nodes[2].ID))
	assert.Equal(t, []ID{nodes[3].ID}, g.Successors(n.ID))
	assert.Equal(t, Temp, n.Role)

	e := g.EdgesBetween(nodes[3].ID, nodes[4].ID)[0]
	m, err := g.InsertOnEdge(e.ID, Boundary, "bnd", NoRole)
	require.NoError(t, err)
	assert.Equal(t, []ID{m.ID}, g.Successors(nodes[3].ID))
	assert.Equal(t, []ID{nodes[4].ID}, g.Successors(m.ID))
	assert.NoError(t, g.Validate())
}

func TestKindCategories(t *testing.T) {
	assert.True(t, GroupBy.Is(Groups))
	assert.True(t, GroupBy.Is(Splices))
	assert.False(t, HashJoin.Is(Groups))
	assert.True(t, Head.Is(AnyCategory))
	assert.Equal(t, "splice|group", (Splices | Groups).String())
	k, err := ParseKind("CoGroup")
	require.NoError(t, err)
	assert.Equal(t, CoGroup, k)
}

func TestGraphDOT(t *testing.T) {
	g, _ := chain(t)
	s := g.DOT("chain").String()
	assert.Contains(t, s, "digraph")
	assert.Contains(t, s, "cylinder")
}
