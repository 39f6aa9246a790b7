package graph

import (
	"cmp"
	"fmt"
	"slices"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"
)

// SearchOrder is the order in which the nodes of a graph are visited.
type SearchOrder int

const (
	Topological SearchOrder = iota
	ReverseTopological
	Depth
	ReverseDepth
	Breadth
	ReverseBreadth
)

var searchOrderNames = map[SearchOrder]string{
	Topological:        "topological",
	ReverseTopological: "reverse-topological",
	Depth:              "depth",
	ReverseDepth:       "reverse-depth",
	Breadth:            "breadth",
	ReverseBreadth:     "reverse-breadth",
}

func (o SearchOrder) String() string {
	if s, ok := searchOrderNames[o]; ok {
		return s
	}
	return fmt.Sprintf("SearchOrder(%d)", int(o))
}

// Digraph is the read-only view of a directed graph needed to order it.
// Both host graphs and expression graphs satisfy it.
type Digraph interface {
	IDs() []ID
	Successors(ID) []ID
	Predecessors(ID) []ID
}

// Order returns the nodes of g in the given order.  Roots and neighbors
// are taken in ascending id order so the result is deterministic.  The
// topological orders return ErrCycle if g is cyclic.
func Order(g Digraph, order SearchOrder) ([]ID, error) {
	switch order {
	case Topological:
		return topological(g)
	case ReverseTopological:
		ids, err := topological(g)
		slices.Reverse(ids)
		return ids, err
	case Depth:
		return depthFirst(forward(g)), nil
	case ReverseDepth:
		return depthFirst(backward(g)), nil
	case Breadth:
		return breadthFirst(forward(g)), nil
	case ReverseBreadth:
		return breadthFirst(backward(g)), nil
	}
	return nil, fmt.Errorf("unknown search order %d", int(order))
}

// Rank maps each node of g to its position in the given order.
func Rank(g Digraph, order SearchOrder) (map[ID]int, error) {
	ids, err := Order(g, order)
	if err != nil {
		return nil, err
	}
	rank := make(map[ID]int, len(ids))
	for k, id := range ids {
		rank[id] = k
	}
	return rank, nil
}

func topological(g Digraph) ([]ID, error) {
	v := forward(g)
	// Tarjan's algorithm sees a self loop as a component of one.
	for _, id := range g.IDs() {
		if v.HasEdgeFromTo(int64(id), int64(id)) {
			return nil, ErrCycle
		}
	}
	sorted, err := topo.SortStabilized(v, byID)
	if err != nil {
		return nil, ErrCycle
	}
	return idsOf(sorted), nil
}

func byID(nodes []gonum.Node) {
	slices.SortFunc(nodes, func(a, b gonum.Node) int {
		return cmp.Compare(a.ID(), b.ID())
	})
}

// depthFirst walks v from the nodes that have no back neighbors.  Nodes
// unreachable from any root (only possible in cyclic graphs) are walked
// afterwards in id order.
func depthFirst(v *view) []ID {
	// The walk pops the last neighbor pushed, so list them highest first
	// to visit the lowest id first.
	v.descending = true
	var out []ID
	var df traverse.DepthFirst
	record := func(n gonum.Node) bool {
		out = append(out, ID(n.ID()))
		return false
	}
	for _, id := range v.roots() {
		if n := simple.Node(id); !df.Visited(n) {
			df.Walk(v, n, record)
		}
	}
	return out
}

func breadthFirst(v *view) []ID {
	var out []ID
	var bf traverse.BreadthFirst
	record := func(n gonum.Node, _ int) bool {
		out = append(out, ID(n.ID()))
		return false
	}
	for _, id := range v.roots() {
		if n := simple.Node(id); !bf.Visited(n) {
			bf.Walk(v, n, record)
		}
	}
	return out
}

func idsOf(nodes []gonum.Node) []ID {
	out := make([]ID, len(nodes))
	for k, n := range nodes {
		out[k] = ID(n.ID())
	}
	return out
}

// view presents a Digraph, or its reverse, as a gonum directed graph.
// Neighbors are listed in ascending id order unless descending is set.
type view struct {
	g          Digraph
	next       func(ID) []ID
	back       func(ID) []ID
	has        map[ID]bool
	descending bool
}

var _ gonum.Directed = (*view)(nil)

func forward(g Digraph) *view {
	return newView(g, g.Successors, g.Predecessors)
}

func backward(g Digraph) *view {
	return newView(g, g.Predecessors, g.Successors)
}

func newView(g Digraph, next, back func(ID) []ID) *view {
	ids := g.IDs()
	has := make(map[ID]bool, len(ids))
	for _, id := range ids {
		has[id] = true
	}
	return &view{g: g, next: next, back: back, has: has}
}

// roots returns the nodes with no back neighbors followed by every other
// node, each group in id order.
func (v *view) roots() []ID {
	var roots, rest []ID
	for _, id := range slices.Sorted(slices.Values(v.g.IDs())) {
		if len(v.back(id)) == 0 {
			roots = append(roots, id)
		} else {
			rest = append(rest, id)
		}
	}
	return append(roots, rest...)
}

func (v *view) list(ids []ID) gonum.Nodes {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if v.descending {
		slices.Reverse(ids)
	}
	nodes := make([]gonum.Node, len(ids))
	for k, id := range ids {
		nodes[k] = simple.Node(id)
	}
	return iterator.NewOrderedNodes(nodes)
}

func (v *view) Node(id int64) gonum.Node {
	if !v.has[ID(id)] {
		return nil
	}
	return simple.Node(id)
}

func (v *view) Nodes() gonum.Nodes {
	return v.list(v.g.IDs())
}

func (v *view) From(id int64) gonum.Nodes {
	return v.list(v.next(ID(id)))
}

func (v *view) To(id int64) gonum.Nodes {
	return v.list(v.back(ID(id)))
}

func (v *view) HasEdgeFromTo(uid, vid int64) bool {
	return v.has[ID(uid)] && slices.Contains(v.next(ID(uid)), ID(vid))
}

func (v *view) HasEdgeBetween(xid, yid int64) bool {
	return v.HasEdgeFromTo(xid, yid) || v.HasEdgeFromTo(yid, xid)
}

func (v *view) Edge(uid, vid int64) gonum.Edge {
	if !v.HasEdgeFromTo(uid, vid) {
		return nil
	}
	return simple.Edge{F: simple.Node(uid), T: simple.Node(vid)}
}
