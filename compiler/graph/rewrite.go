package graph

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// Collapse replaces the nodes in set with a single new node that takes the
// kind, name, and role of rep and stands for the union of their members.
// Edges internal to set are dropped and their vias folded into the new
// node.  Edges crossing the boundary of set are rewired to the new node.
// If the result would contain a cycle, g is left unchanged and ErrCycle is
// returned.
func (g *Graph) Collapse(set *roaring.Bitmap, rep ID) (*Node, error) {
	set = roaring.And(set, g.live)
	if !set.Contains(uint32(rep)) {
		return nil, fmt.Errorf("collapse representative %d is not in the collapsed set", rep)
	}
	if g.reentrant(set) {
		return nil, ErrCycle
	}
	proto := g.nodes[rep]
	members := roaring.New()
	for _, id := range IDs(set) {
		members.Or(g.nodes[id].Members)
	}
	type crossing struct {
		e        *Edge
		incoming bool
	}
	var crossings []crossing
	for _, e := range g.Edges() {
		from, to := set.Contains(uint32(e.From)), set.Contains(uint32(e.To))
		switch {
		case from && to:
			members.Or(e.Via)
		case from:
			crossings = append(crossings, crossing{e, false})
		case to:
			crossings = append(crossings, crossing{e, true})
		}
	}
	for _, id := range IDs(set) {
		g.RemoveNode(id)
	}
	n := &Node{
		ID:      ID(len(g.nodes)),
		Kind:    proto.Kind,
		Name:    proto.Name,
		Role:    proto.Role,
		Trap:    proto.Trap,
		Members: members,
	}
	g.insertNode(n)
	for _, c := range crossings {
		if c.incoming {
			g.addEdge(c.e.From, n.ID, c.e.Scope, c.e.Via)
		} else {
			g.addEdge(n.ID, c.e.To, c.e.Scope, c.e.Via)
		}
	}
	return n, nil
}

// reentrant reports whether some path leaves set and comes back to it.
func (g *Graph) reentrant(set *roaring.Bitmap) bool {
	v := forward(g)
	var bf traverse.BreadthFirst
	inSet := func(n gonum.Node, _ int) bool {
		return set.Contains(uint32(n.ID()))
	}
	for _, id := range IDs(set) {
		for _, succ := range g.Successors(id) {
			n := simple.Node(succ)
			if set.Contains(uint32(succ)) || bf.Visited(n) {
				continue
			}
			if bf.Walk(v, n, inSet) != nil {
				return true
			}
		}
	}
	return false
}

// Elide removes id, linking each of its in-edges to each of its out-edges.
// A bridging edge carries the scope of the out-edge, is blocking if either
// end was, and records id's members and both vias as its own via.
func (g *Graph) Elide(id ID) error {
	n := g.Node(id)
	if n == nil {
		return fmt.Errorf("elided node %d is not in the graph", id)
	}
	ins, outs := g.In(id), g.Out(id)
	g.RemoveNode(id)
	for _, in := range ins {
		for _, out := range outs {
			if in.From == id || out.To == id {
				continue
			}
			scope := out.Scope
			scope.Blocking = in.Scope.Blocking || out.Scope.Blocking
			via := roaring.Or(in.Via, n.Members)
			via.Or(out.Via)
			g.addEdge(in.From, out.To, scope, via)
		}
	}
	return nil
}

// InsertAfter adds a node between id and all of its successors.
func (g *Graph) InsertAfter(id ID, kind Kind, name string, role Role) (*Node, error) {
	if !g.Has(id) {
		return nil, fmt.Errorf("node %d is not in the graph", id)
	}
	outs := g.Out(id)
	n := g.AddNode(kind, name)
	n.Role = role
	for _, e := range outs {
		g.RemoveEdge(e.ID)
		g.addEdge(n.ID, e.To, e.Scope, e.Via)
	}
	g.AddEdge(id, n.ID, Scope{})
	return n, nil
}

// InsertOnEdge splits edge eid with a new node.  The leading edge keeps the
// original scope's name and the trailing edge its ordinal and blocking.
func (g *Graph) InsertOnEdge(eid EdgeID, kind Kind, name string, role Role) (*Node, error) {
	e := g.Edge(eid)
	if e == nil {
		return nil, fmt.Errorf("edge %d is not in the graph", eid)
	}
	g.RemoveEdge(eid)
	n := g.AddNode(kind, name)
	n.Role = role
	g.addEdge(e.From, n.ID, Scope{Name: e.Scope.Name}, e.Via)
	g.AddEdge(n.ID, e.To, e.Scope)
	return n, nil
}
