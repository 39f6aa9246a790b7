package iterator

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/brimdata/pipeplan/compiler/graph"
)

// UniquePath keeps the subgraphs of its parent disjoint: each yielded
// subgraph loses the nodes of the subgraphs before it, and subgraphs left
// empty are skipped.
type UniquePath struct {
	parent  SubGraphIterator
	seen    *roaring.Bitmap
	pending *SubGraph
	err     error
}

var _ SubGraphIterator = (*UniquePath)(nil)

func NewUniquePath(parent SubGraphIterator) *UniquePath {
	return &UniquePath{parent: parent, seen: roaring.New()}
}

func (u *UniquePath) ElementGraph() *graph.Graph    { return u.parent.ElementGraph() }
func (u *UniquePath) ContractedGraph() *graph.Graph { return u.parent.ContractedGraph() }

func (u *UniquePath) Err() error {
	if u.err != nil {
		return u.err
	}
	return u.parent.Err()
}

func (u *UniquePath) HasNext() bool {
	for u.pending == nil {
		if !u.parent.HasNext() {
			return false
		}
		sg, err := u.parent.Next()
		if err != nil {
			u.err = err
			return false
		}
		nodes := roaring.AndNot(sg.Graph.NodeSet(), u.seen)
		if nodes.IsEmpty() {
			continue
		}
		u.seen.Or(nodes)
		u.pending = &SubGraph{Graph: sg.Graph.Induced(nodes), Match: sg.Match}
	}
	return true
}

func (u *UniquePath) Next() (*SubGraph, error) {
	if u.pending == nil {
		return nil, ErrNoSuchElement
	}
	sg := u.pending
	u.pending = nil
	return sg, nil
}

// IncludeRemainder yields the subgraphs of its parent and then one more
// holding every node of the element graph, other than the head and tail
// sentinels, that no earlier subgraph held.  The remainder is omitted if
// it would be empty.  The subgraphs together cover every node but the
// sentinels, which appear only if a parent subgraph held them.
type IncludeRemainder struct {
	parent    SubGraphIterator
	seen      *roaring.Bitmap
	pending   *SubGraph
	remainder bool
	err       error
}

var _ SubGraphIterator = (*IncludeRemainder)(nil)

func NewIncludeRemainder(parent SubGraphIterator) *IncludeRemainder {
	return &IncludeRemainder{parent: parent, seen: roaring.New()}
}

func (r *IncludeRemainder) ElementGraph() *graph.Graph    { return r.parent.ElementGraph() }
func (r *IncludeRemainder) ContractedGraph() *graph.Graph { return r.parent.ContractedGraph() }

func (r *IncludeRemainder) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.parent.Err()
}

func (r *IncludeRemainder) HasNext() bool {
	if r.pending != nil {
		return true
	}
	if r.parent.HasNext() {
		sg, err := r.parent.Next()
		if err != nil {
			r.err = err
			return false
		}
		r.seen.Or(sg.Graph.NodeSet())
		r.pending = sg
		return true
	}
	if r.remainder || r.Err() != nil {
		return false
	}
	r.remainder = true
	g := r.parent.ElementGraph()
	rest := roaring.AndNot(g.NodeSet(), r.seen)
	rest.AndNot(g.Extents())
	if rest.IsEmpty() {
		return false
	}
	r.pending = &SubGraph{Graph: g.Induced(rest)}
	return true
}

func (r *IncludeRemainder) Next() (*SubGraph, error) {
	if r.pending == nil {
		return nil, ErrNoSuchElement
	}
	sg := r.pending
	r.pending = nil
	return sg, nil
}
