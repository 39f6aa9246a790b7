// Package graph implements the host graph rewritten by the planner: a
// directed acyclic multigraph of pipe-assembly elements stored in an arena
// and addressed by stable integer ids.
//
// Graphs derived from one another by Copy, Induced, Subgraph, and the
// contraction operations share an id space, so a node id in a partition
// refers to the same element in the graph it was carved from.  Nodes and
// edges are immutable once added; rewriting replaces them.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

var ErrCycle = errors.New("graph contains a cycle")

type ID uint32

type EdgeID uint32

type Node struct {
	ID   ID
	Kind Kind
	Name string
	Role Role
	// Trap names the trap tap attached to an operator, if any.
	Trap string
	// Members holds the ids of the original nodes this node stands for.
	Members *roaring.Bitmap
}

func (n *Node) String() string {
	if n.Name == "" {
		return fmt.Sprintf("%s#%d", n.Kind, n.ID)
	}
	return n.Name
}

// IsSynthetic reports whether n was created by collapsing other nodes.
func (n *Node) IsSynthetic() bool {
	return n.Members.GetCardinality() != 1 || !n.Members.Contains(uint32(n.ID))
}

// Scope is the edge payload.  Blocking edges mark a synchronization point
// in the physical plan, e.g., the accumulated side of a hash join.
type Scope struct {
	Ordinal  int
	Blocking bool
	Name     string
}

type Edge struct {
	ID    EdgeID
	From  ID
	To    ID
	Scope Scope
	// Via holds the original nodes elided along this edge by contraction.
	Via *roaring.Bitmap
}

type Graph struct {
	nodes []*Node
	edges []*Edge
	out   [][]EdgeID
	in    [][]EdgeID
	live  *roaring.Bitmap
}

func New() *Graph {
	return &Graph{live: roaring.New()}
}

// AddNode adds a node and returns it.  The new node stands for itself.
func (g *Graph) AddNode(kind Kind, name string) *Node {
	id := ID(len(g.nodes))
	n := &Node{
		ID:      id,
		Kind:    kind,
		Name:    name,
		Members: roaring.BitmapOf(uint32(id)),
	}
	g.insertNode(n)
	return n
}

func (g *Graph) AddTap(name string, role Role) *Node {
	n := g.AddNode(Tap, name)
	n.Role = role
	return n
}

// AddOperator adds an Each or Every node with an optional trap.
func (g *Graph) AddOperator(kind Kind, name, trap string) *Node {
	n := g.AddNode(kind, name)
	n.Trap = trap
	return n
}

func (g *Graph) insertNode(n *Node) {
	for ID(len(g.nodes)) <= n.ID {
		g.nodes = append(g.nodes, nil)
		g.out = append(g.out, nil)
		g.in = append(g.in, nil)
	}
	g.nodes[n.ID] = n
	g.live.Add(uint32(n.ID))
}

func (g *Graph) AddEdge(from, to ID, scope Scope) *Edge {
	return g.addEdge(from, to, scope, nil)
}

func (g *Graph) addEdge(from, to ID, scope Scope, via *roaring.Bitmap) *Edge {
	if !g.Has(from) || !g.Has(to) {
		panic(fmt.Sprintf("graph: edge %d->%d references a missing node", from, to))
	}
	if via == nil {
		via = roaring.New()
	}
	e := &Edge{
		ID:    EdgeID(len(g.edges)),
		From:  from,
		To:    to,
		Scope: scope,
		Via:   via,
	}
	g.insertEdge(e)
	return e
}

func (g *Graph) insertEdge(e *Edge) {
	for EdgeID(len(g.edges)) <= e.ID {
		g.edges = append(g.edges, nil)
	}
	g.edges[e.ID] = e
	g.out[e.From] = append(g.out[e.From], e.ID)
	g.in[e.To] = append(g.in[e.To], e.ID)
}

func (g *Graph) Has(id ID) bool {
	return int(id) < len(g.nodes) && g.nodes[id] != nil
}

func (g *Graph) Node(id ID) *Node {
	if !g.Has(id) {
		return nil
	}
	return g.nodes[id]
}

func (g *Graph) Edge(id EdgeID) *Edge {
	if int(id) >= len(g.edges) {
		return nil
	}
	return g.edges[id]
}

func (g *Graph) NumNodes() int {
	return int(g.live.GetCardinality())
}

func (g *Graph) NumEdges() int {
	var n int
	for _, e := range g.edges {
		if e != nil {
			n++
		}
	}
	return n
}

// IDs returns the ids of the nodes of g in ascending order.
func (g *Graph) IDs() []ID {
	return IDs(g.live)
}

// Nodes returns the nodes of g in ascending id order.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, g.NumNodes())
	for _, id := range g.IDs() {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// NodeSet returns a copy of the set of node ids in g.
func (g *Graph) NodeSet() *roaring.Bitmap {
	return g.live.Clone()
}

// Edges returns the edges of g in ascending id order.
func (g *Graph) Edges() []*Edge {
	var edges []*Edge
	for _, e := range g.edges {
		if e != nil {
			edges = append(edges, e)
		}
	}
	return edges
}

func (g *Graph) edgeList(ids []EdgeID) []*Edge {
	edges := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		edges = append(edges, g.edges[id])
	}
	return edges
}

func (g *Graph) Out(id ID) []*Edge {
	if !g.Has(id) {
		return nil
	}
	return g.edgeList(g.out[id])
}

func (g *Graph) In(id ID) []*Edge {
	if !g.Has(id) {
		return nil
	}
	return g.edgeList(g.in[id])
}

func (g *Graph) OutDegree(id ID) int {
	if !g.Has(id) {
		return 0
	}
	return len(g.out[id])
}

func (g *Graph) InDegree(id ID) int {
	if !g.Has(id) {
		return 0
	}
	return len(g.in[id])
}

// Successors returns the distinct successors of id in ascending order.
func (g *Graph) Successors(id ID) []ID {
	var ids []ID
	for _, e := range g.Out(id) {
		ids = append(ids, e.To)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Predecessors returns the distinct predecessors of id in ascending order.
func (g *Graph) Predecessors(id ID) []ID {
	var ids []ID
	for _, e := range g.In(id) {
		ids = append(ids, e.From)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// EdgesBetween returns every edge from -> to in ascending id order.
func (g *Graph) EdgesBetween(from, to ID) []*Edge {
	var edges []*Edge
	for _, e := range g.Out(from) {
		if e.To == to {
			edges = append(edges, e)
		}
	}
	return edges
}

func (g *Graph) RemoveEdge(id EdgeID) {
	e := g.Edge(id)
	if e == nil {
		return
	}
	g.edges[id] = nil
	g.out[e.From] = slices.DeleteFunc(g.out[e.From], func(x EdgeID) bool { return x == id })
	g.in[e.To] = slices.DeleteFunc(g.in[e.To], func(x EdgeID) bool { return x == id })
}

// RemoveNode deletes id and every edge incident to it.
func (g *Graph) RemoveNode(id ID) {
	if !g.Has(id) {
		return
	}
	for _, eid := range slices.Clone(g.out[id]) {
		g.RemoveEdge(eid)
	}
	for _, eid := range slices.Clone(g.in[id]) {
		g.RemoveEdge(eid)
	}
	g.nodes[id] = nil
	g.live.Remove(uint32(id))
}

// Copy returns a graph with the same nodes and edges as g.  Later
// mutations of either graph do not affect the other.
func (g *Graph) Copy() *Graph {
	return &Graph{
		nodes: slices.Clone(g.nodes),
		edges: slices.Clone(g.edges),
		out:   cloneAdjacency(g.out),
		in:    cloneAdjacency(g.in),
		live:  g.live.Clone(),
	}
}

func cloneAdjacency(adj [][]EdgeID) [][]EdgeID {
	out := make([][]EdgeID, len(adj))
	for k, ids := range adj {
		out[k] = slices.Clone(ids)
	}
	return out
}

// Induced returns the subgraph of g induced by the nodes in set.  Ids not
// in g are ignored.
func (g *Graph) Induced(set *roaring.Bitmap) *Graph {
	keep := roaring.And(set, g.live)
	sub := g.empty()
	for _, id := range IDs(keep) {
		sub.insertNode(g.nodes[id])
	}
	for _, e := range g.edges {
		if e != nil && keep.Contains(uint32(e.From)) && keep.Contains(uint32(e.To)) {
			sub.insertEdge(e)
		}
	}
	return sub
}

// Subgraph returns the subgraph of g holding the given nodes and only those
// of the given edges whose ends are both present.
func (g *Graph) Subgraph(nodes, edges *roaring.Bitmap) *Graph {
	keep := roaring.And(nodes, g.live)
	sub := g.empty()
	for _, id := range IDs(keep) {
		sub.insertNode(g.nodes[id])
	}
	it := edges.Iterator()
	for it.HasNext() {
		e := g.Edge(EdgeID(it.Next()))
		if e != nil && keep.Contains(uint32(e.From)) && keep.Contains(uint32(e.To)) {
			sub.insertEdge(e)
		}
	}
	return sub
}

// Without returns the subgraph induced by the nodes of g not in set.
func (g *Graph) Without(set *roaring.Bitmap) *Graph {
	return g.Induced(roaring.AndNot(g.live, set))
}

// empty returns a graph with no nodes that allocates new ids after those of g.
func (g *Graph) empty() *Graph {
	return &Graph{
		nodes: make([]*Node, len(g.nodes)),
		edges: make([]*Edge, len(g.edges)),
		out:   make([][]EdgeID, len(g.nodes)),
		in:    make([][]EdgeID, len(g.nodes)),
		live:  roaring.New(),
	}
}

// Expand maps a set of nodes and edges of g back onto the original nodes
// they stand for.
func (g *Graph) Expand(nodes, edges *roaring.Bitmap) *roaring.Bitmap {
	out := roaring.New()
	for _, id := range IDs(nodes) {
		if n := g.Node(id); n != nil {
			out.Or(n.Members)
		}
	}
	if edges != nil {
		it := edges.Iterator()
		for it.HasNext() {
			if e := g.Edge(EdgeID(it.Next())); e != nil {
				out.Or(e.Via)
			}
		}
	}
	return out
}

// Extents returns the ids of the head and tail sentinels in g.
func (g *Graph) Extents() *roaring.Bitmap {
	set := roaring.New()
	for _, n := range g.nodes {
		if n != nil && n.Kind.Is(Extents) {
			set.Add(uint32(n.ID))
		}
	}
	return set
}

func (g *Graph) Head() *Node {
	return g.first(Head)
}

func (g *Graph) Tail() *Node {
	return g.first(Tail)
}

func (g *Graph) first(kind Kind) *Node {
	for _, n := range g.nodes {
		if n != nil && n.Kind == kind {
			return n
		}
	}
	return nil
}

// Lookup returns the first node named name.
func (g *Graph) Lookup(name string) *Node {
	for _, n := range g.nodes {
		if n != nil && n.Name == name {
			return n
		}
	}
	return nil
}

// Topological returns the node ids in topological order, breaking ties by
// ascending id, or ErrCycle.
func (g *Graph) Topological() ([]ID, error) {
	return Order(g, Topological)
}

// Validate checks the structural invariants of an assembly graph: the
// graph is acyclic, extents carry edges only in their own direction, and
// every other node is connected.
func (g *Graph) Validate() error {
	if _, err := g.Topological(); err != nil {
		return err
	}
	for _, n := range g.Nodes() {
		switch {
		case n.Kind == Head && g.InDegree(n.ID) != 0:
			return fmt.Errorf("head %s has incoming edges", n)
		case n.Kind == Tail && g.OutDegree(n.ID) != 0:
			return fmt.Errorf("tail %s has outgoing edges", n)
		case !n.Kind.Is(Extents) && g.InDegree(n.ID)+g.OutDegree(n.ID) == 0:
			return fmt.Errorf("%s %s is not connected", n.Kind, n)
		}
	}
	return nil
}

func (g *Graph) String() string {
	var b strings.Builder
	for k, n := range g.Nodes() {
		if k > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n.String())
	}
	b.WriteString(" [")
	for k, e := range g.Edges() {
		if k > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s->%s", g.nodeName(e.From), g.nodeName(e.To))
	}
	b.WriteString("]")
	return b.String()
}

func (g *Graph) nodeName(id ID) string {
	if n := g.Node(id); n != nil {
		return n.String()
	}
	return fmt.Sprintf("#%d", id)
}
