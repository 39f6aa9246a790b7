package expr

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/emicklei/dot"
)

type Arc struct {
	From  int
	To    int
	Scope ScopeExpression
}

// ExpressionGraph is a pattern: element expressions connected by scope
// expressions, searched in a declared order.  Pattern nodes are identified
// by their expression, so each node must be a distinct expression value.
// A graph is frozen the first time a finder uses it and is then safe for
// concurrent use.
type ExpressionGraph struct {
	order  graph.SearchOrder
	nodes  []ElementExpression
	index  map[ElementExpression]int
	arcs   []Arc
	frozen atomic.Bool
}

var _ graph.Digraph = (*ExpressionGraph)(nil)

// NewExpressionGraph returns a pattern searched in the given order and
// holding exprs chained by AnyScope arcs.
func NewExpressionGraph(order graph.SearchOrder, exprs ...ElementExpression) *ExpressionGraph {
	e := &ExpressionGraph{
		order: order,
		index: make(map[ElementExpression]int),
	}
	return e.Arcs(exprs...)
}

// Declare adds nodes to the pattern.  Redeclaring a node is a no-op.
func (e *ExpressionGraph) Declare(exprs ...ElementExpression) *ExpressionGraph {
	e.mutable()
	for _, x := range exprs {
		if _, ok := e.index[x]; !ok {
			e.index[x] = len(e.nodes)
			e.nodes = append(e.nodes, x)
		}
	}
	return e
}

// Arcs declares exprs and links each to the next with AnyScope.
func (e *ExpressionGraph) Arcs(exprs ...ElementExpression) *ExpressionGraph {
	e.Declare(exprs...)
	for k := 1; k < len(exprs); k++ {
		e.Arc(exprs[k-1], AnyScope, exprs[k])
	}
	return e
}

// Arc links two declared nodes.  It panics if either node is undeclared.
func (e *ExpressionGraph) Arc(from ElementExpression, scope ScopeExpression, to ElementExpression) *ExpressionGraph {
	e.mutable()
	src, ok := e.index[from]
	if !ok {
		panic(fmt.Sprintf("expression graph: arc from undeclared node %s", from))
	}
	dst, ok := e.index[to]
	if !ok {
		panic(fmt.Sprintf("expression graph: arc to undeclared node %s", to))
	}
	e.arcs = append(e.arcs, Arc{From: src, To: dst, Scope: scope})
	return e
}

func (e *ExpressionGraph) mutable() {
	if e.frozen.Load() {
		panic("expression graph: modified after use")
	}
}

func (e *ExpressionGraph) Freeze() {
	e.frozen.Store(true)
}

func (e *ExpressionGraph) Validate() error {
	if len(e.nodes) == 0 {
		return errors.New("expression graph has no nodes")
	}
	return nil
}

func (e *ExpressionGraph) SearchOrder() graph.SearchOrder {
	return e.order
}

func (e *ExpressionGraph) Len() int {
	return len(e.nodes)
}

func (e *ExpressionGraph) Node(k int) ElementExpression {
	return e.nodes[k]
}

// Index returns the position of x among the pattern's nodes.
func (e *ExpressionGraph) Index(x ElementExpression) (int, bool) {
	k, ok := e.index[x]
	return k, ok
}

// Edges returns the arcs of the pattern in declaration order.
func (e *ExpressionGraph) Edges() []Arc {
	return e.arcs
}

// Tags returns the union of the capture tags of all nodes.
func (e *ExpressionGraph) Tags() Captures {
	return unionTags(e.nodes)
}

func (e *ExpressionGraph) IDs() []graph.ID {
	ids := make([]graph.ID, len(e.nodes))
	for k := range ids {
		ids[k] = graph.ID(k)
	}
	return ids
}

func (e *ExpressionGraph) Successors(id graph.ID) []graph.ID {
	var ids []graph.ID
	for _, a := range e.arcs {
		if a.From == int(id) {
			ids = append(ids, graph.ID(a.To))
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (e *ExpressionGraph) Predecessors(id graph.ID) []graph.ID {
	var ids []graph.ID
	for _, a := range e.arcs {
		if a.To == int(id) {
			ids = append(ids, graph.ID(a.From))
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (e *ExpressionGraph) String() string {
	s := e.order.String() + ":"
	for k, n := range e.nodes {
		s += fmt.Sprintf(" [%d]%s", k, n)
	}
	for _, a := range e.arcs {
		s += fmt.Sprintf(" %d-%s->%d", a.From, a.Scope, a.To)
	}
	return s
}

func (e *ExpressionGraph) DOT(label string) *dot.Graph {
	out := dot.NewGraph(dot.Directed)
	if label != "" {
		out.Attr("label", label+" ("+e.order.String()+")")
	}
	nodes := make([]dot.Node, len(e.nodes))
	for k, n := range e.nodes {
		nodes[k] = out.Node(strconv.Itoa(k)).Label(n.String())
	}
	for _, a := range e.arcs {
		out.Edge(nodes[a.From], nodes[a.To]).Label(a.Scope.String())
	}
	return out
}
