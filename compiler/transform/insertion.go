package transform

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/finder"
	"github.com/brimdata/pipeplan/compiler/graph"
	"go.uber.org/zap"
)

type Placement int

const (
	// After inserts between the primary node and all of its successors.
	After Placement = iota
	// Before inserts on the edges entering the primary node from the
	// node matched ahead of it.
	Before
	// OnBlocking inserts on each blocking input the match binds, next to
	// the node the input enters.
	OnBlocking
)

// Insertion adds a node next to the primary node of each match of a pattern
// searched in an optionally contracted view of the graph.
type Insertion struct {
	contraction *Contracted
	finder      *finder.Finder
	kind        graph.Kind
	role        graph.Role
	placement   Placement
	prefix      string
}

var _ Transformer = (*Insertion)(nil)

func NewInsertion(contraction *Contracted, match *expr.ExpressionGraph, kind graph.Kind, role graph.Role, placement Placement, prefix string) (*Insertion, error) {
	f, err := finder.New(match)
	if err != nil {
		return nil, err
	}
	return &Insertion{
		contraction: contraction,
		finder:      f,
		kind:        kind,
		role:        role,
		placement:   placement,
		prefix:      prefix,
	}, nil
}

func MustInsertion(contraction *Contracted, match *expr.ExpressionGraph, kind graph.Kind, role graph.Role, placement Placement, prefix string) *Insertion {
	i, err := NewInsertion(contraction, match, kind, role, placement, prefix)
	if err != nil {
		panic(err)
	}
	return i
}

func (i *Insertion) Pattern() *expr.ExpressionGraph {
	return i.finder.Pattern()
}

// Transform inserts into a copy of g until the pattern no longer matches.
// Every insertion must destroy the match it answers, so a graph of N nodes
// takes at most 2N+1 rounds.
func (i *Insertion) Transform(ctx *expr.Context, g *graph.Graph) (*Transformed, error) {
	if ctx == nil {
		ctx = expr.NewContext(nil, "")
	}
	out := &Transformed{Start: g, End: g.Copy()}
	limit := 2*g.NumNodes() + 1
	for {
		search := out.End
		if i.contraction != nil {
			t, err := i.contraction.Transform(ctx, out.End)
			if err != nil {
				return nil, err
			}
			search = t.End
		}
		m, err := i.finder.FindFirstMatch(ctx, search, nil)
		if err != nil {
			return nil, err
		}
		if !m.Found() {
			break
		}
		if len(out.Matches) >= limit {
			return nil, fmt.Errorf("%w: insertion for %s did not converge in %d rounds", ErrInvariant, i.Pattern(), limit)
		}
		out.Matches = append(out.Matches, m)
		if err := i.apply(ctx, out.End, search, m); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (i *Insertion) apply(ctx *expr.Context, g, search *graph.Graph, m *finder.Match) error {
	primary := m.Captured(expr.Primary)
	if primary.GetCardinality() != 1 {
		return fmt.Errorf("%w: insertion needs exactly one primary node (%s)", ErrInvariant, m)
	}
	node := search.Node(graph.ID(primary.Minimum()))
	if node.Members.GetCardinality() != 1 {
		return fmt.Errorf("%w: insertion next to collapsed node %s", ErrInvariant, node)
	}
	target := graph.ID(node.Members.Minimum())
	switch i.placement {
	case After:
		n, err := g.InsertAfter(target, i.kind, "", i.role)
		if err != nil {
			return err
		}
		i.name(ctx, n, g.Node(target))
	case Before:
		origins := graph.SetOf()
		pattern := m.Pattern()
		for k, a := range pattern.Edges() {
			if m.Vertex(a.To) != node.ID {
				continue
			}
			for _, eid := range m.ArcEdges(k) {
				e := search.Edge(eid)
				origins.Or(search.Node(e.From).Members)
				origins.Or(e.Via)
			}
		}
		var inserted bool
		for _, e := range g.In(target) {
			if !origins.Contains(uint32(e.From)) {
				continue
			}
			n, err := g.InsertOnEdge(e.ID, i.kind, "", i.role)
			if err != nil {
				return err
			}
			i.name(ctx, n, g.Node(target))
			inserted = true
		}
		if !inserted {
			return fmt.Errorf("%w: no edge into %s to insert on (%s)", ErrInvariant, node, m)
		}
	case OnBlocking:
		var inserted bool
		for k := range m.Pattern().Edges() {
			for _, eid := range m.ArcEdges(k) {
				bound := search.Edge(eid)
				if bound == nil || !bound.Scope.Blocking {
					continue
				}
				e, err := lastHop(g, search, bound)
				if err != nil {
					return err
				}
				n, err := g.InsertOnEdge(e.ID, i.kind, "", i.role)
				if err != nil {
					return err
				}
				i.name(ctx, n, g.Node(e.To))
				inserted = true
			}
		}
		if !inserted {
			return fmt.Errorf("%w: no blocking edge to insert on (%s)", ErrInvariant, m)
		}
	}
	return nil
}

// lastHop returns the edge of g that ends the path standing behind edge e
// of the contracted graph search.
func lastHop(g, search *graph.Graph, e *graph.Edge) (*graph.Edge, error) {
	to := search.Node(e.To)
	if to.Members.GetCardinality() != 1 {
		return nil, fmt.Errorf("%w: insertion next to collapsed node %s", ErrInvariant, to)
	}
	origins := roaring.Or(search.Node(e.From).Members, e.Via)
	for _, h := range g.In(graph.ID(to.Members.Minimum())) {
		if origins.Contains(uint32(h.From)) && h.Scope.Ordinal == e.Scope.Ordinal && h.Scope.Blocking {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: no blocking edge into %s", ErrInvariant, to)
}

func (i *Insertion) name(ctx *expr.Context, n, near *graph.Node) {
	n.Name = fmt.Sprintf("%s-%d", i.prefix, n.ID)
	ctx.Logger.Debug("inserted node",
		zap.Stringer("kind", n.Kind),
		zap.String("name", n.Name),
		zap.Stringer("near", near))
}
