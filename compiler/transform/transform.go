// Package transform rewrites host graphs by repeatedly applying the matches
// of a pattern until none remain.
package transform

import (
	"errors"
	"fmt"

	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/finder"
	"github.com/brimdata/pipeplan/compiler/graph"
	"go.uber.org/zap"
)

// ErrInvariant marks a rewrite that broke a structural guarantee of the
// planner.  Planning must not continue past it.
var ErrInvariant = errors.New("internal error: planner invariant violated")

// Transformed is the history of one transformation.  Start is never
// modified.
type Transformed struct {
	Start   *graph.Graph
	End     *graph.Graph
	Matches []*finder.Match
}

type Transformer interface {
	Transform(*expr.Context, *graph.Graph) (*Transformed, error)
	Pattern() *expr.ExpressionGraph
}

type Mode int

const (
	// Collapse replaces every node of a match with one synthetic node.
	Collapse Mode = iota
	// Elide removes the primary nodes of a match, linking around them.
	Elide
)

func (m Mode) String() string {
	if m == Elide {
		return "elide"
	}
	return "collapse"
}

// Contracted shrinks a graph to a fixpoint of one pattern.
type Contracted struct {
	finder *finder.Finder
	mode   Mode
}

var _ Transformer = (*Contracted)(nil)

func NewContracted(pattern *expr.ExpressionGraph, mode Mode) (*Contracted, error) {
	f, err := finder.New(pattern)
	if err != nil {
		return nil, err
	}
	return &Contracted{finder: f, mode: mode}, nil
}

func MustContracted(pattern *expr.ExpressionGraph, mode Mode) *Contracted {
	c, err := NewContracted(pattern, mode)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Contracted) Pattern() *expr.ExpressionGraph {
	return c.finder.Pattern()
}

func (c *Contracted) Mode() Mode {
	return c.mode
}

// Transform contracts a copy of g.  Every application must remove at least
// one node, so at most g.NumNodes() applications are made.
func (c *Contracted) Transform(ctx *expr.Context, g *graph.Graph) (*Transformed, error) {
	if ctx == nil {
		ctx = expr.NewContext(nil, "")
	}
	out := &Transformed{Start: g, End: g.Copy()}
	limit := g.NumNodes()
	for {
		m, err := c.finder.FindFirstMatch(ctx, out.End, nil)
		if err != nil {
			return nil, err
		}
		if !m.Found() {
			break
		}
		if len(out.Matches) >= limit {
			return nil, fmt.Errorf("%w: contraction %s did not converge in %d steps", ErrInvariant, c.Pattern(), limit)
		}
		out.Matches = append(out.Matches, m)
		before := out.End.NumNodes()
		if err := c.apply(out.End, m); err != nil {
			return nil, err
		}
		if out.End.NumNodes() >= before {
			return nil, fmt.Errorf("%w: contraction %s did not remove a node", ErrInvariant, c.Pattern())
		}
	}
	ctx.Logger.Debug("contracted graph",
		zap.Stringer("mode", c.mode),
		zap.Int("matches", len(out.Matches)),
		zap.Int("start-nodes", g.NumNodes()),
		zap.Int("end-nodes", out.End.NumNodes()))
	return out, nil
}

func (c *Contracted) apply(g *graph.Graph, m *finder.Match) error {
	switch c.mode {
	case Collapse:
		nodes := m.Nodes()
		if nodes.GetCardinality() < 2 {
			return fmt.Errorf("%w: collapsing a match of one node (%s)", ErrInvariant, m)
		}
		rep := graph.ID(nodes.Minimum())
		if primary := m.Captured(expr.Primary); !primary.IsEmpty() {
			rep = graph.ID(primary.Minimum())
		}
		if _, err := g.Collapse(nodes, rep); err != nil {
			if errors.Is(err, graph.ErrCycle) {
				return fmt.Errorf("%w: collapsing %s creates a cycle", ErrInvariant, m)
			}
			return err
		}
	case Elide:
		primary := m.Captured(expr.Primary)
		if primary.IsEmpty() {
			return fmt.Errorf("%w: elided match has no primary node (%s)", ErrInvariant, m)
		}
		for _, id := range graph.IDs(primary) {
			if err := g.Elide(id); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown contraction mode %d", c.mode)
	}
	return nil
}
