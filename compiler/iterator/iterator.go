// Package iterator walks the non-overlapping matches of a pattern in a host
// graph, yielding each as a subgraph of the original, uncontracted graph.
package iterator

import (
	"errors"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/finder"
	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/brimdata/pipeplan/compiler/transform"
	"go.uber.org/zap"
)

// ErrNoSuchElement is returned by Next when no successful HasNext
// preceded it.
var ErrNoSuchElement = errors.New("no such element")

type SubGraph struct {
	Graph *graph.Graph
	// Match is the match in the contracted graph that produced Graph, or
	// nil for subgraphs not produced by a match.
	Match *finder.Match
}

// SubGraphIterator yields subgraphs one at a time.  HasNext does the work
// of finding the next subgraph and may be called any number of times
// before Next.  After HasNext returns false, Err reports whether the
// iteration stopped on an error.
type SubGraphIterator interface {
	HasNext() bool
	Next() (*SubGraph, error)
	Err() error
	ElementGraph() *graph.Graph
	ContractedGraph() *graph.Graph
}

type state int

const (
	needSearch state = iota
	haveMatch
	exhausted
)

// Expression is the base iterator.  It contracts the element graph once,
// then repeatedly searches the contracted graph, excluding the primary
// nodes of every match already found.
type Expression struct {
	ctx         *expr.Context
	contraction *transform.Contracted
	finder      *finder.Finder
	element     *graph.Graph
	contracted  *graph.Graph
	excludes    *roaring.Bitmap
	state       state
	match       *finder.Match
	last        bool
	err         error
}

var _ SubGraphIterator = (*Expression)(nil)

// New returns an iterator over the matches of expression in g.  The
// contraction may be nil to search g itself.
func New(ctx *expr.Context, contraction *transform.Contracted, expression *expr.ExpressionGraph, g *graph.Graph) (*Expression, error) {
	f, err := finder.New(expression)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = expr.NewContext(nil, "")
	}
	return &Expression{
		ctx:         ctx,
		contraction: contraction,
		finder:      f,
		element:     g,
		excludes:    roaring.New(),
	}, nil
}

func (e *Expression) ElementGraph() *graph.Graph {
	return e.element
}

// ContractedGraph returns the graph searched for matches.  It is nil until
// the first call to HasNext.
func (e *Expression) ContractedGraph() *graph.Graph {
	return e.contracted
}

// Excludes returns a copy of the nodes of the contracted graph that can no
// longer be primary in a match.
func (e *Expression) Excludes() *roaring.Bitmap {
	return e.excludes.Clone()
}

func (e *Expression) Err() error {
	return e.err
}

func (e *Expression) HasNext() bool {
	e.advance()
	return e.state == haveMatch
}

func (e *Expression) advance() {
	if e.state != needSearch {
		return
	}
	if e.contracted == nil {
		if e.contraction == nil {
			e.contracted = e.element
		} else {
			t, err := e.contraction.Transform(e.ctx, e.element)
			if err != nil {
				e.fail(err)
				return
			}
			e.contracted = t.End
		}
	}
	m, err := e.finder.FindMatchesOnPrimary(e.ctx, e.contracted, false, e.excludes)
	if err != nil {
		e.fail(err)
		return
	}
	if !m.Found() {
		e.state = exhausted
		return
	}
	primary := m.Captured(expr.Primary)
	if primary.IsEmpty() {
		// Nothing to exclude, so the same match would be found again.
		e.ctx.Logger.Debug("match without primary nodes ends iteration",
			zap.Stringer("pattern", e.finder.Pattern()))
		e.last = true
	}
	e.excludes.Or(primary)
	e.match = m
	e.state = haveMatch
}

func (e *Expression) fail(err error) {
	e.err = err
	e.state = exhausted
}

func (e *Expression) Next() (*SubGraph, error) {
	if e.state != haveMatch {
		return nil, ErrNoSuchElement
	}
	m := e.match
	e.match = nil
	if e.last {
		e.state = exhausted
	} else {
		e.state = needSearch
	}
	nodes := e.contracted.Expand(m.Nodes(), m.Edges())
	return &SubGraph{Graph: e.element.Induced(nodes), Match: m}, nil
}

// Collect drains it.
func Collect(it SubGraphIterator) ([]*SubGraph, error) {
	var out []*SubGraph
	for it.HasNext() {
		sg, err := it.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, it.Err()
}
