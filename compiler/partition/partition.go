// Package partition carves a host graph into the disjoint subgraphs that
// become physical steps, nodes, and pipelines.
package partition

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/finder"
	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/brimdata/pipeplan/compiler/iterator"
	"github.com/brimdata/pipeplan/compiler/transform"
)

type Partitioner interface {
	Partition(*expr.Context, *graph.Graph) (*Partitions, error)
	Name() string
}

// Partitions is the result of one partitioning.  SubGraphs, Matches, and
// Annotations are parallel; a subgraph not produced by a match has a nil
// match.
type Partitions struct {
	Name            string
	ElementGraph    *graph.Graph
	ContractedGraph *graph.Graph
	Contraction     *expr.ExpressionGraph
	Expression      *expr.ExpressionGraph
	Matches         []*finder.Match
	SubGraphs       []*graph.Graph
	Annotations     []*Annotations
}

func (p *Partitions) Len() int {
	return len(p.SubGraphs)
}

// WriteDOT writes each graph of p to its own file in dir, named by a
// running ordinal and the graph's role.
func (p *Partitions) WriteDOT(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	var ordinal int
	write := func(name, dot string) error {
		path := filepath.Join(dir, fmt.Sprintf("%04d-%s.dot", ordinal, name))
		ordinal++
		return os.WriteFile(path, []byte(dot), 0644)
	}
	if err := write("element-graph", p.ElementGraph.DOT(p.Name).String()); err != nil {
		return err
	}
	if p.ContractedGraph != nil {
		if err := write("contraction-graph", p.ContractedGraph.DOT(p.Name+" contracted").String()); err != nil {
			return err
		}
	}
	if p.Expression != nil {
		if err := write("expression-graph", p.Expression.DOT(p.Name).String()); err != nil {
			return err
		}
	}
	for k, sub := range p.SubGraphs {
		label := fmt.Sprintf("%s %d", p.Name, k)
		if err := write("result-sub-graph", sub.DOT(label).String()); err != nil {
			return err
		}
		if m := p.Matches[k]; m != nil {
			if err := write("matched-sub-graph", m.MatchedGraph().DOT(label).String()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Expression partitions a graph into the subgraphs yielded by an iterator
// over one pattern.
type Expression struct {
	name        string
	contraction *transform.Contracted
	expression  *expr.ExpressionGraph
	annotators  []annotator
	unique      bool
	remainders  bool
}

var _ Partitioner = (*Expression)(nil)

func NewExpression(name string, contraction *transform.Contracted, expression *expr.ExpressionGraph, annotations ...AnnotationRule) (*Expression, error) {
	if expression == nil {
		return nil, fmt.Errorf("partitioner %s: no expression", name)
	}
	if _, err := finder.New(expression); err != nil {
		return nil, fmt.Errorf("partitioner %s: %w", name, err)
	}
	annotators, err := compileAnnotations(annotations)
	if err != nil {
		return nil, fmt.Errorf("partitioner %s: %w", name, err)
	}
	return &Expression{
		name:        name,
		contraction: contraction,
		expression:  expression,
		annotators:  annotators,
	}, nil
}

// NewUniquePath is like NewExpression but keeps the subgraphs disjoint and,
// if includeRemainders is set, adds a final subgraph of every node no
// match reached.
func NewUniquePath(name string, contraction *transform.Contracted, expression *expr.ExpressionGraph, includeRemainders bool, annotations ...AnnotationRule) (*Expression, error) {
	p, err := NewExpression(name, contraction, expression, annotations...)
	if err != nil {
		return nil, err
	}
	p.unique = true
	p.remainders = includeRemainders
	return p, nil
}

func (p *Expression) Name() string {
	return p.name
}

func (p *Expression) Partition(ctx *expr.Context, g *graph.Graph) (*Partitions, error) {
	if ctx == nil {
		ctx = expr.NewContext(nil, "")
	}
	base, err := iterator.New(ctx, p.contraction, p.expression, g)
	if err != nil {
		return nil, err
	}
	var it iterator.SubGraphIterator = base
	if p.unique {
		it = iterator.NewUniquePath(it)
	}
	if p.remainders {
		it = iterator.NewIncludeRemainder(it)
	}
	subgraphs, err := iterator.Collect(it)
	if err != nil {
		return nil, fmt.Errorf("partitioner %s: %w", p.name, err)
	}
	out := &Partitions{
		Name:         p.name,
		ElementGraph: g,
		Expression:   p.expression,
	}
	if p.contraction != nil {
		out.Contraction = p.contraction.Pattern()
		out.ContractedGraph = base.ContractedGraph()
	}
	for _, sg := range subgraphs {
		annotations, err := annotate(ctx, p.annotators, sg.Graph)
		if err != nil {
			return nil, fmt.Errorf("partitioner %s: %w", p.name, err)
		}
		out.SubGraphs = append(out.SubGraphs, sg.Graph)
		out.Matches = append(out.Matches, sg.Match)
		out.Annotations = append(out.Annotations, annotations)
	}
	return out, nil
}

// WholeGraph yields the entire graph, less its head and tail, as a single
// partition.
type WholeGraph struct {
	name       string
	annotators []annotator
}

var _ Partitioner = (*WholeGraph)(nil)

func NewWholeGraph(name string, annotations ...AnnotationRule) (*WholeGraph, error) {
	annotators, err := compileAnnotations(annotations)
	if err != nil {
		return nil, fmt.Errorf("partitioner %s: %w", name, err)
	}
	return &WholeGraph{name: name, annotators: annotators}, nil
}

func (w *WholeGraph) Name() string {
	return w.name
}

func (w *WholeGraph) Partition(ctx *expr.Context, g *graph.Graph) (*Partitions, error) {
	if ctx == nil {
		ctx = expr.NewContext(nil, "")
	}
	if err := checkExtents(g); err != nil {
		return nil, fmt.Errorf("partitioner %s: %w", w.name, err)
	}
	out := &Partitions{Name: w.name, ElementGraph: g}
	sub := g.Without(g.Extents())
	if sub.NumNodes() == 0 {
		return out, nil
	}
	annotations, err := annotate(ctx, w.annotators, sub)
	if err != nil {
		return nil, fmt.Errorf("partitioner %s: %w", w.name, err)
	}
	out.SubGraphs = []*graph.Graph{sub}
	out.Matches = []*finder.Match{nil}
	out.Annotations = []*Annotations{annotations}
	return out, nil
}

func checkExtents(g *graph.Graph) error {
	var heads, tails int
	for _, n := range g.Nodes() {
		switch n.Kind {
		case graph.Head:
			heads++
			if g.InDegree(n.ID) != 0 {
				return fmt.Errorf("%w: head has incoming edges", transform.ErrInvariant)
			}
		case graph.Tail:
			tails++
			if g.OutDegree(n.ID) != 0 {
				return fmt.Errorf("%w: tail has outgoing edges", transform.ErrInvariant)
			}
		}
	}
	if heads > 1 || tails > 1 {
		return fmt.Errorf("%w: %d heads and %d tails", transform.ErrInvariant, heads, tails)
	}
	return nil
}
