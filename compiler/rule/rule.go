// Package rule defines the planner's rules and the per-platform registries
// that order them into phases.
package rule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/finder"
	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/brimdata/pipeplan/compiler/partition"
	"github.com/brimdata/pipeplan/compiler/transform"
)

type Phase int

const (
	PreBalance Phase = iota
	Balance
	PostBalance
	PartitionSteps
	PartitionNodes
	PartitionPipelines
)

var Phases = []Phase{PreBalance, Balance, PostBalance, PartitionSteps, PartitionNodes, PartitionPipelines}

func (p Phase) String() string {
	switch p {
	case PreBalance:
		return "pre-balance"
	case Balance:
		return "balance"
	case PostBalance:
		return "post-balance"
	case PartitionSteps:
		return "partition-steps"
	case PartitionNodes:
		return "partition-nodes"
	case PartitionPipelines:
		return "partition-pipelines"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// IsPartition reports whether rules of phase p carve the graph rather than
// rewrite it.
func (p Phase) IsPartition() bool {
	return p >= PartitionSteps
}

type Rule interface {
	Name() string
	Phase() Phase
}

// ErrAssert is wrapped by every assertion failure.
var ErrAssert = errors.New("plan assertion failed")

// AssertError reports the nodes that tripped an assertion.
type AssertError struct {
	Rule     string
	Message  string
	Elements []string
}

func (a *AssertError) Error() string {
	return fmt.Sprintf("%s: %s: %s", a.Rule, a.Message, strings.Join(a.Elements, ", "))
}

func (a *AssertError) Unwrap() error {
	return ErrAssert
}

// Assert fails planning when its expression matches.
type Assert struct {
	name        string
	phase       Phase
	message     string
	contraction *transform.Contracted
	finder      *finder.Finder
}

var _ Rule = (*Assert)(nil)

func NewAssert(name string, phase Phase, e Expression, message string) *Assert {
	return &Assert{
		name:        name,
		phase:       phase,
		message:     message,
		contraction: e.Contraction,
		finder:      finder.MustNew(e.Match),
	}
}

func (a *Assert) Name() string { return a.name }
func (a *Assert) Phase() Phase { return a.phase }

func (a *Assert) Pattern() *expr.ExpressionGraph {
	return a.finder.Pattern()
}

// Check returns an *AssertError naming the primary nodes of the first match
// in g, or nil if there is none.
func (a *Assert) Check(ctx *expr.Context, g *graph.Graph) error {
	search := g
	if a.contraction != nil {
		t, err := a.contraction.Transform(ctx, g)
		if err != nil {
			return fmt.Errorf("%s: %w", a.name, err)
		}
		search = t.End
	}
	m, err := a.finder.FindFirstMatch(ctx, search, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", a.name, err)
	}
	if !m.Found() {
		return nil
	}
	ids := m.Captured(expr.Primary)
	if ids.IsEmpty() {
		ids = m.Nodes()
	}
	var elements []string
	for _, id := range graph.IDs(search.Expand(ids, nil)) {
		elements = append(elements, g.Node(id).String())
	}
	return &AssertError{Rule: a.name, Message: a.message, Elements: elements}
}

// Transform rewrites the graph.
type Transform struct {
	name        string
	phase       Phase
	transformer transform.Transformer
}

var _ Rule = (*Transform)(nil)

func NewTransform(name string, phase Phase, t transform.Transformer) *Transform {
	return &Transform{name: name, phase: phase, transformer: t}
}

// NewContraction builds a transform that contracts e.Match to a fixpoint.
func NewContraction(name string, phase Phase, e Expression, mode transform.Mode) *Transform {
	return NewTransform(name, phase, transform.MustContracted(e.Match, mode))
}

// NewInsertion builds a transform that adds a node of the given kind and
// role next to the primary node of each match of e.
func NewInsertion(name string, phase Phase, e Expression, kind graph.Kind, role graph.Role, placement transform.Placement) *Transform {
	return NewTransform(name, phase,
		transform.MustInsertion(e.Contraction, e.Match, kind, role, placement, kind.String()))
}

func (t *Transform) Name() string { return t.name }
func (t *Transform) Phase() Phase { return t.phase }

func (t *Transform) Pattern() *expr.ExpressionGraph {
	return t.transformer.Pattern()
}

func (t *Transform) Apply(ctx *expr.Context, g *graph.Graph) (*transform.Transformed, error) {
	out, err := t.transformer.Transform(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	return out, nil
}

// Partition carves the graph.  A fallback partition runs only when every
// other partition of its phase came up empty.
type Partition struct {
	name        string
	phase       Phase
	partitioner partition.Partitioner
	fallback    bool
}

var _ Rule = (*Partition)(nil)

func NewPartition(name string, phase Phase, p partition.Partitioner) *Partition {
	return &Partition{name: name, phase: phase, partitioner: p}
}

// NewFallback is like NewPartition but marks the rule as a fallback.
func NewFallback(name string, phase Phase, p partition.Partitioner) *Partition {
	r := NewPartition(name, phase, p)
	r.fallback = true
	return r
}

func (p *Partition) Name() string     { return p.name }
func (p *Partition) Phase() Phase     { return p.phase }
func (p *Partition) IsFallback() bool { return p.fallback }

func (p *Partition) Partition(ctx *expr.Context, g *graph.Graph) (*partition.Partitions, error) {
	out, err := p.partitioner.Partition(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	return out, nil
}

func mustPartitioner[P partition.Partitioner](p P, err error) P {
	if err != nil {
		panic(err)
	}
	return p
}
