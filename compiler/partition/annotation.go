package partition

import (
	"fmt"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/finder"
	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/brimdata/pipeplan/compiler/transform"
)

type Annotation int

const (
	// Streamed marks the node a pipeline streams from.
	Streamed Annotation = iota
	// Accumulated marks nodes a pipeline reads in full before streaming,
	// e.g., the small side of a hash join.
	Accumulated
)

func (a Annotation) String() string {
	switch a {
	case Streamed:
		return "streamed"
	case Accumulated:
		return "accumulated"
	}
	return fmt.Sprintf("annotation(%d)", int(a))
}

// Annotations maps annotations to node ids, keeping keys in insertion
// order and ids ascending.
type Annotations struct {
	keys   []Annotation
	values map[Annotation]*roaring.Bitmap
}

func NewAnnotations() *Annotations {
	return &Annotations{values: make(map[Annotation]*roaring.Bitmap)}
}

func (a *Annotations) Add(key Annotation, ids ...graph.ID) {
	set, ok := a.values[key]
	if !ok {
		set = roaring.New()
		a.values[key] = set
		a.keys = append(a.keys, key)
	}
	for _, id := range ids {
		set.Add(uint32(id))
	}
}

func (a *Annotations) Get(key Annotation) []graph.ID {
	return graph.IDs(a.values[key])
}

func (a *Annotations) Has(key Annotation, id graph.ID) bool {
	set, ok := a.values[key]
	return ok && set.Contains(uint32(id))
}

func (a *Annotations) Keys() []Annotation {
	return slices.Clone(a.keys)
}

func (a *Annotations) Len() int {
	return len(a.keys)
}

func (a *Annotations) String() string {
	var parts []string
	for _, key := range a.keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, a.Get(key)))
	}
	return strings.Join(parts, " ")
}

// AnnotationRule annotates the primary nodes of every match of Expression
// in a partition, searched after applying the optional Contraction.
type AnnotationRule struct {
	Annotation  Annotation
	Contraction *transform.Contracted
	Expression  *expr.ExpressionGraph
}

type annotator struct {
	annotation  Annotation
	contraction *transform.Contracted
	finder      *finder.Finder
}

func compileAnnotations(rules []AnnotationRule) ([]annotator, error) {
	var out []annotator
	for _, r := range rules {
		if r.Expression == nil {
			return nil, fmt.Errorf("annotation %s has no expression", r.Annotation)
		}
		f, err := finder.New(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("annotation %s: %w", r.Annotation, err)
		}
		out = append(out, annotator{r.Annotation, r.Contraction, f})
	}
	return out, nil
}

func annotate(ctx *expr.Context, annotators []annotator, g *graph.Graph) (*Annotations, error) {
	out := NewAnnotations()
	for _, a := range annotators {
		search := g
		if a.contraction != nil {
			t, err := a.contraction.Transform(ctx, g)
			if err != nil {
				return nil, err
			}
			search = t.End
		}
		matches, err := a.finder.FindAllMatches(ctx, search, nil)
		if err != nil {
			return nil, err
		}
		ids := roaring.New()
		for _, m := range matches {
			ids.Or(search.Expand(m.Captured(expr.Primary), nil))
		}
		if !ids.IsEmpty() {
			out.Add(a.annotation, graph.IDs(ids)...)
		}
	}
	return out, nil
}
