// Package expr provides the predicate vocabulary of the planner's pattern
// language: element expressions over host nodes, scope expressions over host
// edges, and the expression graphs that arrange them into patterns.
//
// Evaluation is referentially transparent.  Every element expression returns
// a Result carrying both whether it matched and which capture tags claim the
// node, and the combinators compose those results explicitly.
package expr

import (
	"fmt"
	"strings"

	"github.com/brimdata/pipeplan/compiler/graph"
	"go.uber.org/zap"
)

// Capture tags the pattern nodes whose host bindings are recorded in a match.
type Capture uint8

const (
	None Capture = iota
	Primary
	Secondary
)

func (c Capture) String() string {
	switch c {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	}
	return "none"
}

// Captures is a set of capture tags.
type Captures uint8

func (c Captures) Has(tag Capture) bool {
	return tag != None && c&(1<<tag) != 0
}

func (c Captures) With(tag Capture) Captures {
	if tag == None {
		return c
	}
	return c | 1<<tag
}

type Result struct {
	Matched  bool
	Captures Captures
}

// Context is passed to every predicate evaluation of one planning pass.
type Context struct {
	Logger   *zap.Logger
	Platform string
	// MaxSearchSteps bounds the work of a single isomorphism search.
	// Zero means the finder's default.
	MaxSearchSteps int
}

func NewContext(logger *zap.Logger, platform string) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{Logger: logger, Platform: platform}
}

type ElementExpression interface {
	Eval(*Context, *graph.Graph, *graph.Node) Result
	// Tags returns every capture tag the expression can produce.
	Tags() Captures
	String() string
}

type Predicate func(*Context, *graph.Graph, *graph.Node) bool

// Element is a leaf expression.  Elements are immutable; Capture returns a
// tagged copy.
type Element struct {
	name    string
	pred    Predicate
	capture Capture
}

var _ ElementExpression = (*Element)(nil)

func Func(name string, pred Predicate) *Element {
	return &Element{name: name, pred: pred}
}

func Any() *Element {
	return Func("any", func(*Context, *graph.Graph, *graph.Node) bool { return true })
}

func Kinds(kinds ...graph.Kind) *Element {
	var names []string
	for _, k := range kinds {
		names = append(names, k.String())
	}
	return Func(strings.Join(names, "|"), func(_ *Context, _ *graph.Graph, n *graph.Node) bool {
		for _, k := range kinds {
			if n.Kind == k {
				return true
			}
		}
		return false
	})
}

func Category(c graph.Category) *Element {
	return Func(c.String(), func(_ *Context, _ *graph.Graph, n *graph.Node) bool {
		return n.Kind.Is(c)
	})
}

func Topo(t Topology) *Element {
	return Func(t.String(), func(_ *Context, g *graph.Graph, n *graph.Node) bool {
		return t.holds(g, n.ID)
	})
}

func Role(r graph.Role) *Element {
	return Func("role="+r.String(), func(_ *Context, _ *graph.Graph, n *graph.Node) bool {
		return n.Role == r
	})
}

func Named(name string) *Element {
	return Func(fmt.Sprintf("name=%q", name), func(_ *Context, _ *graph.Graph, n *graph.Node) bool {
		return n.Name == name
	})
}

func (e *Element) Capture(tag Capture) *Element {
	out := *e
	out.capture = tag
	return &out
}

func (e *Element) Eval(ctx *Context, g *graph.Graph, n *graph.Node) Result {
	if !e.pred(ctx, g, n) {
		return Result{}
	}
	return Result{Matched: true, Captures: Captures(0).With(e.capture)}
}

func (e *Element) Tags() Captures {
	return Captures(0).With(e.capture)
}

func (e *Element) String() string {
	if e.capture == None {
		return e.name
	}
	return e.name + "@" + e.capture.String()
}

type and struct {
	children []ElementExpression
}

// And matches when every child matches, evaluating left to right and
// stopping at the first failure.  Captures of the children are unioned.
func And(children ...ElementExpression) ElementExpression {
	return &and{children: children}
}

func (a *and) Eval(ctx *Context, g *graph.Graph, n *graph.Node) Result {
	var caps Captures
	for _, c := range a.children {
		r := c.Eval(ctx, g, n)
		if !r.Matched {
			return Result{}
		}
		caps |= r.Captures
	}
	return Result{Matched: true, Captures: caps}
}

func (a *and) Tags() Captures {
	return unionTags(a.children)
}

func (a *and) String() string {
	return "(" + joinExprs(a.children, " && ") + ")"
}

type or struct {
	children []ElementExpression
}

// Or matches when some child matches, returning the result of the first
// matching child.
func Or(children ...ElementExpression) ElementExpression {
	return &or{children: children}
}

func (o *or) Eval(ctx *Context, g *graph.Graph, n *graph.Node) Result {
	for _, c := range o.children {
		if r := c.Eval(ctx, g, n); r.Matched {
			return r
		}
	}
	return Result{}
}

func (o *or) Tags() Captures {
	return unionTags(o.children)
}

func (o *or) String() string {
	return "(" + joinExprs(o.children, " || ") + ")"
}

type not struct {
	child ElementExpression
}

// Not inverts its child.  A negated expression never captures.
func Not(child ElementExpression) ElementExpression {
	return &not{child: child}
}

func (n *not) Eval(ctx *Context, g *graph.Graph, node *graph.Node) Result {
	return Result{Matched: !n.child.Eval(ctx, g, node).Matched}
}

func (*not) Tags() Captures {
	return 0
}

func (n *not) String() string {
	return "!" + n.child.String()
}

type captured struct {
	tag   Capture
	child ElementExpression
}

// Captured tags the node matched by child, e.g., to capture through a
// composite whose leaves carry no tag.
func Captured(tag Capture, child ElementExpression) ElementExpression {
	return &captured{tag: tag, child: child}
}

func (c *captured) Eval(ctx *Context, g *graph.Graph, n *graph.Node) Result {
	r := c.child.Eval(ctx, g, n)
	if r.Matched {
		r.Captures = r.Captures.With(c.tag)
	}
	return r
}

func (c *captured) Tags() Captures {
	return c.child.Tags().With(c.tag)
}

func (c *captured) String() string {
	return c.child.String() + "@" + c.tag.String()
}

func unionTags(exprs []ElementExpression) Captures {
	var caps Captures
	for _, e := range exprs {
		caps |= e.Tags()
	}
	return caps
}

func joinExprs(exprs []ElementExpression, sep string) string {
	var s []string
	for _, e := range exprs {
		s = append(s, e.String())
	}
	return strings.Join(s, sep)
}
