package expr

import (
	"fmt"

	"github.com/brimdata/pipeplan/compiler/graph"
)

// Applies says how many of the host edges between two bound nodes a scope
// expression must accept.
type Applies int

const (
	// AnyEdge needs at least one accepted edge.
	AnyEdge Applies = iota
	// AllEdges needs every edge to be accepted, and at least one edge.
	AllEdges
)

type ScopeExpression interface {
	Applies(*Context, *graph.Graph, *graph.Edge) bool
	Mode() Applies
	// Captures reports whether edges bound by this arc belong to the
	// matched graph.
	Captures() bool
	String() string
}

type scope struct {
	name    string
	mode    Applies
	capture bool
	pred    func(*graph.Edge) bool
}

func (s *scope) Applies(_ *Context, _ *graph.Graph, e *graph.Edge) bool {
	return s.pred(e)
}

func (s *scope) Mode() Applies  { return s.mode }
func (s *scope) Captures() bool { return s.capture }
func (s *scope) String() string { return s.name }

func anyEdge(*graph.Edge) bool       { return true }
func blocking(e *graph.Edge) bool    { return e.Scope.Blocking }
func nonBlocking(e *graph.Edge) bool { return !e.Scope.Blocking }

var (
	AnyScope            ScopeExpression = &scope{"any", AnyEdge, true, anyEdge}
	AllScope            ScopeExpression = &scope{"all", AllEdges, true, anyEdge}
	BlockingScope       ScopeExpression = &scope{"blocking", AnyEdge, true, blocking}
	NonBlockingScope    ScopeExpression = &scope{"non-blocking", AnyEdge, true, nonBlocking}
	AllBlockingScope    ScopeExpression = &scope{"all-blocking", AllEdges, true, blocking}
	AllNonBlockingScope ScopeExpression = &scope{"all-non-blocking", AllEdges, true, nonBlocking}
	// NoCaptureScope accepts any edge but leaves it out of the matched graph.
	NoCaptureScope ScopeExpression = &scope{"no-capture", AnyEdge, false, anyEdge}
)

func OrdinalScope(ordinal int) ScopeExpression {
	return &scope{
		name:    fmt.Sprintf("ordinal=%d", ordinal),
		mode:    AnyEdge,
		capture: true,
		pred:    func(e *graph.Edge) bool { return e.Scope.Ordinal == ordinal },
	}
}
