package finder

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/graph"
)

// Match is the result of one isomorphism search.  A Match is immutable once
// returned; accessors hand out copies of its sets.
type Match struct {
	found    bool
	pattern  *expr.ExpressionGraph
	host     *graph.Graph
	vertices []graph.ID
	arcEdges [][]graph.EdgeID
	captures map[expr.Capture]*roaring.Bitmap
	nodes    *roaring.Bitmap
	edges    *roaring.Bitmap
}

// NoMatch is returned by searches that find nothing.
var NoMatch = &Match{}

func (m *Match) Found() bool {
	return m.found
}

func (m *Match) Pattern() *expr.ExpressionGraph {
	return m.pattern
}

// Host returns the graph the match was found in.
func (m *Match) Host() *graph.Graph {
	return m.host
}

// Vertex returns the host node bound to the k'th pattern node.
func (m *Match) Vertex(k int) graph.ID {
	return m.vertices[k]
}

// ArcEdges returns the host edges bound to the k'th pattern arc.
func (m *Match) ArcEdges(k int) []graph.EdgeID {
	return m.arcEdges[k]
}

// Captured returns the host nodes claimed by tag.  The result is never nil.
func (m *Match) Captured(tag expr.Capture) *roaring.Bitmap {
	if set, ok := m.captures[tag]; ok {
		return set.Clone()
	}
	return roaring.New()
}

// Nodes returns every host node bound by the match.
func (m *Match) Nodes() *roaring.Bitmap {
	if m.nodes == nil {
		return roaring.New()
	}
	return m.nodes.Clone()
}

// Edges returns the host edges bound by capturing arcs.
func (m *Match) Edges() *roaring.Bitmap {
	if m.edges == nil {
		return roaring.New()
	}
	return m.edges.Clone()
}

// MatchedGraph returns the subgraph of the host spanned by the match.
func (m *Match) MatchedGraph() *graph.Graph {
	if !m.found {
		return graph.New()
	}
	return m.host.Subgraph(m.nodes, m.edges)
}

func (m *Match) union(other *Match) {
	m.nodes.Or(other.nodes)
	m.edges.Or(other.edges)
	for tag, set := range other.captures {
		if mine, ok := m.captures[tag]; ok {
			mine.Or(set)
		} else {
			m.captures[tag] = set.Clone()
		}
	}
}

func (m *Match) String() string {
	if !m.found {
		return "no match"
	}
	var b strings.Builder
	for k, id := range m.vertices {
		if k > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%d=%s", k, m.host.Node(id))
	}
	for _, tag := range []expr.Capture{expr.Primary, expr.Secondary} {
		if set, ok := m.captures[tag]; ok {
			fmt.Fprintf(&b, " %s%v", tag, graph.IDs(set))
		}
	}
	return b.String()
}
