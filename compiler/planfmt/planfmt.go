// Package planfmt renders plans as deterministic text for humans and tests.
// Plan ids are left out since they differ from run to run.
package planfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/brimdata/pipeplan/compiler/partition"
	"github.com/brimdata/pipeplan/compiler/planner"
)

type formatter struct {
	strings.Builder
	indent int
}

func (f *formatter) line(format string, args ...any) {
	f.WriteString(strings.Repeat("  ", f.indent))
	fmt.Fprintf(f, format, args...)
	f.WriteByte('\n')
}

// Plan formats p.  Elements are listed by name in id order.
func Plan(p *planner.Plan) string {
	var f formatter
	f.line("plan %s platform=%s steps=%d", p.Name, p.Platform, len(p.Steps))
	for _, s := range p.Steps {
		f.step(s)
	}
	return f.String()
}

func Write(w io.Writer, p *planner.Plan) error {
	_, err := io.WriteString(w, Plan(p))
	return err
}

func (f *formatter) step(s *planner.Step) {
	f.line("step %s", s.Name)
	f.indent++
	f.line("sources: %s", nodes(s.Sources))
	f.line("sinks: %s", nodes(s.Sinks))
	if len(s.Traps) > 0 {
		f.line("traps: %s", strings.Join(s.Traps, ", "))
	}
	for _, n := range s.Nodes {
		f.node(s.Graph, n)
	}
	f.indent--
}

func (f *formatter) node(g *graph.Graph, n *planner.Node) {
	f.line("node %d: %s", n.Ordinal, Elements(n.Graph))
	f.indent++
	if n.Annotations != nil {
		for _, key := range n.Annotations.Keys() {
			f.line("%s: %s", key, annotated(g, n.Annotations, key))
		}
	}
	for k, p := range n.Pipelines {
		f.line("pipeline %d: %s", k+1, Elements(p))
	}
	f.indent--
}

// Elements lists the nodes of g by name in id order.
func Elements(g *graph.Graph) string {
	return nodes(g.Nodes())
}

func nodes(nodes []*graph.Node) string {
	if len(nodes) == 0 {
		return "-"
	}
	var names []string
	for _, n := range nodes {
		names = append(names, n.String())
	}
	return strings.Join(names, ", ")
}

func annotated(g *graph.Graph, a *partition.Annotations, key partition.Annotation) string {
	var out []*graph.Node
	for _, id := range a.Get(key) {
		out = append(out, g.Node(id))
	}
	return nodes(out)
}
