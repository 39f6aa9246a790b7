package graph

import (
	"fmt"
	"io"
	"strconv"

	"github.com/emicklei/dot"
)

var kindShapes = map[Kind]string{
	Head:       "invhouse",
	Tail:       "house",
	Tap:        "cylinder",
	Pipe:       "point",
	GroupBy:    "box3d",
	CoGroup:    "box3d",
	HashJoin:   "component",
	Merge:      "invtriangle",
	Checkpoint: "cylinder",
	Boundary:   "diamond",
}

// DOT renders g in Graphviz dot syntax with the given graph label.
func (g *Graph) DOT(label string) *dot.Graph {
	out := dot.NewGraph(dot.Directed)
	if label != "" {
		out.Attr("label", label)
	}
	nodes := make(map[ID]dot.Node)
	for _, n := range g.Nodes() {
		d := out.Node(strconv.Itoa(int(n.ID)))
		text := fmt.Sprintf("%s\n%s", n.Kind, n)
		if n.IsSynthetic() {
			text += fmt.Sprintf("\n%v", IDs(n.Members))
		}
		d.Label(text)
		if shape, ok := kindShapes[n.Kind]; ok {
			d.Attr("shape", shape)
		}
		nodes[n.ID] = d
	}
	for _, e := range g.Edges() {
		d := out.Edge(nodes[e.From], nodes[e.To])
		if e.Scope.Name != "" {
			d.Label(e.Scope.Name)
		}
		if e.Scope.Ordinal != 0 {
			d.Attr("taillabel", strconv.Itoa(e.Scope.Ordinal))
		}
		if e.Scope.Blocking {
			d.Attr("style", "dashed")
		}
	}
	return out
}

func (g *Graph) WriteDOT(w io.Writer, label string) error {
	_, err := io.WriteString(w, g.DOT(label).String())
	return err
}
