package expr

import (
	"fmt"

	"github.com/brimdata/pipeplan/compiler/graph"
)

// Topology classifies a node by the edges incident to it in the graph
// being searched.  Parallel edges count separately.
type Topology int

const (
	TopoHead Topology = iota
	TopoTail
	Linear
	LinearIn
	LinearOut
	Split
	SplitOnly
	Splice
	SpliceOnly
)

var topologyNames = [...]string{
	TopoHead:   "head",
	TopoTail:   "tail",
	Linear:     "linear",
	LinearIn:   "linear-in",
	LinearOut:  "linear-out",
	Split:      "split",
	SplitOnly:  "split-only",
	Splice:     "splice",
	SpliceOnly: "splice-only",
}

func (t Topology) String() string {
	if t >= 0 && int(t) < len(topologyNames) {
		return topologyNames[t]
	}
	return fmt.Sprintf("topology(%d)", int(t))
}

func (t Topology) holds(g *graph.Graph, id graph.ID) bool {
	in, out := g.InDegree(id), g.OutDegree(id)
	switch t {
	case TopoHead:
		return in == 0
	case TopoTail:
		return out == 0
	case Linear:
		return in == 1 && out == 1
	case LinearIn:
		return in == 1
	case LinearOut:
		return out == 1
	case Split:
		return out > 1
	case SplitOnly:
		return out > 1 && in <= 1
	case Splice:
		return in > 1
	case SpliceOnly:
		return in > 1 && out <= 1
	}
	return false
}
