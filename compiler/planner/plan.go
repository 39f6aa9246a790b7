package planner

import (
	"fmt"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/brimdata/pipeplan/compiler/partition"
	"github.com/brimdata/pipeplan/compiler/transform"
	"github.com/segmentio/ksuid"
)

// Plan is the physical plan of one assembly.  Every graph in it shares the
// id space of Graph, the element graph left after the rewrite phases.
type Plan struct {
	ID       ksuid.KSUID
	Name     string
	Platform string
	Graph    *graph.Graph
	Steps    []*Step
}

// Step is a unit of scheduling.  A step that reads a tap is ordered after
// every step that writes it.
type Step struct {
	Ordinal int
	Name    string
	Graph   *graph.Graph
	Sources []*graph.Node
	Sinks   []*graph.Node
	Traps   []string
	Nodes   []*Node
}

// Node is a physical vertex of a step, split into pipelines.
type Node struct {
	Ordinal     int
	Graph       *graph.Graph
	Annotations *partition.Annotations
	Pipelines   []*graph.Graph
}

func newStep(g *graph.Graph) *Step {
	s := &Step{Graph: g}
	traps := make(map[string]struct{})
	for _, n := range g.Nodes() {
		if n.Trap != "" {
			traps[n.Trap] = struct{}{}
		}
		if n.Kind != graph.Tap {
			continue
		}
		if g.InDegree(n.ID) == 0 {
			s.Sources = append(s.Sources, n)
		}
		if g.OutDegree(n.ID) == 0 {
			s.Sinks = append(s.Sinks, n)
		}
	}
	for trap := range traps {
		s.Traps = append(s.Traps, trap)
	}
	slices.Sort(s.Traps)
	return s
}

func names(nodes []*graph.Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.String())
	}
	return out
}

// stepGraph orders steps by the taps they share.
type stepGraph struct {
	succ [][]graph.ID
	pred [][]graph.ID
}

var _ graph.Digraph = (*stepGraph)(nil)

func newStepGraph(steps []*Step) *stepGraph {
	sg := &stepGraph{
		succ: make([][]graph.ID, len(steps)),
		pred: make([][]graph.ID, len(steps)),
	}
	for i, writer := range steps {
		sinks := roaring.New()
		for _, n := range writer.Sinks {
			sinks.Add(uint32(n.ID))
		}
		for j, reader := range steps {
			if i == j {
				continue
			}
			for _, n := range reader.Sources {
				if sinks.Contains(uint32(n.ID)) {
					sg.succ[i] = append(sg.succ[i], graph.ID(j))
					sg.pred[j] = append(sg.pred[j], graph.ID(i))
					break
				}
			}
		}
	}
	return sg
}

func (s *stepGraph) IDs() []graph.ID {
	ids := make([]graph.ID, len(s.succ))
	for k := range ids {
		ids[k] = graph.ID(k)
	}
	return ids
}

func (s *stepGraph) Successors(id graph.ID) []graph.ID   { return s.succ[id] }
func (s *stepGraph) Predecessors(id graph.ID) []graph.ID { return s.pred[id] }

// orderSteps sorts steps so writers precede readers, keeping discovery
// order otherwise, then numbers and names them.
func orderSteps(steps []*Step) ([]*Step, error) {
	order, err := graph.Order(newStepGraph(steps), graph.Topological)
	if err != nil {
		return nil, fmt.Errorf("%w: steps depend on each other cyclically", transform.ErrInvariant)
	}
	out := make([]*Step, 0, len(steps))
	for k, id := range order {
		s := steps[id]
		s.Ordinal = k + 1
		s.Name = fmt.Sprintf("(%d/%d)", s.Ordinal, len(steps))
		if len(s.Sinks) > 0 {
			s.Name += " " + strings.Join(names(s.Sinks), ", ")
		}
		out = append(out, s)
	}
	return out, nil
}
