package planner

import (
	"testing"

	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/brimdata/pipeplan/compiler/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderSteps(t *testing.T) {
	g := graph.New()
	a := g.AddTap("a", graph.Source)
	b := g.AddTap("b", graph.Temp)
	c := g.AddTap("c", graph.Sink)
	second := &Step{Sources: []*graph.Node{b}, Sinks: []*graph.Node{c}}
	first := &Step{Sources: []*graph.Node{a}, Sinks: []*graph.Node{b}}
	steps, err := orderSteps([]*Step{second, first})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "(1/2) b", steps[0].Name)
	assert.Equal(t, 1, steps[0].Ordinal)
	assert.Equal(t, "(2/2) c", steps[1].Name)

	cyclic := &Step{Sources: []*graph.Node{c}, Sinks: []*graph.Node{a}}
	_, err = orderSteps([]*Step{first, second, cyclic})
	assert.ErrorIs(t, err, transform.ErrInvariant)
}

func TestNewStep(t *testing.T) {
	g := graph.New()
	in := g.AddTap("in", graph.Source)
	each := g.AddOperator(graph.Each, "parse", "bad")
	filter := g.AddOperator(graph.Each, "filter", "bad")
	out := g.AddTap("out", graph.Sink)
	g.AddEdge(in.ID, each.ID, graph.Scope{})
	g.AddEdge(each.ID, filter.ID, graph.Scope{})
	g.AddEdge(filter.ID, out.ID, graph.Scope{})
	s := newStep(g)
	assert.Equal(t, []string{"in"}, names(s.Sources))
	assert.Equal(t, []string{"out"}, names(s.Sinks))
	assert.Equal(t, []string{"bad"}, s.Traps)
}
