package planner_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brimdata/pipeplan/compiler/assembly"
	"github.com/brimdata/pipeplan/compiler/planfmt"
	"github.com/brimdata/pipeplan/compiler/planner"
	"github.com/brimdata/pipeplan/plantest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlans(t *testing.T) {
	plantest.Run(t, "testdata")
}

const wordcount = `
name: wordcount
elements:
  - {name: docs, kind: tap}
  - {name: split, kind: each, from: [docs]}
  - {name: rename, kind: pipe, from: [split]}
  - {name: group, kind: groupby, from: [rename]}
  - {name: count, kind: every, from: [group]}
  - {name: counts, kind: tap, from: [count]}
`

func parse(t *testing.T, s string) []*assembly.Assembly {
	assemblies, err := assembly.Parse([]byte(s))
	require.NoError(t, err)
	return assemblies
}

func newPlanner(t *testing.T, platform string, metrics *planner.Metrics) *planner.Planner {
	config := planner.DefaultConfig()
	config.Platform = platform
	p, err := planner.New(config, nil, metrics)
	require.NoError(t, err)
	return p
}

func TestPlanAll(t *testing.T) {
	var docs []string
	for _, name := range []string{"a", "b", "c", "d"} {
		docs = append(docs, strings.Replace(wordcount, "wordcount", name, 1))
	}
	assemblies := parse(t, strings.Join(docs, "---\n"))
	reg := prometheus.NewRegistry()
	metrics := planner.NewMetrics(reg)
	p := newPlanner(t, "mapreduce", metrics)
	plans, err := p.PlanAll(context.Background(), assemblies)
	require.NoError(t, err)
	require.Len(t, plans, 4)
	for k, plan := range plans {
		assert.Equal(t, assemblies[k].Name, plan.Name)
		require.Len(t, plan.Steps, 1)
		assert.Len(t, plan.Steps[0].Nodes, 2)
	}
	assert.NotEqual(t, plans[0].ID, plans[1].ID)
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.Plans.WithLabelValues("mapreduce", "ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.RuleApplications.WithLabelValues("mapreduce", "partition-group-steps")))
	assert.Equal(t, 8.0, testutil.ToFloat64(metrics.Partitions.WithLabelValues("mapreduce", "partition-nodes")))
}

func TestPlanAllError(t *testing.T) {
	assemblies := parse(t, wordcount+"---\n"+`
name: broken
elements:
  - {name: src, kind: tap}
  - {name: sum, kind: every, from: [src]}
  - {name: dst, kind: tap, from: [sum]}
`)
	_, err := newPlanner(t, "local", nil).PlanAll(context.Background(), assemblies)
	assert.EqualError(t, err, "broken: assert-every-after-group: every must follow a group or another every: sum")
}

func TestDeterministic(t *testing.T) {
	for _, platform := range []string{"local", "mapreduce", "dag"} {
		t.Run(platform, func(t *testing.T) {
			p := newPlanner(t, platform, nil)
			first, err := p.Plan(context.Background(), parse(t, wordcount)[0])
			require.NoError(t, err)
			for range 3 {
				again, err := p.Plan(context.Background(), parse(t, wordcount)[0])
				require.NoError(t, err)
				assert.Equal(t, planfmt.Plan(first), planfmt.Plan(again))
			}
		})
	}
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPlanner(t, "local", nil).Plan(ctx, parse(t, wordcount)[0])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrace(t *testing.T) {
	config := planner.DefaultConfig()
	config.Platform = "mapreduce"
	config.TracePath = t.TempDir()
	p, err := planner.New(config, nil, nil)
	require.NoError(t, err)
	plan, err := p.Plan(context.Background(), parse(t, wordcount)[0])
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(config.TracePath, plan.ID.String()))
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		dirs = append(dirs, e.Name())
	}
	assert.Equal(t, []string{
		"00-pre-balance-elide-noops",
		"01-partition-steps-partition-group-steps",
		"02-partition-nodes-partition-map-nodes",
		"03-partition-nodes-partition-reduce-nodes",
		"04-partition-pipelines-partition-pipelines",
		"05-partition-pipelines-partition-pipelines",
		"06-element-graph",
	}, dirs)
	_, err = os.Stat(filepath.Join(config.TracePath, plan.ID.String(), "01-partition-steps-partition-group-steps", "0000-element-graph.dot"))
	assert.NoError(t, err)
}

func TestConfig(t *testing.T) {
	c, err := planner.ParseConfig([]byte("platform: dag\ndisabled: [balance-checkpoint]\nparallelism: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, "dag", c.Platform)
	assert.Equal(t, []string{"balance-checkpoint"}, c.Disabled)
	assert.Equal(t, 2, c.Parallelism)

	_, err = planner.ParseConfig([]byte("platfrom: dag\n"))
	assert.Error(t, err)
	_, err = planner.ParseConfig([]byte("platform: dag\ndisabled: [xyz]\n"))
	assert.EqualError(t, err, "xyz: no such rule")
	_, err = planner.ParseConfig([]byte("max_search_steps: -1\n"))
	assert.EqualError(t, err, "max_search_steps must not be negative")

	path := filepath.Join(t.TempDir(), "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("platform: mapreduce\n"), 0644))
	c, err = planner.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mapreduce", c.Platform)
	p, err := planner.New(c, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "mapreduce", p.Registry().Name())
}
