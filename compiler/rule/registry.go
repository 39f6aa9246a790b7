package rule

import (
	"fmt"
	"slices"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/brimdata/pipeplan/compiler/partition"
	"github.com/brimdata/pipeplan/compiler/transform"
)

// Registry is the ordered rule set for one platform.  Rules of a phase run
// in the order they were added.
type Registry struct {
	name     string
	rules    []Rule
	disabled map[string]bool
}

func NewRegistry(name string) *Registry {
	return &Registry{name: name, disabled: make(map[string]bool)}
}

func (r *Registry) Name() string {
	return r.name
}

// Add appends rules to the registry.  It panics if a name is reused.
func (r *Registry) Add(rules ...Rule) *Registry {
	for _, rule := range rules {
		if r.find(rule.Name()) != nil {
			panic(fmt.Sprintf("registry %s: duplicate rule %s", r.name, rule.Name()))
		}
		r.rules = append(r.rules, rule)
	}
	return r
}

func (r *Registry) find(name string) Rule {
	for _, rule := range r.rules {
		if rule.Name() == name {
			return rule
		}
	}
	return nil
}

// All returns every rule, disabled or not, in phase order.
func (r *Registry) All() []Rule {
	out := slices.Clone(r.rules)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Phase() < out[j].Phase()
	})
	return out
}

// Rules returns the enabled rules of phase.
func (r *Registry) Rules(phase Phase) []Rule {
	var out []Rule
	for _, rule := range r.rules {
		if rule.Phase() == phase && !r.disabled[rule.Name()] {
			out = append(out, rule)
		}
	}
	return out
}

func (r *Registry) IsDisabled(name string) bool {
	return r.disabled[name]
}

// Disable turns off the named rules.  An unknown name is an error and
// leaves the registry unchanged.
func (r *Registry) Disable(names ...string) error {
	for _, name := range names {
		if r.find(name) == nil {
			var known []string
			for _, rule := range r.rules {
				known = append(known, rule.Name())
			}
			return fmt.Errorf("%s: no such rule%s", name, suggest(name, known))
		}
	}
	for _, name := range names {
		r.disabled[name] = true
	}
	return nil
}

// suggest returns a hint naming the candidate closest to name, or "" if
// none is close.
func suggest(name string, candidates []string) string {
	best, dist := "", len(name)/2+1
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d < dist {
			best, dist = c, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

var Platforms = []string{"local", "mapreduce", "dag"}

// Lookup returns a fresh registry for platform.
func Lookup(platform string) (*Registry, error) {
	switch platform {
	case "local":
		return Local(), nil
	case "mapreduce":
		return MapReduce(), nil
	case "dag":
		return DAG(), nil
	}
	return nil, fmt.Errorf("%s: unknown platform%s", platform, suggest(platform, Platforms))
}

// common adds the cleanup and assertions every platform runs before
// balancing.
func common(r *Registry) *Registry {
	return r.Add(
		NewContraction("collapse-consecutive-noops", PreBalance, ConsecutiveNoOps(), transform.Collapse),
		NewContraction("elide-noops", PreBalance, LoneNoOp(), transform.Elide),
		NewAssert("assert-every-after-group", PreBalance, EveryWithoutGroup(),
			"every must follow a group or another every"),
	)
}

func annotations() []partition.AnnotationRule {
	streamed, accumulated := StreamedTap(), AccumulatedTap()
	return []partition.AnnotationRule{
		{Annotation: partition.Streamed, Contraction: streamed.Contraction, Expression: streamed.Match},
		{Annotation: partition.Accumulated, Contraction: accumulated.Contraction, Expression: accumulated.Match},
	}
}

func pipelines(r *Registry) *Registry {
	p := StreamedPipeline()
	return r.Add(NewPartition("partition-pipelines", PartitionPipelines,
		mustPartitioner(partition.NewUniquePath("pipelines", p.Contraction, p.Match, true))))
}

// Local plans for a single process: one step holding one node.
func Local() *Registry {
	r := common(NewRegistry("local"))
	r.Add(
		NewPartition("partition-whole-step", PartitionSteps,
			mustPartitioner(partition.NewWholeGraph("steps"))),
		NewPartition("partition-whole-node", PartitionNodes,
			mustPartitioner(partition.NewWholeGraph("nodes", annotations()...))),
	)
	return pipelines(r)
}

// MapReduce plans one step per group, each step a map node and a reduce
// node, with temporary taps between steps.
func MapReduce() *Registry {
	r := common(NewRegistry("mapreduce"))
	tapGroupTap, consecutiveTaps := TapGroupTap(), ConsecutiveTaps()
	tapGroup, groupTap := TapGroup(), GroupTap()
	r.Add(
		NewInsertion("balance-checkpoint", Balance, CheckpointNotTap(), graph.Tap, graph.Temp, transform.After),
		NewInsertion("balance-group-split-triangle", Balance, BalanceGroupSplitTriangle(), graph.Tap, graph.Temp, transform.After),
		NewInsertion("balance-group-to-group", Balance, GroupToGroup(), graph.Tap, graph.Temp, transform.Before),
		NewPartition("partition-group-steps", PartitionSteps,
			mustPartitioner(partition.NewExpression("steps", tapGroupTap.Contraction, tapGroupTap.Match))),
		NewPartition("partition-map-only-steps", PartitionSteps,
			mustPartitioner(partition.NewExpression("steps", consecutiveTaps.Contraction, consecutiveTaps.Match))),
		NewFallback("partition-whole-step", PartitionSteps,
			mustPartitioner(partition.NewWholeGraph("steps"))),
		NewPartition("partition-map-nodes", PartitionNodes,
			mustPartitioner(partition.NewExpression("map", tapGroup.Contraction, tapGroup.Match, annotations()...))),
		NewPartition("partition-reduce-nodes", PartitionNodes,
			mustPartitioner(partition.NewExpression("reduce", groupTap.Contraction, groupTap.Match, annotations()...))),
		NewFallback("partition-whole-node", PartitionNodes,
			mustPartitioner(partition.NewWholeGraph("nodes", annotations()...))),
	)
	return pipelines(r)
}

// DAG plans one step holding a node per region between physical
// boundaries.
func DAG() *Registry {
	r := common(NewRegistry("dag"))
	boundaries := BoundaryToBoundary()
	r.Add(
		NewInsertion("balance-checkpoint", Balance, CheckpointNotTap(), graph.Tap, graph.Temp, transform.After),
		NewInsertion("balance-split-before-join", Balance, SplitBeforeJoin(), graph.Boundary, graph.NoRole, transform.OnBlocking),
		NewPartition("partition-whole-step", PartitionSteps,
			mustPartitioner(partition.NewWholeGraph("steps"))),
		NewPartition("partition-boundary-nodes", PartitionNodes,
			mustPartitioner(partition.NewExpression("nodes", boundaries.Contraction, boundaries.Match, annotations()...))),
		NewFallback("partition-whole-node", PartitionNodes,
			mustPartitioner(partition.NewWholeGraph("nodes", annotations()...))),
	)
	return pipelines(r)
}
