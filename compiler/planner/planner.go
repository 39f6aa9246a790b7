// Package planner drives the rules of a platform registry over an assembly
// graph.  The rewrite phases run first, each rule to its own fixpoint;
// the partition phases then carve the result into steps, each step into
// nodes, and each node into pipelines.
package planner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/brimdata/pipeplan/compiler/assembly"
	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/brimdata/pipeplan/compiler/partition"
	"github.com/brimdata/pipeplan/compiler/rule"
	"github.com/brimdata/pipeplan/compiler/transform"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Planner struct {
	config   Config
	registry *rule.Registry
	logger   *zap.Logger
	metrics  *Metrics
}

// New returns a planner for config.Platform.  Logger and metrics may be nil.
func New(config Config, logger *zap.Logger, metrics *Metrics) (*Planner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	registry, err := config.registry()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Planner{
		config:   config,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

func (p *Planner) Registry() *rule.Registry {
	return p.registry
}

// PlanAll plans each assembly on its own graph, at most
// Config.Parallelism at a time.  Plans are returned in the order of
// assemblies.
func (p *Planner) PlanAll(ctx context.Context, assemblies []*assembly.Assembly) ([]*Plan, error) {
	plans := make([]*Plan, len(assemblies))
	group, ctx := errgroup.WithContext(ctx)
	if p.config.Parallelism > 0 {
		group.SetLimit(p.config.Parallelism)
	}
	for k, asm := range assemblies {
		group.Go(func() error {
			plan, err := p.Plan(ctx, asm)
			if err != nil {
				return fmt.Errorf("%s: %w", asm.Name, err)
			}
			plans[k] = plan
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (p *Planner) Plan(ctx context.Context, asm *assembly.Assembly) (*Plan, error) {
	start := time.Now()
	plan, err := p.plan(ctx, asm)
	platform := p.registry.Name()
	p.metrics.PlanDuration.WithLabelValues(platform).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.metrics.Plans.WithLabelValues(platform, outcome).Inc()
	return plan, err
}

func (p *Planner) plan(ctx context.Context, asm *assembly.Assembly) (*Plan, error) {
	g, err := asm.Graph()
	if err != nil {
		return nil, err
	}
	plan := &Plan{
		ID:       ksuid.New(),
		Name:     asm.Name,
		Platform: p.registry.Name(),
	}
	logger := p.logger.With(zap.Stringer("plan", plan.ID), zap.String("assembly", asm.Name))
	ectx := expr.NewContext(logger, plan.Platform)
	ectx.MaxSearchSteps = p.config.MaxSearchSteps
	r := &run{
		planner: p,
		plan:    plan,
		ectx:    ectx,
		logger:  logger,
	}
	if g, err = r.rewrite(ctx, g); err != nil {
		return nil, err
	}
	plan.Graph = g
	if err := r.partition(ctx); err != nil {
		return nil, err
	}
	if err := r.trace("element-graph", func(dir string) error {
		return writeDOT(dir, "element-graph.dot", g.DOT(plan.Name))
	}); err != nil {
		return nil, err
	}
	logger.Info("planned assembly",
		zap.String("platform", plan.Platform),
		zap.Int("steps", len(plan.Steps)))
	return plan, nil
}

// run carries the state of planning one assembly.
type run struct {
	planner *Planner
	plan    *Plan
	ectx    *expr.Context
	logger  *zap.Logger
	seq     int
}

func (r *run) rewrite(ctx context.Context, g *graph.Graph) (*graph.Graph, error) {
	for _, phase := range rule.Phases {
		if phase.IsPartition() {
			break
		}
		for _, rl := range r.planner.registry.Rules(phase) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			switch rl := rl.(type) {
			case *rule.Assert:
				if err := rl.Check(r.ectx, g); err != nil {
					return nil, err
				}
			case *rule.Transform:
				out, err := rl.Apply(r.ectx, g)
				if err != nil {
					return nil, err
				}
				r.logger.Debug("applied rule",
					zap.Stringer("phase", phase),
					zap.String("rule", rl.Name()),
					zap.Int("matches", len(out.Matches)))
				if len(out.Matches) == 0 {
					continue
				}
				if err := out.End.Validate(); err != nil {
					return nil, fmt.Errorf("%w: rule %s: %w", transform.ErrInvariant, rl.Name(), err)
				}
				r.planner.metrics.RuleApplications.WithLabelValues(r.plan.Platform, rl.Name()).Inc()
				g = out.End
				end := g
				if err := r.trace(fmt.Sprintf("%s-%s", phase, rl.Name()), func(dir string) error {
					return writeDOT(dir, "result-graph.dot", end.DOT(rl.Name()))
				}); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("rule %s cannot run in phase %s", rl.Name(), phase)
			}
		}
	}
	return g, nil
}

func (r *run) partition(ctx context.Context) error {
	stepParts, err := r.partitions(ctx, rule.PartitionSteps, r.plan.Graph)
	if err != nil {
		return err
	}
	var steps []*Step
	for _, sp := range stepParts {
		step := newStep(sp.graph)
		nodeParts, err := r.partitions(ctx, rule.PartitionNodes, sp.graph)
		if err != nil {
			return err
		}
		for k, np := range nodeParts {
			node := &Node{
				Ordinal:     k + 1,
				Graph:       np.graph,
				Annotations: np.annotations,
			}
			pipelines, err := r.partitions(ctx, rule.PartitionPipelines, np.graph)
			if err != nil {
				return err
			}
			for _, pp := range pipelines {
				node.Pipelines = append(node.Pipelines, pp.graph)
			}
			step.Nodes = append(step.Nodes, node)
		}
		steps = append(steps, step)
	}
	r.plan.Steps, err = orderSteps(steps)
	return err
}

type part struct {
	graph       *graph.Graph
	annotations *partition.Annotations
}

// partitions runs the partition rules of phase over g and returns the
// distinct subgraphs they produce.  Fallback rules run only if the others
// produce nothing.  Together the subgraphs must cover every node of g but
// the head and tail.
func (r *run) partitions(ctx context.Context, phase rule.Phase, g *graph.Graph) ([]part, error) {
	var out []part
	collect := func(fallback bool) error {
		for _, rl := range r.planner.registry.Rules(phase) {
			if err := ctx.Err(); err != nil {
				return err
			}
			switch rl := rl.(type) {
			case *rule.Assert:
				if !fallback {
					if err := rl.Check(r.ectx, g); err != nil {
						return err
					}
				}
			case *rule.Partition:
				if rl.IsFallback() != fallback {
					continue
				}
				parts, err := rl.Partition(r.ectx, g)
				if err != nil {
					return err
				}
				r.logger.Debug("applied rule",
					zap.Stringer("phase", phase),
					zap.String("rule", rl.Name()),
					zap.Int("partitions", parts.Len()))
				if parts.Len() == 0 {
					continue
				}
				r.planner.metrics.RuleApplications.WithLabelValues(r.plan.Platform, rl.Name()).Inc()
				r.planner.metrics.Partitions.WithLabelValues(r.plan.Platform, phase.String()).Add(float64(parts.Len()))
				if err := r.trace(fmt.Sprintf("%s-%s", phase, rl.Name()), parts.WriteDOT); err != nil {
					return err
				}
				for k, sub := range parts.SubGraphs {
					out = appendDistinct(out, part{sub, parts.Annotations[k]})
				}
			default:
				return fmt.Errorf("rule %s cannot run in phase %s", rl.Name(), phase)
			}
		}
		return nil
	}
	if err := collect(false); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		if err := collect(true); err != nil {
			return nil, err
		}
	}
	missing := g.NodeSet()
	missing.AndNot(g.Extents())
	for _, p := range out {
		missing.AndNot(p.graph.NodeSet())
	}
	if !missing.IsEmpty() {
		return nil, fmt.Errorf("%w: %s left %s outside every partition", transform.ErrInvariant, phase, nodeNames(g, missing))
	}
	return out, nil
}

func appendDistinct(parts []part, p part) []part {
	set := p.graph.NodeSet()
	for _, q := range parts {
		if q.graph.NodeSet().Equals(set) {
			return parts
		}
	}
	return append(parts, p)
}

func nodeNames(g *graph.Graph, set *roaring.Bitmap) []string {
	var out []string
	for _, id := range graph.IDs(set) {
		out = append(out, g.Node(id).String())
	}
	return out
}

// trace calls write with a fresh directory under the plan's trace
// directory, if tracing is enabled.
func (r *run) trace(name string, write func(dir string) error) error {
	root := r.planner.config.TracePath
	if root == "" {
		return nil
	}
	dir := filepath.Join(root, r.plan.ID.String(), fmt.Sprintf("%02d-%s", r.seq, name))
	r.seq++
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return write(dir)
}

type dotter interface {
	String() string
}

func writeDOT(dir, name string, g dotter) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(g.String()), 0644)
}
