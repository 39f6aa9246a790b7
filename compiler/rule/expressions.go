package rule

import (
	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/brimdata/pipeplan/compiler/transform"
)

// Expression pairs an optional contraction, applied to the host graph
// first, with the pattern searched in the contracted result.
type Expression struct {
	Contraction *transform.Contracted
	Match       *expr.ExpressionGraph
}

// The constructors below return fresh patterns on every call since a
// pattern freezes on first use.

// chain arcs exprs in sequence, binding every edge between each pair so
// that parallel edges left by elision all land in the match.
func chain(exprs ...expr.ElementExpression) *expr.ExpressionGraph {
	g := expr.NewExpressionGraph(graph.Topological).Declare(exprs...)
	for k := 1; k < len(exprs); k++ {
		g.Arc(exprs[k-1], expr.AllScope, exprs[k])
	}
	return g
}

func keep(c graph.Category) *expr.ExpressionGraph {
	return expr.NewExpressionGraph(graph.Topological,
		expr.Captured(expr.Primary, expr.Not(expr.Category(c|graph.Extents))))
}

// NoGroupTap elides everything but taps and groups.
func NoGroupTap() *transform.Contracted {
	return transform.MustContracted(keep(graph.Taps|graph.Groups), transform.Elide)
}

// NoGroupBoundaryTap elides everything but taps, groups, and boundaries.
func NoGroupBoundaryTap() *transform.Contracted {
	return transform.MustContracted(keep(graph.Taps|graph.Groups|graph.Boundaries), transform.Elide)
}

// NoGroupJoinMergeBoundaryTap leaves only the nodes where streams start,
// end, or meet.
func NoGroupJoinMergeBoundaryTap() *transform.Contracted {
	return transform.MustContracted(
		keep(graph.Taps|graph.Groups|graph.Joins|graph.Merges|graph.Boundaries),
		transform.Elide)
}

// NoLinearOperator elides operators and no-ops with one input and one output.
func NoLinearOperator() *transform.Contracted {
	linear := expr.And(
		expr.Or(expr.Category(graph.Operators), expr.Category(graph.NoOps)),
		expr.Topo(expr.Linear))
	return transform.MustContracted(
		expr.NewExpressionGraph(graph.Topological, expr.Captured(expr.Primary, linear)),
		transform.Elide)
}

// StreamedChain collapses runs of nodes joined by single non-blocking edges.
// Each collapsed pair is the only exit of its first node and the only
// entrance of its second, so collapsing never creates a cycle.
func StreamedChain() *transform.Contracted {
	from := expr.Topo(expr.LinearOut)
	to := expr.Topo(expr.LinearIn).Capture(expr.Primary)
	pattern := expr.NewExpressionGraph(graph.ReverseTopological).
		Declare(from, to).
		Arc(from, expr.NonBlockingScope, to)
	return transform.MustContracted(pattern, transform.Collapse)
}

// ConsecutiveNoOps matches adjacent no-ops, tail first.
func ConsecutiveNoOps() Expression {
	return Expression{
		Match: expr.NewExpressionGraph(graph.ReverseTopological,
			expr.Category(graph.NoOps),
			expr.Category(graph.NoOps).Capture(expr.Primary)),
	}
}

func LoneNoOp() Expression {
	return Expression{
		Match: expr.NewExpressionGraph(graph.Topological,
			expr.Category(graph.NoOps).Capture(expr.Primary)),
	}
}

// EveryWithoutGroup matches an Every not directly preceded by a group or
// another Every.
func EveryWithoutGroup() Expression {
	return Expression{
		Match: expr.NewExpressionGraph(graph.Topological,
			expr.Not(expr.Or(expr.Category(graph.Groups), expr.Kinds(graph.Every))),
			expr.Kinds(graph.Every).Capture(expr.Primary)),
	}
}

// TapGroupTap matches the taps read and written around one group.
func TapGroupTap() Expression {
	return Expression{
		Contraction: NoGroupTap(),
		Match: chain(
			expr.Kinds(graph.Tap).Capture(expr.Secondary),
			expr.Category(graph.Groups).Capture(expr.Primary),
			expr.Kinds(graph.Tap).Capture(expr.Secondary)),
	}
}

// ConsecutiveTaps matches a tap written from another tap with no group
// between.
func ConsecutiveTaps() Expression {
	return Expression{
		Contraction: NoGroupTap(),
		Match: chain(
			expr.Kinds(graph.Tap).Capture(expr.Secondary),
			expr.Kinds(graph.Tap).Capture(expr.Primary)),
	}
}

// TapGroup matches the taps feeding a group.
func TapGroup() Expression {
	return Expression{
		Contraction: NoGroupTap(),
		Match: chain(
			expr.Kinds(graph.Tap).Capture(expr.Secondary),
			expr.Category(graph.Groups).Capture(expr.Primary)),
	}
}

// GroupTap matches a group and the taps it directly writes.
func GroupTap() Expression {
	return Expression{
		Contraction: NoGroupTap(),
		Match: chain(
			expr.Category(graph.Groups).Capture(expr.Primary),
			expr.Kinds(graph.Tap).Capture(expr.Secondary)),
	}
}

// GroupToGroup matches a group feeding another group with no tap between.
func GroupToGroup() Expression {
	return Expression{
		Contraction: NoGroupTap(),
		Match: expr.NewExpressionGraph(graph.Topological,
			expr.Category(graph.Groups),
			expr.Category(graph.Groups).Capture(expr.Primary)),
	}
}

// BalanceGroupSplitTriangle matches an operator after a group whose
// branches meet again at a splice.
func BalanceGroupSplitTriangle() Expression {
	group := expr.Category(graph.Groups)
	split := expr.Captured(expr.Primary, expr.And(expr.Category(graph.Operators), expr.Topo(expr.Split)))
	splice := expr.Category(graph.Splices)
	return Expression{
		Contraction: NoLinearOperator(),
		Match: expr.NewExpressionGraph(graph.Topological).
			Declare(group, split, splice).
			Arc(group, expr.AnyScope, split).
			Arc(split, expr.AnyScope, splice).
			Arc(split, expr.AnyScope, splice),
	}
}

// CheckpointNotTap matches a checkpoint whose output is not a tap.
func CheckpointNotTap() Expression {
	return Expression{
		Match: expr.NewExpressionGraph(graph.Topological,
			expr.Kinds(graph.Checkpoint).Capture(expr.Primary),
			expr.Not(expr.Kinds(graph.Tap))),
	}
}

// SplitBeforeJoin matches a split feeding both the streamed and the
// accumulated side of the same hash join with no boundary between.  The
// blocking arc binds the accumulated side.
func SplitBeforeJoin() Expression {
	split := expr.Captured(expr.Primary, expr.And(
		expr.Topo(expr.Split),
		expr.Not(expr.Category(graph.Boundaries|graph.Extents))))
	join := expr.Kinds(graph.HashJoin)
	return Expression{
		Contraction: NoLinearOperator(),
		Match: expr.NewExpressionGraph(graph.Topological).
			Declare(split, join).
			Arc(split, expr.NonBlockingScope, join).
			Arc(split, expr.BlockingScope, join),
	}
}

// BoundaryToBoundary matches the region between two physical boundaries:
// taps, groups, or boundaries.
func BoundaryToBoundary() Expression {
	edge := func() expr.ElementExpression {
		return expr.Or(expr.Category(graph.Taps), expr.Category(graph.Groups), expr.Category(graph.Boundaries))
	}
	return Expression{
		Contraction: NoGroupBoundaryTap(),
		Match: chain(
			expr.Captured(expr.Secondary, edge()),
			expr.Captured(expr.Primary, edge())),
	}
}

// StreamedPipeline matches a streamed chain and everything it streams into
// without crossing a blocking edge.
func StreamedPipeline() Expression {
	from := expr.Any().Capture(expr.Primary)
	to := expr.Any()
	return Expression{
		Contraction: StreamedChain(),
		Match: expr.NewExpressionGraph(graph.Topological).
			Declare(from, to).
			Arc(from, expr.NonBlockingScope, to),
	}
}

// AccumulatedTap matches the sources read in full by a hash join.
func AccumulatedTap() Expression {
	source := expr.Captured(expr.Primary, expr.Not(expr.Category(graph.Joins)))
	join := expr.Kinds(graph.HashJoin)
	return Expression{
		Contraction: NoGroupJoinMergeBoundaryTap(),
		Match: expr.NewExpressionGraph(graph.Topological).
			Declare(source, join).
			Arc(source, expr.AllBlockingScope, join),
	}
}

// StreamedTap matches the sources of a graph whose output is streamed.
func StreamedTap() Expression {
	source := expr.Captured(expr.Primary, expr.Topo(expr.TopoHead))
	next := expr.Any()
	return Expression{
		Contraction: NoGroupJoinMergeBoundaryTap(),
		Match: expr.NewExpressionGraph(graph.Topological).
			Declare(source, next).
			Arc(source, expr.NonBlockingScope, next),
	}
}
