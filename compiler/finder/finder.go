// Package finder implements subgraph-isomorphism search of an expression
// graph against a host graph.
//
// The search binds pattern nodes one at a time in a plan order derived from
// the pattern's search order, so every pattern node after the first is
// adjacent to one already bound.  The first pattern node is tried against
// every host node in the host's search order; later nodes only against
// neighbors of their bound pattern neighbor, also in host order.  The
// search backtracks on any failed element predicate, scope predicate, or
// edge assignment, and the first complete assignment found wins.  Given the
// same pattern and host, results are therefore deterministic.
package finder

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/graph"
	"go.uber.org/zap"
)

const DefaultMaxSteps = 1 << 20

var ErrSearchLimit = errors.New("isomorphism search exceeded its step limit")

// Finder searches for one pattern.  It holds no per-search state and is
// safe for concurrent use.
type Finder struct {
	pattern *expr.ExpressionGraph
	plan    []int
}

func New(pattern *expr.ExpressionGraph) (*Finder, error) {
	if err := pattern.Validate(); err != nil {
		return nil, err
	}
	pattern.Freeze()
	order, err := graph.Order(pattern, pattern.SearchOrder())
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", pattern, err)
	}
	return &Finder{
		pattern: pattern,
		plan:    connectedPlan(pattern, order),
	}, nil
}

// MustNew is like New but panics on an invalid pattern.
func MustNew(pattern *expr.ExpressionGraph) *Finder {
	f, err := New(pattern)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Finder) Pattern() *expr.ExpressionGraph {
	return f.pattern
}

// connectedPlan reorders the pattern nodes so each node after the first is
// adjacent to an earlier one whenever the pattern allows it.
func connectedPlan(pattern *expr.ExpressionGraph, order []graph.ID) []int {
	placed := make([]bool, pattern.Len())
	var plan []int
	adjacent := func(k int) bool {
		for _, a := range pattern.Edges() {
			if (a.From == k && placed[a.To]) || (a.To == k && placed[a.From]) {
				return true
			}
		}
		return false
	}
	for len(plan) < len(order) {
		next := -1
		for _, id := range order {
			if k := int(id); !placed[k] && adjacent(k) {
				next = k
				break
			}
		}
		if next < 0 {
			for _, id := range order {
				if !placed[id] {
					next = int(id)
					break
				}
			}
		}
		placed[next] = true
		plan = append(plan, next)
	}
	return plan
}

// FindFirstMatch returns the first match of the pattern in g whose
// primary-capturing bindings avoid excludes.
func (f *Finder) FindFirstMatch(ctx *expr.Context, g *graph.Graph, excludes *roaring.Bitmap) (*Match, error) {
	return f.FindMatchesOnPrimary(ctx, g, true, excludes)
}

// FindMatchesOnPrimary returns the first match of the pattern in g.  When
// firstOnly is false, the result is widened to the union of every match
// whose primary captures equal those of the first, e.g., all the branches
// feeding one captured group.
func (f *Finder) FindMatchesOnPrimary(ctx *expr.Context, g *graph.Graph, firstOnly bool, excludes *roaring.Bitmap) (*Match, error) {
	var first *Match
	s, err := f.newSearch(ctx, g, excludes, nil)
	if err != nil {
		return nil, err
	}
	if err := s.run(func(m *Match) bool {
		first = m
		return false
	}); err != nil {
		return nil, err
	}
	if first == nil {
		return NoMatch, nil
	}
	primary := first.Captured(expr.Primary)
	if firstOnly || primary.IsEmpty() {
		return first, nil
	}
	s, err = f.newSearch(ctx, g, excludes, primary)
	if err != nil {
		return nil, err
	}
	err = s.run(func(m *Match) bool {
		if m.Captured(expr.Primary).Equals(primary) {
			first.union(m)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return first, nil
}

// FindAllMatches returns successive matches, each excluding the primary
// captures of those before it, so no host node is primary in two matches.
func (f *Finder) FindAllMatches(ctx *expr.Context, g *graph.Graph, excludes *roaring.Bitmap) ([]*Match, error) {
	seen := roaring.New()
	if excludes != nil {
		seen.Or(excludes)
	}
	var matches []*Match
	for {
		m, err := f.FindFirstMatch(ctx, g, seen)
		if err != nil {
			return nil, err
		}
		if !m.Found() {
			return matches, nil
		}
		matches = append(matches, m)
		primary := m.Captured(expr.Primary)
		if primary.IsEmpty() {
			return matches, nil
		}
		seen.Or(primary)
	}
}

type search struct {
	ctx      *expr.Context
	pattern  *expr.ExpressionGraph
	plan     []int
	host     *graph.Graph
	rank     map[graph.ID]int
	anchors  []graph.ID
	excludes *roaring.Bitmap
	restrict *roaring.Bitmap
	vertices []graph.ID
	bound    []bool
	results  []expr.Result
	used     map[graph.ID]bool
	steps    int
	maxSteps int
	visit    func(*Match) bool
}

func (f *Finder) newSearch(ctx *expr.Context, g *graph.Graph, excludes, restrict *roaring.Bitmap) (*search, error) {
	if ctx == nil {
		ctx = expr.NewContext(nil, "")
	}
	anchors, err := graph.Order(g, f.pattern.SearchOrder())
	if err != nil {
		return nil, err
	}
	rank := make(map[graph.ID]int, len(anchors))
	for k, id := range anchors {
		rank[id] = k
	}
	maxSteps := ctx.MaxSearchSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	n := f.pattern.Len()
	return &search{
		ctx:      ctx,
		pattern:  f.pattern,
		plan:     f.plan,
		host:     g,
		rank:     rank,
		anchors:  anchors,
		excludes: excludes,
		restrict: restrict,
		vertices: make([]graph.ID, n),
		bound:    make([]bool, n),
		results:  make([]expr.Result, n),
		used:     make(map[graph.ID]bool),
		maxSteps: maxSteps,
	}, nil
}

// run calls visit with each complete match until visit returns false or
// the search space is exhausted.
func (s *search) run(visit func(*Match) bool) error {
	s.visit = visit
	_, err := s.extend(0)
	if errors.Is(err, ErrSearchLimit) {
		s.ctx.Logger.Warn("isomorphism search abandoned",
			zap.Stringer("pattern", s.pattern),
			zap.Int("steps", s.steps),
			zap.Int("host-nodes", s.host.NumNodes()))
	}
	return err
}

func (s *search) extend(depth int) (bool, error) {
	if depth == len(s.plan) {
		edges, ok := s.assignEdges()
		if !ok {
			return false, nil
		}
		return !s.visit(s.match(edges)), nil
	}
	p := s.plan[depth]
	element := s.pattern.Node(p)
	for _, h := range s.candidates(p) {
		s.steps++
		if s.steps > s.maxSteps {
			return true, ErrSearchLimit
		}
		if s.used[h] {
			continue
		}
		r := element.Eval(s.ctx, s.host, s.host.Node(h))
		if !r.Matched {
			continue
		}
		if r.Captures.Has(expr.Primary) {
			if s.excludes != nil && s.excludes.Contains(uint32(h)) {
				continue
			}
			if s.restrict != nil && !s.restrict.Contains(uint32(h)) {
				continue
			}
		}
		if !s.arcsHold(p, h) {
			continue
		}
		s.vertices[p], s.bound[p], s.results[p] = h, true, r
		s.used[h] = true
		stop, err := s.extend(depth + 1)
		s.bound[p] = false
		delete(s.used, h)
		if stop || err != nil {
			return true, err
		}
	}
	return false, nil
}

// candidates returns the host nodes to try for pattern node p in host
// search order.
func (s *search) candidates(p int) []graph.ID {
	for _, a := range s.pattern.Edges() {
		var ids []graph.ID
		switch {
		case a.From == p && a.To != p && s.bound[a.To]:
			ids = s.host.Predecessors(s.vertices[a.To])
		case a.To == p && a.From != p && s.bound[a.From]:
			ids = s.host.Successors(s.vertices[a.From])
		default:
			continue
		}
		slices.SortFunc(ids, func(x, y graph.ID) int {
			return cmp.Compare(s.rank[x], s.rank[y])
		})
		return ids
	}
	return s.anchors
}

// arcsHold checks every arc between p and a bound node as if p were bound
// to h.
func (s *search) arcsHold(p int, h graph.ID) bool {
	for _, a := range s.pattern.Edges() {
		var from, to graph.ID
		switch {
		case a.From == p && a.To == p:
			from, to = h, h
		case a.From == p && s.bound[a.To]:
			from, to = h, s.vertices[a.To]
		case a.To == p && s.bound[a.From]:
			from, to = s.vertices[a.From], h
		default:
			continue
		}
		if len(s.accepted(a, from, to)) == 0 {
			return false
		}
	}
	return true
}

// accepted returns the edges from -> to that arc a may bind.  For an
// all-edges arc this is every edge between them, or nothing if any edge
// is rejected.
func (s *search) accepted(a expr.Arc, from, to graph.ID) []*graph.Edge {
	edges := s.host.EdgesBetween(from, to)
	var out []*graph.Edge
	for _, e := range edges {
		if a.Scope.Applies(s.ctx, s.host, e) {
			out = append(out, e)
		} else if a.Scope.Mode() == expr.AllEdges {
			return nil
		}
	}
	return out
}

// assignEdges binds host edges to the pattern arcs.  Arcs matching a single
// edge must bind distinct edges so that parallel arcs match parallel edges.
func (s *search) assignEdges() ([][]graph.EdgeID, bool) {
	arcs := s.pattern.Edges()
	out := make([][]graph.EdgeID, len(arcs))
	taken := make(map[graph.EdgeID]bool)
	var assign func(k int) bool
	assign = func(k int) bool {
		if k == len(arcs) {
			return true
		}
		a := arcs[k]
		edges := s.accepted(a, s.vertices[a.From], s.vertices[a.To])
		if a.Scope.Mode() == expr.AllEdges {
			out[k] = out[k][:0]
			for _, e := range edges {
				out[k] = append(out[k], e.ID)
			}
			return len(edges) > 0 && assign(k+1)
		}
		for _, e := range edges {
			if taken[e.ID] {
				continue
			}
			taken[e.ID] = true
			out[k] = []graph.EdgeID{e.ID}
			if assign(k + 1) {
				return true
			}
			delete(taken, e.ID)
		}
		return false
	}
	if !assign(0) {
		return nil, false
	}
	return out, true
}

func (s *search) match(arcEdges [][]graph.EdgeID) *Match {
	m := &Match{
		found:    true,
		pattern:  s.pattern,
		host:     s.host,
		vertices: slices.Clone(s.vertices),
		arcEdges: arcEdges,
		captures: make(map[expr.Capture]*roaring.Bitmap),
		nodes:    roaring.New(),
		edges:    roaring.New(),
	}
	for k, h := range s.vertices {
		m.nodes.Add(uint32(h))
		for _, tag := range []expr.Capture{expr.Primary, expr.Secondary} {
			if s.results[k].Captures.Has(tag) {
				set, ok := m.captures[tag]
				if !ok {
					set = roaring.New()
					m.captures[tag] = set
				}
				set.Add(uint32(h))
			}
		}
	}
	for k, a := range s.pattern.Edges() {
		if a.Scope.Captures() {
			for _, id := range arcEdges[k] {
				m.edges.Add(uint32(id))
			}
		}
	}
	return m
}
