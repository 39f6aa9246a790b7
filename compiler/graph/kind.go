package graph

import (
	"fmt"
	"strings"
)

// Kind is the element type of a node in a pipe-assembly graph.
type Kind uint8

const (
	Head Kind = iota
	Tail
	Tap
	Each
	Every
	Pipe
	GroupBy
	CoGroup
	HashJoin
	Merge
	Checkpoint
	Boundary
)

var kindNames = [...]string{
	Head:       "head",
	Tail:       "tail",
	Tap:        "tap",
	Each:       "each",
	Every:      "every",
	Pipe:       "pipe",
	GroupBy:    "groupby",
	CoGroup:    "cogroup",
	HashJoin:   "hashjoin",
	Merge:      "merge",
	Checkpoint: "checkpoint",
	Boundary:   "boundary",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(s)
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown element kind %q", s)
}

// Category is a set of kinds sharing an is-a relation, e.g., every GroupBy
// is a Group and every Group is a Splice.
type Category uint16

const (
	Extents Category = 1 << iota
	Taps
	Operators
	NoOps
	Splices
	Groups
	Joins
	Merges
	Checkpoints
	Boundaries

	AnyCategory Category = 1<<iota - 1
)

var kindCategories = [...]Category{
	Head:       Extents,
	Tail:       Extents,
	Tap:        Taps,
	Each:       Operators,
	Every:      Operators,
	Pipe:       NoOps,
	GroupBy:    Splices | Groups,
	CoGroup:    Splices | Groups,
	HashJoin:   Splices | Joins,
	Merge:      Splices | Merges,
	Checkpoint: Checkpoints,
	Boundary:   Boundaries,
}

// Is reports whether k belongs to any of the categories in c.
func (k Kind) Is(c Category) bool {
	if int(k) >= len(kindCategories) {
		return false
	}
	return kindCategories[k]&c != 0
}

var categoryNames = []struct {
	c    Category
	name string
}{
	{Extents, "extent"},
	{Taps, "tap"},
	{Operators, "operator"},
	{NoOps, "noop"},
	{Splices, "splice"},
	{Groups, "group"},
	{Joins, "join"},
	{Merges, "merge"},
	{Checkpoints, "checkpoint"},
	{Boundaries, "boundary"},
}

func (c Category) String() string {
	if c == AnyCategory {
		return "any"
	}
	var names []string
	for _, cn := range categoryNames {
		if c&cn.c != 0 {
			names = append(names, cn.name)
		}
	}
	return strings.Join(names, "|")
}

// Role distinguishes how a tap participates in a flow.
type Role uint8

const (
	NoRole Role = iota
	Source
	Sink
	// Temp marks intermediate taps, both those declared between two
	// parts of an assembly and those inserted by the planner.
	Temp
)

func (r Role) String() string {
	switch r {
	case Source:
		return "source"
	case Sink:
		return "sink"
	case Temp:
		return "temp"
	}
	return ""
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "":
		return NoRole, nil
	case "source":
		return Source, nil
	case "sink":
		return Sink, nil
	case "temp":
		return Temp, nil
	}
	return NoRole, fmt.Errorf("unknown tap role %q", s)
}
