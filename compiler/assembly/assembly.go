// Package assembly reads pipe assemblies, the logical description of a
// dataflow, and builds the host graphs the planner rewrites.
//
// An assembly is a list of named elements.  Each element names the
// elements it reads from; the position of a name in that list is the
// ordinal of the edge.  Tap roles default from the shape of the
// assembly: a tap nothing feeds is a source, a tap that feeds nothing is
// a sink, and any other tap is a temporary tap between two parts of the
// flow.  Every input of a hash join after the first is accumulated, so its
// edge is blocking.
package assembly

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/brimdata/pipeplan/compiler/graph"
	"github.com/goccy/go-yaml"
	yamlparser "github.com/goccy/go-yaml/parser"
)

type Assembly struct {
	Name     string    `yaml:"name"`
	Elements []Element `yaml:"elements"`
}

type Element struct {
	Name string   `yaml:"name"`
	Kind string   `yaml:"kind"`
	Role string   `yaml:"role,omitempty"`
	From []string `yaml:"from,omitempty"`
	Trap string   `yaml:"trap,omitempty"`
}

// Parse reads every YAML document in b as an assembly.
func Parse(b []byte) ([]*Assembly, error) {
	f, err := yamlparser.ParseBytes(b, 0)
	if err != nil {
		return nil, err
	}
	var out []*Assembly
	for _, doc := range f.Docs {
		if doc.Body == nil {
			continue
		}
		var a Assembly
		if err := yaml.NodeToValue(doc.Body, &a, yaml.DisallowUnknownField()); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	if len(out) == 0 {
		return nil, errors.New("no assemblies found")
	}
	return out, nil
}

func Read(r io.Reader) ([]*Assembly, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Load(path string) ([]*Assembly, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	assemblies, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return assemblies, nil
}

type element struct {
	Element
	kind      graph.Kind
	role      graph.Role
	consumers int
}

func (a *Assembly) resolve() ([]*element, map[string]*element, error) {
	if len(a.Elements) == 0 {
		return nil, nil, fmt.Errorf("assembly %s has no elements", a.Name)
	}
	var elements []*element
	byName := make(map[string]*element)
	for _, e := range a.Elements {
		if e.Name == "" {
			return nil, nil, errors.New("element with no name")
		}
		if _, ok := byName[e.Name]; ok {
			return nil, nil, fmt.Errorf("element %s declared twice", e.Name)
		}
		kind, err := graph.ParseKind(e.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("element %s: %w", e.Name, err)
		}
		if kind.Is(graph.Extents) {
			return nil, nil, fmt.Errorf("element %s: %s cannot be declared", e.Name, kind)
		}
		role, err := graph.ParseRole(e.Role)
		if err != nil {
			return nil, nil, fmt.Errorf("element %s: %w", e.Name, err)
		}
		if role != graph.NoRole && kind != graph.Tap {
			return nil, nil, fmt.Errorf("element %s: only taps have roles", e.Name)
		}
		if e.Trap != "" && kind == graph.Tap {
			return nil, nil, fmt.Errorf("element %s: taps cannot have traps", e.Name)
		}
		el := &element{Element: e, kind: kind, role: role}
		elements = append(elements, el)
		byName[e.Name] = el
	}
	for _, el := range elements {
		for _, from := range el.From {
			upstream, ok := byName[from]
			if !ok {
				return nil, nil, fmt.Errorf("element %s reads from unknown element %s", el.Name, from)
			}
			upstream.consumers++
		}
	}
	for _, el := range elements {
		if err := el.check(); err != nil {
			return nil, nil, err
		}
	}
	return elements, byName, nil
}

func (e *element) check() error {
	if e.kind != graph.Tap {
		switch {
		case len(e.From) == 0:
			return fmt.Errorf("%s %s has no input", e.kind, e.Name)
		case e.consumers == 0:
			return fmt.Errorf("%s %s has no output", e.kind, e.Name)
		case len(e.From) > 1 && !e.kind.Is(graph.Splices):
			return fmt.Errorf("%s %s has %d inputs", e.kind, e.Name, len(e.From))
		}
		return nil
	}
	if e.role == graph.NoRole {
		switch {
		case len(e.From) == 0 && e.consumers == 0:
			return fmt.Errorf("tap %s is not connected", e.Name)
		case len(e.From) == 0:
			e.role = graph.Source
		case e.consumers == 0:
			e.role = graph.Sink
		default:
			e.role = graph.Temp
		}
	}
	switch {
	case e.role == graph.Source && len(e.From) != 0:
		return fmt.Errorf("source tap %s has inputs", e.Name)
	case e.role == graph.Sink && e.consumers != 0:
		return fmt.Errorf("sink tap %s is read by other elements", e.Name)
	case e.role == graph.Temp && (len(e.From) == 0 || e.consumers == 0):
		return fmt.Errorf("temp tap %s must be both written and read", e.Name)
	case len(e.From) > 1:
		return fmt.Errorf("tap %s has %d inputs", e.Name, len(e.From))
	}
	return nil
}

// Validate checks a without building its graph.
func (a *Assembly) Validate() error {
	_, err := a.Graph()
	return err
}

// Graph builds the host graph of a.  Elements take ids in declaration
// order, followed by the head and the tail.
func (a *Assembly) Graph() (*graph.Graph, error) {
	elements, byName, err := a.resolve()
	if err != nil {
		return nil, err
	}
	g := graph.New()
	ids := make(map[string]graph.ID)
	for _, el := range elements {
		var n *graph.Node
		if el.kind == graph.Tap {
			n = g.AddTap(el.Name, el.role)
		} else {
			n = g.AddOperator(el.kind, el.Name, el.Trap)
		}
		ids[el.Name] = n.ID
	}
	head := g.AddNode(graph.Head, "")
	tail := g.AddNode(graph.Tail, "")
	var sources, sinks int
	for _, el := range elements {
		to := ids[el.Name]
		for ordinal, from := range el.From {
			g.AddEdge(ids[from], to, graph.Scope{
				Ordinal:  ordinal,
				Blocking: el.kind == graph.HashJoin && ordinal > 0,
				Name:     byName[from].Name,
			})
		}
		switch {
		case el.kind == graph.Tap && el.role == graph.Source:
			g.AddEdge(head.ID, to, graph.Scope{Ordinal: sources})
			sources++
		case el.kind == graph.Tap && el.role == graph.Sink:
			g.AddEdge(to, tail.ID, graph.Scope{Ordinal: sinks})
			sinks++
		}
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("assembly %s: %w", a.Name, err)
	}
	return g, nil
}
