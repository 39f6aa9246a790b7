// Package plantest runs planner tests described in YAML files.
//
// A test names a platform, an assembly, and either the expected plan in
// the text format of package planfmt or the expected error:
//
//	platform: mapreduce
//	disabled: [balance-group-to-group]
//	assembly: |
//	  name: wordcount
//	  elements:
//	    - {name: docs, kind: tap}
//	    ...
//	output: |
//	  plan wordcount platform=mapreduce steps=1
//	  ...
//
// A directory of such files runs as subtests named after the files:
//
//	func TestPlans(t *testing.T) {
//		plantest.Run(t, "testdata")
//	}
package plantest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brimdata/pipeplan/compiler/assembly"
	"github.com/brimdata/pipeplan/compiler/planfmt"
	"github.com/brimdata/pipeplan/compiler/planner"
	"github.com/goccy/go-yaml"
	yamlparser "github.com/goccy/go-yaml/parser"
	"github.com/pmezard/go-difflib/difflib"
)

type Test struct {
	Platform string   `yaml:"platform"`
	Disabled []string `yaml:"disabled,omitempty"`
	Assembly string   `yaml:"assembly"`
	Output   string   `yaml:"output,omitempty"`
	Error    string   `yaml:"error,omitempty"`
	Skip     string   `yaml:"skip,omitempty"`
}

type Bundle struct {
	TestName string
	FileName string
	Test     *Test
	Error    error
}

func Load(dirname string) ([]Bundle, error) {
	var bundles []Bundle
	entries, err := os.ReadDir(dirname)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		filename := e.Name()
		const dotyaml = ".yaml"
		if !strings.HasSuffix(filename, dotyaml) {
			continue
		}
		testname := strings.TrimSuffix(filename, dotyaml)
		filename = filepath.Join(dirname, filename)
		pt, err := FromYAMLFile(filename)
		bundles = append(bundles, Bundle{testname, filename, pt, err})
	}
	return bundles, nil
}

// FromYAMLFile loads a Test from the YAML file named filename.
func FromYAMLFile(filename string) (*Test, error) {
	f, err := yamlparser.ParseFile(filename, 0)
	if err != nil {
		return nil, err
	}
	if len(f.Docs) != 1 {
		return nil, errors.New("file must contain one YAML document")
	}
	var pt Test
	if err := yaml.NodeToValue(f.Docs[0].Body, &pt, yaml.DisallowUnknownField()); err != nil {
		return nil, err
	}
	return &pt, nil
}

func (p *Test) check() error {
	if p.Assembly == "" {
		return errors.New("assembly field missing")
	}
	if p.Output != "" && p.Error != "" {
		return errors.New("output and error fields are mutually exclusive")
	}
	return nil
}

// Plan plans the test's assemblies and formats the result.
func (p *Test) Plan(ctx context.Context) (string, error) {
	config := planner.DefaultConfig()
	if p.Platform != "" {
		config.Platform = p.Platform
	}
	config.Disabled = p.Disabled
	pl, err := planner.New(config, nil, nil)
	if err != nil {
		return "", err
	}
	assemblies, err := assembly.Parse([]byte(p.Assembly))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, a := range assemblies {
		plan, err := pl.Plan(ctx, a)
		if err != nil {
			return b.String(), err
		}
		b.WriteString(planfmt.Plan(plan))
	}
	return b.String(), nil
}

func (p *Test) RunInternal(ctx context.Context) error {
	if err := p.check(); err != nil {
		return fmt.Errorf("bad yaml format: %w", err)
	}
	out, err := p.Plan(ctx)
	var outDiffErr, errDiffErr error
	if p.Output != out {
		outDiffErr = diffErr("output", p.Output, out)
	}
	var errStr string
	if err != nil {
		errStr = strings.TrimSuffix(err.Error(), "\n") + "\n"
	}
	if p.Error != errStr {
		errDiffErr = diffErr("error", p.Error, errStr)
	}
	return errors.Join(outDiffErr, errDiffErr)
}

func (p *Test) Run(t *testing.T, filename string) {
	if p.Skip != "" {
		t.Skip("skipping test:", p.Skip)
	}
	if err := p.RunInternal(t.Context()); err != nil {
		t.Fatalf("%s: %s", filename, err)
	}
}

// Run runs each test in dirname as a parallel subtest of t.
func Run(t *testing.T, dirname string) {
	bundles, err := Load(dirname)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range bundles {
		t.Run(b.TestName, func(t *testing.T) {
			t.Parallel()
			if b.Error != nil {
				t.Fatalf("%s: %s", b.FileName, b.Error)
			}
			b.Test.Run(t, b.FileName)
		})
	}
}

func diffErr(name, expected, actual string) error {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		FromFile: "expected",
		B:        difflib.SplitLines(actual),
		ToFile:   "actual",
		Context:  5,
	})
	if err != nil {
		panic("plantest: " + err.Error())
	}
	return fmt.Errorf("expected and actual %s differ:\n%s", name, diff)
}
