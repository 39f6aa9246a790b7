package planner

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/brimdata/pipeplan/compiler/rule"
	"github.com/goccy/go-yaml"
)

type Config struct {
	Platform string `yaml:"platform"`
	// Disabled names rules of the platform registry that are skipped.
	Disabled []string `yaml:"disabled,omitempty"`
	// TracePath, if set, is the directory under which each plan writes the
	// DOT rendering of every rule application.
	TracePath      string `yaml:"trace_path,omitempty"`
	MaxSearchSteps int    `yaml:"max_search_steps,omitempty"`
	// Parallelism bounds the number of assemblies PlanAll plans at once.
	Parallelism int `yaml:"parallelism,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Platform:    "local",
		Parallelism: runtime.GOMAXPROCS(0),
	}
}

// ParseConfig reads a YAML config over the defaults.
func ParseConfig(b []byte) (Config, error) {
	c := DefaultConfig()
	if err := yaml.UnmarshalWithOptions(b, &c, yaml.DisallowUnknownField()); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c, err := ParseConfig(b)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.MaxSearchSteps < 0 {
		return errors.New("max_search_steps must not be negative")
	}
	if c.Parallelism < 0 {
		return errors.New("parallelism must not be negative")
	}
	_, err := c.registry()
	return err
}

func (c Config) registry() (*rule.Registry, error) {
	r, err := rule.Lookup(c.Platform)
	if err != nil {
		return nil, err
	}
	if err := r.Disable(c.Disabled...); err != nil {
		return nil, err
	}
	return r, nil
}
