package root

import (
	"github.com/brimdata/pipeplan/cli/logflags"
	"github.com/brimdata/pipeplan/compiler/planner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Pipeplan = &cobra.Command{
	Use:   "pipeplan",
	Short: "plan pipe assemblies for an execution platform",
	Long: `
The "pipeplan" command turns pipe assemblies, graphs of taps, operators,
groups and joins declared in YAML, into physical plans for a platform.

The planner first rewrites each assembly with the platform's rules,
removing no-op pipes and inserting the intermediate taps or boundaries the
platform needs.  It then partitions the result into steps, each step into
nodes, and each node into pipelines.

Platforms are "local", which runs an assembly in one step and one node;
"mapreduce", which splits an assembly into map and reduce nodes around
every group; and "dag", which splits it at boundaries.

Planner settings may be read from a YAML file with --config.  The flags
below override the settings in the file.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

type Flags struct {
	Log            logflags.Flags
	ConfigPath     string
	Platform       string
	Disabled       []string
	TracePath      string
	MaxSearchSteps int
	Parallelism    int
}

var Global Flags

func init() {
	fs := Pipeplan.PersistentFlags()
	Global.Log.SetFlags(fs)
	fs.StringVar(&Global.ConfigPath, "config", "", "read planner settings from this YAML file")
	fs.StringVarP(&Global.Platform, "platform", "p", "local", "plan for this platform [local,mapreduce,dag]")
	fs.StringSliceVar(&Global.Disabled, "disable", nil, "disable the named rules (may be repeated)")
	fs.StringVar(&Global.TracePath, "trace", "", "write DOT files of each rule application under this directory")
	fs.IntVar(&Global.MaxSearchSteps, "maxsteps", 0, "limit the steps of each pattern search (0 for the default)")
	fs.IntVarP(&Global.Parallelism, "parallel", "P", 0, "plan this many assemblies at once (default GOMAXPROCS)")
}

// Config returns the planner config from --config, if given, with the
// flags set on cmd applied over it.
func (f *Flags) Config(cmd *cobra.Command) (planner.Config, error) {
	config := planner.DefaultConfig()
	if f.ConfigPath != "" {
		var err error
		if config, err = planner.LoadConfig(f.ConfigPath); err != nil {
			return planner.Config{}, err
		}
	}
	fs := cmd.Flags()
	if fs.Changed("platform") || f.ConfigPath == "" {
		config.Platform = f.Platform
	}
	if fs.Changed("disable") {
		config.Disabled = append(config.Disabled, f.Disabled...)
	}
	if fs.Changed("trace") {
		config.TracePath = f.TracePath
	}
	if fs.Changed("maxsteps") {
		config.MaxSearchSteps = f.MaxSearchSteps
	}
	if fs.Changed("parallel") {
		config.Parallelism = f.Parallelism
	}
	return config, config.Validate()
}

// Planner builds a planner from the flags on cmd.  The returned function
// closes the planner's logger.
func (f *Flags) Planner(cmd *cobra.Command) (*planner.Planner, func(), error) {
	config, err := f.Config(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, closer, err := f.Log.Open()
	if err != nil {
		return nil, nil, err
	}
	p, err := planner.New(config, logger, nil)
	if err != nil {
		closer()
		return nil, nil, err
	}
	logger.Debug("planner ready",
		zap.String("platform", config.Platform),
		zap.Strings("disabled", config.Disabled))
	return p, func() { closer() }, nil
}
