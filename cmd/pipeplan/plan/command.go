package plan

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/brimdata/pipeplan/cmd/pipeplan/root"
	"github.com/brimdata/pipeplan/compiler/assembly"
	"github.com/brimdata/pipeplan/compiler/planfmt"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "plan [flags] file ...",
	Short: "plan the assemblies in each file",
	Long: `
The "plan" command reads assemblies from each YAML file, "-" for standard
input, plans them for the platform, and prints each plan as text in the
order the assemblies were read.  A file may hold several assemblies
separated by "---".

With --dot, the element graph of each plan is also written to the named
directory as <assembly>.dot.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: run,
}

var dotDir string

func init() {
	Cmd.Flags().StringVar(&dotDir, "dot", "", "write the element graph of each plan to this directory")
	root.Pipeplan.AddCommand(Cmd)
}

func run(cmd *cobra.Command, args []string) error {
	var assemblies, stdin []*assembly.Assembly
	for _, path := range args {
		var as []*assembly.Assembly
		var err error
		if path == "-" {
			// Standard input can be read only once.
			if stdin == nil {
				stdin, err = assembly.Read(cmd.InOrStdin())
			}
			as = stdin
		} else {
			as, err = assembly.Load(path)
		}
		if err != nil {
			return err
		}
		assemblies = append(assemblies, as...)
	}
	if err := unique(assemblies); err != nil {
		return err
	}
	p, closer, err := root.Global.Planner(cmd)
	if err != nil {
		return err
	}
	defer closer()
	plans, err := p.PlanAll(cmd.Context(), assemblies)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, plan := range plans {
		if err := planfmt.Write(out, plan); err != nil {
			return err
		}
	}
	if dotDir == "" {
		return nil
	}
	if err := os.MkdirAll(dotDir, 0755); err != nil {
		return err
	}
	for _, plan := range plans {
		path := filepath.Join(dotDir, plan.Name+".dot")
		if err := os.WriteFile(path, []byte(plan.Graph.DOT(plan.Name).String()), 0644); err != nil {
			return err
		}
	}
	return nil
}

func unique(assemblies []*assembly.Assembly) error {
	seen := make(map[string]bool)
	for _, a := range assemblies {
		if seen[a.Name] {
			return fmt.Errorf("assembly %s declared twice", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}
