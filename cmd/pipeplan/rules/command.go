package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/brimdata/pipeplan/cmd/pipeplan/root"
	"github.com/brimdata/pipeplan/compiler/expr"
	"github.com/brimdata/pipeplan/compiler/rule"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "rules",
	Short: "list the rules of a platform",
	Long: `
The "rules" command lists the rules of the platform selected with --platform
in the order the planner runs them, grouped by phase.  Rules turned off
with --disable are marked as such.

With --dot, the pattern of each assert and transform rule is written to the
named directory as <rule>.dot.
`,
	Args: cobra.NoArgs,
	RunE: run,
}

var dotDir string

func init() {
	Cmd.Flags().StringVar(&dotDir, "dot", "", "write the pattern of each rule to this directory")
	root.Pipeplan.AddCommand(Cmd)
}

type patterned interface {
	Pattern() *expr.ExpressionGraph
}

func run(cmd *cobra.Command, _ []string) error {
	p, closer, err := root.Global.Planner(cmd)
	if err != nil {
		return err
	}
	defer closer()
	registry := p.Registry()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "platform %s\n", registry.Name())
	for _, phase := range rule.Phases {
		rules := registry.Rules(phase)
		var disabled []rule.Rule
		for _, r := range registry.All() {
			if r.Phase() == phase && registry.IsDisabled(r.Name()) {
				disabled = append(disabled, r)
			}
		}
		if len(rules)+len(disabled) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\n", phase)
		for _, r := range rules {
			fmt.Fprintf(w, "  %s\t%s\n", r.Name(), describe(r))
		}
		for _, r := range disabled {
			fmt.Fprintf(w, "  %s\t%s (disabled)\n", r.Name(), describe(r))
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if dotDir == "" {
		return nil
	}
	if err := os.MkdirAll(dotDir, 0755); err != nil {
		return err
	}
	for _, r := range registry.All() {
		pr, ok := r.(patterned)
		if !ok {
			continue
		}
		path := filepath.Join(dotDir, r.Name()+".dot")
		if err := os.WriteFile(path, []byte(pr.Pattern().DOT(r.Name()).String()), 0644); err != nil {
			return err
		}
	}
	return nil
}

func describe(r rule.Rule) string {
	switch r := r.(type) {
	case *rule.Assert:
		return "assert"
	case *rule.Transform:
		return "transform"
	case *rule.Partition:
		if r.IsFallback() {
			return "partition (fallback)"
		}
		return "partition"
	}
	return "unknown"
}
