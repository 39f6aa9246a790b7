package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/brimdata/pipeplan/cmd/pipeplan/root"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wordcount = `name: wordcount
elements:
  - {name: docs, kind: tap}
  - {name: split, kind: each, from: [docs], trap: bad-docs}
  - {name: rename, kind: pipe, from: [split]}
  - {name: group, kind: groupby, from: [rename]}
  - {name: count, kind: every, from: [group]}
  - {name: counts, kind: tap, from: [count]}
`

// reset restores every flag and context to its default since commands are
// package state shared by the tests.
func reset(cmd *cobra.Command) {
	cmd.SetContext(nil)
	visit := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(visit)
	cmd.Flags().VisitAll(visit)
	for _, c := range cmd.Commands() {
		reset(c)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	reset(root.Pipeplan)
	var out bytes.Buffer
	root.Pipeplan.SetOut(&out)
	root.Pipeplan.SetIn(bytes.NewBufferString(stdin))
	root.Pipeplan.SetArgs(args)
	err := root.Pipeplan.ExecuteContext(t.Context())
	return out.String(), err
}

func TestPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wordcount.yaml")
	require.NoError(t, os.WriteFile(path, []byte(wordcount), 0644))
	dotDir := t.TempDir()
	out, err := execute(t, "", "plan", "--platform", "mapreduce", "--dot", dotDir, path)
	require.NoError(t, err)
	expected := `plan wordcount platform=mapreduce steps=1
step (1/1) counts
  sources: docs
  sinks: counts
  traps: bad-docs
  node 1: docs, split, group
    streamed: docs
    pipeline 1: docs, split, group
  node 2: group, count, counts
    streamed: group
    pipeline 1: group, count, counts
`
	assert.Equal(t, expected, out)
	b, err := os.ReadFile(filepath.Join(dotDir, "wordcount.dot"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "digraph")
}

func TestPlanStdin(t *testing.T) {
	out, err := execute(t, wordcount, "plan", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "plan wordcount platform=local steps=1\n")
}

func TestPlanErrors(t *testing.T) {
	_, err := execute(t, wordcount, "plan", "--platform", "spark", "-")
	assert.EqualError(t, err, "spark: unknown platform")
	_, err = execute(t, wordcount, "plan", "-", "-")
	assert.EqualError(t, err, "assembly wordcount declared twice")
	_, err = execute(t, "", "plan")
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "pipeplan.yaml")
	require.NoError(t, os.WriteFile(config, []byte("platform: dag\n"), 0644))
	out, err := execute(t, wordcount, "plan", "--config", config, "-")
	require.NoError(t, err)
	assert.Contains(t, out, "platform=dag")
	out, err = execute(t, wordcount, "plan", "--config", config, "--platform", "local", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "platform=local")
}

func TestRules(t *testing.T) {
	dotDir := t.TempDir()
	out, err := execute(t, "", "rules", "--platform", "mapreduce", "--disable", "balance-checkpoint", "--dot", dotDir)
	require.NoError(t, err)
	assert.Contains(t, out, "platform mapreduce\n")
	assert.Regexp(t, `(?m)^  balance-checkpoint +transform \(disabled\)$`, out)
	assert.Regexp(t, `(?m)^  partition-whole-step +partition \(fallback\)$`, out)
	assert.Regexp(t, `(?m)^  assert-every-after-group +assert$`, out)
	_, err = os.Stat(filepath.Join(dotDir, "elide-noops.dot"))
	assert.NoError(t, err)
}

func TestMaxStepsDefault(t *testing.T) {
	f := root.Pipeplan.PersistentFlags().Lookup("maxsteps")
	require.NotNil(t, f)
	assert.Contains(t, f.Usage, "0 for the default")
	reset(root.Pipeplan)
	config, err := root.Global.Config(root.Pipeplan)
	require.NoError(t, err)
	assert.Zero(t, config.MaxSearchSteps)
}

func TestCommandsRunWithCurrentContext(t *testing.T) {
	for range 2 {
		_, err := execute(t, wordcount, "plan", "-")
		require.NoError(t, err)
		cmd, _, err := root.Pipeplan.Find([]string{"plan"})
		require.NoError(t, err)
		assert.Equal(t, t.Context(), cmd.Context())
	}
}
