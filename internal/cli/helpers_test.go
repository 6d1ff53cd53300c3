package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const harnessTestdata = "../harness/testdata"

// copyScenario copies a harness scenario, and its golden file when withGolden
// is set, into dir using the scenarios/golden layout the test command reads.
func copyScenario(t *testing.T, dir, name string, withGolden bool) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(harnessTestdata, "scenarios", name+".yaml"))
	require.NoError(t, err)
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	if withGolden {
		golden, err := os.ReadFile(filepath.Join(harnessTestdata, "golden", name+".golden"))
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", name+".golden"), golden, 0644))
	}
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	return executeCmd(cmd, args...)
}

func executeCmd(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const brokenScenario = `name: broken
description: edge points at a ref that does not exist
nodes:
  - ref: a
    type: value
edges:
  - "a.0 -> missing.0"
`

const failingScenario = `name: failing
description: asserts a value the graph does not produce
nodes:
  - ref: a
    type: value
    value: 0.25
  - ref: out
    type: output_gray
edges:
  - "a.0 -> out.0"
steps:
  - action: process
assertions:
  - type: uniform
    node: a
    value: 0.75
`
