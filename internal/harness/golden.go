package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/texgraph/internal/digest"
)

// GoldenDir holds the golden snapshots, relative to the test package.
const GoldenDir = "testdata/golden"

// Snapshot renders a result as canonical JSON. It covers the trace and the
// final node states, and leaves out pass/fail and error text so a failing
// run can still be compared.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"step":       ev.Step,
			"action":     ev.Action,
			"dispatched": ev.Dispatched,
			"changed":    ev.Changed,
		}
		if ev.Target != "" {
			m["target"] = ev.Target
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		trace[i] = m
	}

	nodes := make(map[string]any, len(result.Nodes))
	for ref, nr := range result.Nodes {
		m := map[string]any{"state": nr.State}
		if nr.Error != "" {
			m["error"] = nr.Error
		}
		if len(nr.Sizes) > 0 {
			sizes := make([]any, len(nr.Sizes))
			pixels := make([]any, len(nr.Pixels))
			for i, s := range nr.Sizes {
				sizes[i] = []any{s.Width, s.Height}
			}
			for i, px := range nr.Pixels {
				pixels[i] = []any{px[0], px[1], px[2], px[3]}
			}
			m["sizes"] = sizes
			m["pixels"] = pixels
		}
		nodes[ref] = m
	}

	return digest.MarshalCanonical(map[string]any{
		"scenario": name,
		"trace":    trace,
		"nodes":    nodes,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
