package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/texgraph/internal/buffer"
)

func ptr(v float64) *float64 { return &v }

func sampleResult() *Result {
	r := NewResult()
	r.AddEvent(TraceEvent{Step: 0, Action: "build", Changed: []string{"a", "out"}})
	r.AddEvent(TraceEvent{Step: 1, Action: "process", Dispatched: []string{"a", "out"}, Changed: []string{"a", "out"}})
	b := buffer.Uniform(buffer.Size{Width: 2, Height: 1}, buffer.Gray, 0.5)
	r.Nodes["a"] = NodeResult{State: "clean", Buffers: []*buffer.Buffer{b}, Sizes: []buffer.Size{b.Size()}}
	r.Nodes["out"] = NodeResult{State: "dirty", Error: "UPSTREAM_FAILED"}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertState, State: "clean", Node: "a"},
		{Type: AssertState, State: "dirty", Nodes: []string{"out"}},
		{Type: AssertUniform, Node: "a", Value: ptr(0.5)},
		{Type: AssertSize, Node: "a", Size: []int{2, 1}},
		{Type: AssertError, Node: "out", Code: "UPSTREAM_FAILED"},
		{Type: AssertError, Node: "out"},
		{Type: AssertChanged, Nodes: []string{"out", "a"}},
		{Type: AssertChanged, Step: 1, Nodes: []string{"a", "out"}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name string
		a    Assertion
		want string
	}{
		{"wrong state", Assertion{Type: AssertState, State: "clean", Node: "out"}, "out is clean"},
		{"removed node", Assertion{Type: AssertState, State: "clean", Node: "gone"}, "removed"},
		{"bad state name", Assertion{Type: AssertState, State: "busy", Node: "a"}, "state assertion"},
		{"wrong value", Assertion{Type: AssertUniform, Node: "a", Value: ptr(0.7)}, "sample 0"},
		{"not clean", Assertion{Type: AssertUniform, Node: "out", Value: ptr(0)}, "state dirty"},
		{"wrong size", Assertion{Type: AssertSize, Node: "a", Size: []int{1, 1}}, "2x1"},
		{"no error", Assertion{Type: AssertError, Node: "a"}, "no error"},
		{"wrong code", Assertion{Type: AssertError, Node: "out", Code: "PANIC"}, "UPSTREAM_FAILED"},
		{"wrong changed", Assertion{Type: AssertChanged, Nodes: []string{"a"}}, "changed"},
		{"unknown type", Assertion{Type: "trace_contains"}, "unknown assertion type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.a})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertChanged,
		Expected: "x",
		Actual:   "y",
		Trace:    sampleResult().Trace,
	}
	msg := err.Error()
	assert.Contains(t, msg, "Expected: x")
	assert.Contains(t, msg, "[1] process")
}
