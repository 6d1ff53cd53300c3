package harness

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/engine"
)

// uniformTolerance absorbs float32 rounding in uniform assertions.
const uniformTolerance = 1e-5

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s dispatched=%v changed=%v\n", ev.Step, ev.Action, ev.Target, ev.Dispatched, ev.Changed)
		}
	}
	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertState:
			err = assertState(result, a)
		case AssertUniform:
			err = assertUniform(result, a)
		case AssertSize:
			err = assertSize(result, a)
		case AssertError:
			err = assertError(result, a)
		case AssertChanged:
			err = assertChanged(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// targets returns Node followed by Nodes.
func targets(a Assertion) []string {
	var refs []string
	if a.Node != "" {
		refs = append(refs, a.Node)
	}
	return append(refs, a.Nodes...)
}

func assertState(result *Result, a Assertion) error {
	want, err := engine.ParseState(a.State)
	if err != nil {
		return fmt.Errorf("state assertion: %w", err)
	}
	for _, ref := range targets(a) {
		nr, ok := result.Nodes[ref]
		actual := "removed"
		if ok {
			actual = nr.State
		}
		if actual != want.String() {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("%s is %s", ref, want),
				Actual:   actual,
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

func assertUniform(result *Result, a Assertion) error {
	b, err := slotBuffer(result, a, AssertUniform)
	if err != nil {
		return err
	}
	want := *a.Value
	for i, v := range b.Pix() {
		if math.Abs(float64(v)-want) > uniformTolerance {
			return &AssertionError{
				Type:     AssertUniform,
				Expected: fmt.Sprintf("%s.%d uniform %g", a.Node, a.Slot, want),
				Actual:   fmt.Sprintf("sample %d is %g", i, v),
			}
		}
	}
	return nil
}

func assertSize(result *Result, a Assertion) error {
	b, err := slotBuffer(result, a, AssertSize)
	if err != nil {
		return err
	}
	want := buffer.Size{Width: a.Size[0], Height: a.Size[1]}
	if b.Size() != want {
		return &AssertionError{
			Type:     AssertSize,
			Expected: fmt.Sprintf("%s.%d is %s", a.Node, a.Slot, want),
			Actual:   b.Size().String(),
		}
	}
	return nil
}

func assertError(result *Result, a Assertion) error {
	nr, ok := result.Nodes[a.Node]
	switch {
	case !ok:
		return &AssertionError{Type: AssertError, Expected: a.Node + " failed", Actual: "node removed"}
	case nr.Error == "":
		return &AssertionError{Type: AssertError, Expected: a.Node + " failed", Actual: "no error, state " + nr.State}
	case a.Code != "" && nr.Error != a.Code:
		return &AssertionError{
			Type:     AssertError,
			Expected: fmt.Sprintf("%s failed with %s", a.Node, a.Code),
			Actual:   nr.Error,
		}
	}
	return nil
}

// assertChanged compares the change set drained after a step. Step 0 in
// the assertion means the last step.
func assertChanged(result *Result, a Assertion) error {
	idx := a.Step
	if idx == 0 {
		idx = len(result.Trace) - 1
	}
	if idx < 0 || idx >= len(result.Trace) {
		return fmt.Errorf("changed assertion: no step %d", idx)
	}
	got := result.Trace[idx].Changed
	want := append([]string(nil), a.Nodes...)
	sort.Strings(want)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return &AssertionError{
			Type:     AssertChanged,
			Expected: fmt.Sprintf("step %d changed %v", idx, want),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func slotBuffer(result *Result, a Assertion, kind string) (*buffer.Buffer, error) {
	nr, ok := result.Nodes[a.Node]
	if !ok {
		return nil, &AssertionError{Type: kind, Expected: a.Node + " present", Actual: "node removed"}
	}
	if a.Slot >= len(nr.Buffers) {
		return nil, &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%s.%d clean", a.Node, a.Slot),
			Actual:   "state " + nr.State,
		}
	}
	return nr.Buffers[a.Slot], nil
}
