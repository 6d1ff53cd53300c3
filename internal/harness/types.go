package harness

import "github.com/roach88/texgraph/internal/buffer"

// TraceEvent records one step: what it did, which nodes it dispatched and
// which nodes reported a change.
type TraceEvent struct {
	Step       int      `json:"step"` // 0 is graph construction
	Action     string   `json:"action"`
	Target     string   `json:"target,omitempty"`
	Error      string   `json:"error,omitempty"`
	Dispatched []string `json:"dispatched"`
	Changed    []string `json:"changed"`
}

// NodeResult is the final observable state of one node.
type NodeResult struct {
	State string `json:"state"`

	// Error is the compute error code for a failed node.
	Error string `json:"error,omitempty"`

	// Sizes and Pixels describe each clean output slot. Pixels holds the
	// RGBA8 value of the first pixel.
	Sizes  []buffer.Size `json:"sizes,omitempty"`
	Pixels [][]int       `json:"pixels,omitempty"`

	Buffers []*buffer.Buffer `json:"-"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Nodes holds the final state of every node still in the graph, by ref.
	Nodes map[string]NodeResult `json:"nodes"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Nodes:  make(map[string]NodeResult),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a trace event.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
