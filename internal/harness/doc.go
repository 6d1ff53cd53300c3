// Package harness runs conformance scenarios against a live texture graph.
//
// A scenario builds a graph, applies a list of edits and checks the result.
// Runs use a live graph with no workers: after every step the harness
// executes pending jobs itself, so the dispatch order and the drained change
// set of each step are deterministic and can be compared against golden
// files.
//
// # Scenario Format
//
//	name: mix_add
//	description: "What this scenario validates"
//	auto_update: false
//	nodes:
//	  - ref: a
//	    type: value
//	    value: 0.5
//	  - ref: mix
//	    type: mix
//	    mix: add
//	  - ref: out
//	    type: output_rgba
//	edges:
//	  - "a.0 -> mix.0"
//	  - "mix.0 -> out.0"
//	steps:
//	  - action: process
//	  - action: set_value
//	    node: a
//	    value: 0.1
//	  - action: connect
//	    edge: "out.0 -> mix.0"
//	    expect_error: would_create_cycle
//	assertions:
//	  - type: state
//	    state: clean
//	    nodes: [a, mix, out]
//	  - type: uniform
//	    node: out
//	    value: 0.6
//
// Documents are validated against an embedded CUE schema before decoding.
//
// # Golden Files
//
// Snapshots are canonical JSON and live in testdata/golden/{name}.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
