package engine

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a LiveGraph after Close.
var ErrClosed = errors.New("engine: live graph closed")

// ErrNoWorkers is returned by AwaitCleanRead when the graph has no workers
// and the node is not already Clean.
var ErrNoWorkers = errors.New("engine: no workers configured")

// ErrNotStarted is returned by AwaitCleanRead when workers are configured but
// Start has not been called, so nothing would ever compute the node.
var ErrNotStarted = errors.New("engine: live graph not started")

// State is the per-node execution lifecycle.
type State int

const (
	// Dirty: output does not reflect current inputs and no demand is pending.
	Dirty State = iota
	// Requested: scheduled as a dependency of some demanded node.
	Requested
	// Prioritised: scheduled and itself demanded; runs before Requested work.
	Prioritised
	// Processing: executing on a worker.
	Processing
	// Clean: cached buffers match current inputs and parameters.
	Clean
)

var stateNames = map[State]string{
	Dirty:       "dirty",
	Requested:   "requested",
	Prioritised: "prioritised",
	Processing:  "processing",
	Clean:       "clean",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState parses the lower-case name produced by State.String.
func ParseState(s string) (State, error) {
	for st, n := range stateNames {
		if n == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown node state %q", s)
}

// pending reports whether the state carries an outstanding demand.
func (s State) pending() bool {
	return s == Requested || s == Prioritised
}
