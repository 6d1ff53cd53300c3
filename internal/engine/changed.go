package engine

import (
	"sort"
	"sync"

	"github.com/roach88/texgraph/internal/node"
)

// changedSet accumulates ids of nodes whose state or buffers changed since
// the last drain.
//
// It is a set, not a queue: a node that changes five times between drains is
// reported once. Drain is atomic with respect to Add, so no entry is lost and
// none is returned twice.
//
// The signal channel (buffered, size 1) lets pollers such as the preview
// server wait for the next change without spinning:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-s.Wait():
//	    ids := s.Drain()
//	}
type changedSet struct {
	mu     sync.Mutex
	ids    map[node.ID]struct{}
	closed bool
	signal chan struct{}
}

func newChangedSet() *changedSet {
	return &changedSet{
		ids:    make(map[node.ID]struct{}),
		signal: make(chan struct{}, 1),
	}
}

// Add records ids as changed. Safe from any goroutine.
func (s *changedSet) Add(ids ...node.ID) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Drain returns every recorded id in ascending order and empties the set.
func (s *changedSet) Drain() []node.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ids) == 0 {
		return nil
	}
	out := make([]node.ID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.ids = make(map[node.ID]struct{})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of pending ids.
func (s *changedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Wait returns a channel that signals when ids may be available. It is
// closed by Close.
func (s *changedSet) Wait() <-chan struct{} {
	return s.signal
}

// Close wakes all waiters. Later Adds are dropped.
func (s *changedSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.signal)
}
