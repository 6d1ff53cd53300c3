package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/graph"
	"github.com/roach88/texgraph/internal/node"
)

// nodeState is the scheduler's view of one node.
type nodeState struct {
	state   State
	version uint64
	err     error
	// request is the token of the materialize call that last scheduled it.
	request string
}

// Snapshot is a consistent read of a Clean node.
type Snapshot struct {
	Node    node.Node
	Buffers []*buffer.Buffer
}

// Stats counts nodes per state and the in-memory cache footprint.
type Stats struct {
	Nodes       int            `json:"nodes"`
	States      map[string]int `json:"states"`
	CachedNodes int            `json:"cached_nodes"`
	CachedBytes int            `json:"cached_bytes"`
	Workers     int            `json:"workers"`
}

// LiveGraph is the synchronized handle shared by the interactive caller and
// the worker pool.
//
// Thread-safety model:
//   - every exported method is safe from any goroutine
//   - mutations never block on computation; they mark state and return
//   - AwaitCleanRead is the only method that waits for workers
type LiveGraph struct {
	mu sync.RWMutex

	graph   *graph.Graph
	nodes   map[node.ID]*nodeState
	cache   *bufferCache
	changed *changedSet
	clock   *Clock
	watch   map[node.ID]struct{}

	// inflight maps a node to the version of the job a worker holds for it.
	// It outlives removal of the node, so a restored id is not dispatched
	// again until that job returns.
	inflight map[node.ID]uint64

	depths        map[node.ID]int
	depthsVersion uint64
	depthsValid   bool

	autoUpdate bool
	useCache   bool
	store      BufferStore
	compute    ComputeFunc
	logger     *slog.Logger
	tokens     TokenGenerator
	workers    int

	// wake has one slot per worker; sends never block.
	wake chan struct{}
	// settled is closed and replaced whenever a node settles or is
	// invalidated, waking AwaitCleanRead callers.
	settled chan struct{}

	started bool
	closed  bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New creates an empty LiveGraph. Workers do not run until Start.
func New(opts ...Option) *LiveGraph {
	lg := &LiveGraph{
		graph:    graph.New(),
		nodes:    make(map[node.ID]*nodeState),
		cache:    newBufferCache(),
		changed:  newChangedSet(),
		clock:    NewClock(),
		watch:    make(map[node.ID]struct{}),
		inflight: make(map[node.ID]uint64),
		compute:  node.Compute,
		logger:   slog.Default(),
		tokens:   UUIDv7Generator{},
		workers:  runtime.NumCPU(),
		settled:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(lg)
	}
	lg.wake = make(chan struct{}, max(lg.workers, 1))
	return lg
}

// Node returns a copy of the node.
func (lg *LiveGraph) Node(id node.ID) (node.Node, error) {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return lg.graph.Node(id)
}

// HasNode reports whether id exists.
func (lg *LiveGraph) HasNode(id node.ID) bool {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return lg.graph.HasNode(id)
}

// NodeState returns the lifecycle state of id.
func (lg *LiveGraph) NodeState(id node.ID) (State, error) {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	st, ok := lg.nodes[id]
	if !ok {
		return Dirty, fmt.Errorf("%w: node %d", graph.ErrNotFound, id)
	}
	return st.state, nil
}

// NodeError returns the ComputeError recorded by the last failed attempt, or
// nil if the node has none or does not exist.
func (lg *LiveGraph) NodeError(id node.ID) error {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	if st, ok := lg.nodes[id]; ok {
		return st.err
	}
	return nil
}

// NodeIDs returns all node ids, ascending.
func (lg *LiveGraph) NodeIDs() []node.ID {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return lg.graph.NodeIDs()
}

// OutputIDs returns the ids of sink nodes, ascending.
func (lg *LiveGraph) OutputIDs() []node.ID {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return lg.graph.OutputIDs()
}

// Edges returns all edges ordered by input.
func (lg *LiveGraph) Edges() []graph.Edge {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return lg.graph.Edges()
}

// Watched returns the watch set, ascending.
func (lg *LiveGraph) Watched() []node.ID {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return lg.watchedLocked()
}

// Buffer returns the cached buffer of an output slot if the node is Clean.
// Callers must materialize instead of reading anything older.
func (lg *LiveGraph) Buffer(id node.ID, slot node.SlotID) (*buffer.Buffer, bool) {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return lg.cleanBufferLocked(id, slot)
}

// SlotDataSize returns the size of a Clean node's output slot.
func (lg *LiveGraph) SlotDataSize(id node.ID, slot node.SlotID) (buffer.Size, bool) {
	b, ok := lg.Buffer(id, slot)
	if !ok {
		return buffer.Size{}, false
	}
	return b.Size(), true
}

// BufferRGBA returns 8-bit RGBA pixels of a Clean node's output slot, ready
// for texture upload or PNG encoding.
func (lg *LiveGraph) BufferRGBA(id node.ID, slot node.SlotID) ([]byte, buffer.Size, bool) {
	b, ok := lg.Buffer(id, slot)
	if !ok {
		return nil, buffer.Size{}, false
	}
	return b.RGBA8(), b.Size(), true
}

// ChangedConsume drains the ids whose state or buffers changed since the
// previous call, ascending and each at most once.
func (lg *LiveGraph) ChangedConsume() []node.ID {
	return lg.changed.Drain()
}

// Changes signals when ChangedConsume may return something. The channel is
// closed by Close.
func (lg *LiveGraph) Changes() <-chan struct{} {
	return lg.changed.Wait()
}

// AutoUpdate reports whether mutations materialize the watch set.
func (lg *LiveGraph) AutoUpdate() bool {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return lg.autoUpdate
}

// UseCache reports whether the persistent store is consulted.
func (lg *LiveGraph) UseCache() bool {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	return lg.useCache && lg.store != nil
}

// Stats returns per-state node counts.
func (lg *LiveGraph) Stats() Stats {
	lg.mu.RLock()
	defer lg.mu.RUnlock()
	st := Stats{
		Nodes:       len(lg.nodes),
		States:      make(map[string]int),
		CachedNodes: lg.cache.len(),
		CachedBytes: lg.cache.bytes(),
		Workers:     lg.workers,
	}
	for _, ns := range lg.nodes {
		st.States[ns.state.String()]++
	}
	return st
}

// AwaitCleanRead blocks until id is Clean and returns its buffers, or until
// it fails and returns the recorded ComputeError. A Dirty node without a
// pending request is materialized first.
func (lg *LiveGraph) AwaitCleanRead(ctx context.Context, id node.ID) (Snapshot, error) {
	for {
		lg.mu.Lock()
		if lg.closed {
			lg.mu.Unlock()
			return Snapshot{}, ErrClosed
		}
		st, ok := lg.nodes[id]
		if !ok {
			lg.mu.Unlock()
			return Snapshot{}, fmt.Errorf("%w: node %d", graph.ErrNotFound, id)
		}
		switch {
		case st.state == Clean:
			snap := lg.snapshotLocked(id)
			lg.mu.Unlock()
			return snap, nil
		case st.state == Dirty && st.err != nil:
			err := st.err
			lg.mu.Unlock()
			return Snapshot{}, err
		case lg.workers == 0:
			lg.mu.Unlock()
			return Snapshot{}, ErrNoWorkers
		case !lg.started:
			lg.mu.Unlock()
			return Snapshot{}, ErrNotStarted
		case st.state == Dirty:
			lg.materializeLocked([]node.ID{id}, lg.tokens.Generate())
		}
		wait := lg.settled
		lg.mu.Unlock()

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-wait:
		}
	}
}

func (lg *LiveGraph) snapshotLocked(id node.ID) Snapshot {
	n, _ := lg.graph.Node(id)
	bufs := make([]*buffer.Buffer, len(n.Outputs()))
	for i := range bufs {
		bufs[i], _ = lg.cache.get(id, node.SlotID(i))
	}
	return Snapshot{Node: n, Buffers: bufs}
}

func (lg *LiveGraph) cleanBufferLocked(id node.ID, slot node.SlotID) (*buffer.Buffer, bool) {
	st, ok := lg.nodes[id]
	if !ok || st.state != Clean {
		return nil, false
	}
	return lg.cache.get(id, slot)
}

func (lg *LiveGraph) watchedLocked() []node.ID {
	ids := make([]node.ID, 0, len(lg.watch))
	for id := range lg.watch {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
