package engine

import (
	"fmt"
	"sort"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/graph"
	"github.com/roach88/texgraph/internal/node"
)

// job is everything a worker needs to compute one node without the lock.
type job struct {
	node     node.Node
	inputs   []*buffer.Buffer
	version  uint64
	useCache bool
	request  string
}

// Materialize requests computation of targets and every non-Clean ancestor.
// It returns immediately; watch ChangedConsume or use AwaitCleanRead.
func (lg *LiveGraph) Materialize(targets ...node.ID) error {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if lg.closed {
		return ErrClosed
	}
	for _, id := range targets {
		if !lg.graph.HasNode(id) {
			return fmt.Errorf("%w: node %d", graph.ErrNotFound, id)
		}
	}
	lg.materializeLocked(targets, lg.tokens.Generate())
	return nil
}

// Process materializes the watch set and every output node.
func (lg *LiveGraph) Process() error {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if lg.closed {
		return ErrClosed
	}
	targets := append(lg.watchedLocked(), lg.graph.OutputIDs()...)
	lg.materializeLocked(targets, lg.tokens.Generate())
	return nil
}

// materializeLocked moves every non-Clean ancestor of targets to Requested,
// and the targets themselves to Prioritised. Nodes already executing a
// current job are left alone. It returns the number of nodes scheduled.
func (lg *LiveGraph) materializeLocked(targets []node.ID, request string) int {
	targetSet := make(map[node.ID]struct{}, len(targets))
	for _, id := range targets {
		targetSet[id] = struct{}{}
	}

	ancestors := graph.Ancestors(lg.graph, targets)
	ids := make([]node.ID, 0, len(ancestors))
	for id := range ancestors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	scheduled := 0
	for _, id := range ids {
		st := lg.nodes[id]
		if st == nil || st.state == Clean || st.state == Processing {
			continue
		}
		next := Requested
		if _, ok := targetSet[id]; ok || st.state == Prioritised {
			next = Prioritised
		}
		if next == st.state && st.err == nil {
			continue
		}
		st.state = next
		st.err = nil
		st.request = request
		lg.changed.Add(id)
		scheduled++
	}

	lg.logger.Debug("materialize",
		"request", request,
		"targets", len(targets),
		"ancestors", len(ids),
		"scheduled", scheduled,
	)
	if scheduled > 0 {
		lg.signalWorkersLocked()
	}
	return scheduled
}

// invalidateLocked sends ids back to Dirty with a fresh version, dropping
// their buffers and any recorded error.
func (lg *LiveGraph) invalidateLocked(ids []node.ID) {
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		st := lg.nodes[id]
		if st == nil {
			continue
		}
		st.version = lg.clock.Next()
		st.state = Dirty
		st.err = nil
		lg.cache.invalidate(id)
		lg.changed.Add(id)
	}
	lg.logger.Debug("invalidated", "nodes", len(ids))
	lg.notifyLocked()
}

// nextJob picks the best eligible node and marks it Processing.
func (lg *LiveGraph) nextJob() (job, bool) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if lg.closed {
		return job{}, false
	}

	depths := lg.depthsLocked()
	var (
		best   node.ID
		bestSt *nodeState
	)
	for id, st := range lg.nodes {
		if !st.state.pending() || !lg.eligibleLocked(id) {
			continue
		}
		if _, busy := lg.inflight[id]; busy {
			continue
		}
		if bestSt == nil || lg.before(id, st, best, bestSt, depths) {
			best, bestSt = id, st
		}
	}
	if bestSt == nil {
		return job{}, false
	}

	n, _ := lg.graph.Node(best)
	inputs := make([]*buffer.Buffer, len(n.Inputs()))
	for i := range inputs {
		e, ok := lg.graph.InputEdge(graph.SlotRef{Node: best, Slot: node.SlotID(i)})
		if !ok {
			continue
		}
		inputs[i], _ = lg.cache.get(e.Output.Node, e.Output.Slot)
	}

	bestSt.state = Processing
	lg.inflight[best] = bestSt.version
	lg.changed.Add(best)
	lg.logger.Debug("dispatch", "request", bestSt.request, "node", best, "kind", n.Type.Kind, "version", bestSt.version)

	return job{
		node:     n,
		inputs:   inputs,
		version:  bestSt.version,
		useCache: lg.useCache && lg.store != nil,
		request:  bestSt.request,
	}, true
}

// before orders candidates: Prioritised first, then shallower depth, then id.
func (lg *LiveGraph) before(a node.ID, as *nodeState, b node.ID, bs *nodeState, depths map[node.ID]int) bool {
	if (as.state == Prioritised) != (bs.state == Prioritised) {
		return as.state == Prioritised
	}
	if depths[a] != depths[b] {
		return depths[a] < depths[b]
	}
	return a < b
}

// eligibleLocked reports whether every producer of id is Clean.
// Unconnected inputs do not block; the compute function reports them.
func (lg *LiveGraph) eligibleLocked(id node.ID) bool {
	for _, p := range lg.graph.Producers(id) {
		if st := lg.nodes[p]; st == nil || st.state != Clean {
			return false
		}
	}
	return true
}

// commit applies a finished job if it is still current.
func (lg *LiveGraph) commit(j job, outs []*buffer.Buffer, err error) {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	id := j.node.ID
	if v, ok := lg.inflight[id]; ok && v == j.version {
		delete(lg.inflight, id)
	}
	st := lg.nodes[id]
	if st == nil {
		lg.logger.Debug("discarding result for removed node", "request", j.request, "node", id)
		// A restored node with the same id may be waiting on this job.
		lg.signalWorkersLocked()
		return
	}

	if st.version != j.version {
		lg.logger.Warn("discarding stale result",
			"request", j.request,
			"node", id,
			"dispatched_version", j.version,
			"current_version", st.version,
		)
		// The node may have been re-requested while this job ran.
		lg.signalWorkersLocked()
		return
	}

	if err != nil {
		st.state = Dirty
		st.err = err
		lg.cache.invalidate(id)
		lg.changed.Add(id)
		lg.logger.Error("node compute failed",
			"request", j.request,
			"node", id,
			"kind", j.node.Type.Kind,
			"code", node.ErrorCode(err),
			"error", err,
		)
		lg.failDownstreamLocked(id)
		lg.notifyLocked()
		return
	}

	lg.cache.put(id, outs)
	st.state = Clean
	st.err = nil
	lg.changed.Add(id)
	lg.logger.Debug("node computed", "request", j.request, "node", id, "kind", j.node.Type.Kind)
	lg.signalWorkersLocked()
	lg.notifyLocked()
}

// failDownstreamLocked releases pending consumers of a failed node so they
// do not wait forever for an input that will not arrive.
func (lg *LiveGraph) failDownstreamLocked(failed node.ID) {
	down := graph.AffectedDownstream(lg.graph, failed)
	ids := make([]node.ID, 0, len(down))
	for id := range down {
		if id != failed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		st := lg.nodes[id]
		if st == nil || !st.state.pending() {
			continue
		}
		if _, busy := lg.inflight[id]; busy {
			continue
		}
		st.state = Dirty
		st.err = node.NewUpstreamError(id, failed)
		lg.changed.Add(id)
		lg.logger.Debug("upstream failed", "node", id, "upstream", failed)
	}
}

// depthsLocked returns topological depths, recomputed when the graph changed.
func (lg *LiveGraph) depthsLocked() map[node.ID]int {
	if !lg.depthsValid || lg.depthsVersion != lg.graph.Version() {
		lg.depths = graph.Depths(lg.graph)
		lg.depthsVersion = lg.graph.Version()
		lg.depthsValid = true
	}
	return lg.depths
}

// signalWorkersLocked wakes idle workers without blocking.
func (lg *LiveGraph) signalWorkersLocked() {
	for i := 0; i < lg.workers; i++ {
		select {
		case lg.wake <- struct{}{}:
		default:
			return
		}
	}
}

// notifyLocked wakes every AwaitCleanRead caller.
func (lg *LiveGraph) notifyLocked() {
	close(lg.settled)
	lg.settled = make(chan struct{})
}
