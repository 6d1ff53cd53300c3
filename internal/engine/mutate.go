package engine

import (
	"fmt"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/graph"
	"github.com/roach88/texgraph/internal/node"
)

// AddNode inserts a node of type t. The new node is Dirty.
func (lg *LiveGraph) AddNode(t node.Type) (node.ID, error) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if lg.closed {
		return 0, ErrClosed
	}
	id, err := lg.graph.AddNode(t)
	if err != nil {
		return 0, err
	}
	lg.trackLocked(id)
	lg.logger.Debug("node added", "node", id, "kind", t.Kind)
	lg.afterMutationLocked(nil)
	return id, nil
}

// AddNodeWithID restores a node under its original id, as undo does.
func (lg *LiveGraph) AddNodeWithID(n node.Node) error {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if lg.closed {
		return ErrClosed
	}
	if err := lg.graph.AddNodeWithID(n); err != nil {
		return err
	}
	lg.trackLocked(n.ID)
	lg.logger.Debug("node restored", "node", n.ID, "kind", n.Type.Kind)
	lg.afterMutationLocked(nil)
	return nil
}

// RemoveNode deletes id and its edges. Former downstream consumers become
// Dirty. A result still in flight for id is discarded when it arrives.
func (lg *LiveGraph) RemoveNode(id node.ID) error {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if lg.closed {
		return ErrClosed
	}
	affected, err := lg.graph.RemoveNode(id)
	if err != nil {
		return err
	}
	delete(lg.nodes, id)
	delete(lg.watch, id)
	lg.cache.invalidate(id)
	lg.changed.Add(id)
	lg.logger.Debug("node removed", "node", id, "affected", len(affected))
	lg.afterMutationLocked(affected)
	return nil
}

// Connect feeds outSlot of out into inSlot of in, replacing any edge already
// feeding that input.
func (lg *LiveGraph) Connect(out node.ID, outSlot node.SlotID, in node.ID, inSlot node.SlotID) error {
	return lg.mutate(func(g *graph.Graph) ([]node.ID, error) {
		return g.Connect(graph.SlotRef{Node: out, Slot: outSlot}, graph.SlotRef{Node: in, Slot: inSlot})
	})
}

// ConnectArbitrary connects two slots given in either direction.
func (lg *LiveGraph) ConnectArbitrary(a node.ID, aSide node.Side, aSlot node.SlotID, b node.ID, bSide node.Side, bSlot node.SlotID) error {
	return lg.mutate(func(g *graph.Graph) ([]node.ID, error) {
		return g.ConnectArbitrary(a, aSide, aSlot, b, bSide, bSlot)
	})
}

// InsertEdge adds e, failing with graph.ErrSlotOccupied instead of replacing.
func (lg *LiveGraph) InsertEdge(e graph.Edge) error {
	return lg.mutate(func(g *graph.Graph) ([]node.ID, error) {
		return g.InsertEdge(e)
	})
}

// Disconnect removes the edge feeding inSlot of in. Idempotent.
func (lg *LiveGraph) Disconnect(in node.ID, inSlot node.SlotID) error {
	return lg.mutate(func(g *graph.Graph) ([]node.ID, error) {
		return g.Disconnect(graph.SlotRef{Node: in, Slot: inSlot})
	})
}

// DisconnectOutput removes every edge leaving outSlot of out.
func (lg *LiveGraph) DisconnectOutput(out node.ID, outSlot node.SlotID) error {
	return lg.mutate(func(g *graph.Graph) ([]node.ID, error) {
		return g.DisconnectOutput(graph.SlotRef{Node: out, Slot: outSlot})
	})
}

// SetType replaces the variant parameters of id; the kind must not change.
func (lg *LiveGraph) SetType(id node.ID, t node.Type) error {
	return lg.mutate(func(g *graph.Graph) ([]node.ID, error) {
		if err := g.SetType(id, t); err != nil {
			return nil, err
		}
		return affected(g, id), nil
	})
}

// SetValue changes the output of a value node.
func (lg *LiveGraph) SetValue(id node.ID, v float32) error {
	return lg.editType(id, node.KindValue, func(t *node.Type) { t.Value = v })
}

// SetMixType changes the operator of a mix node.
func (lg *LiveGraph) SetMixType(id node.ID, op node.MixOp) error {
	return lg.editType(id, node.KindMix, func(t *node.Type) { t.Mix = op })
}

// SetStrength changes the gradient scale of a height-to-normal node.
func (lg *LiveGraph) SetStrength(id node.ID, s float32) error {
	return lg.editType(id, node.KindHeightToNormal, func(t *node.Type) { t.Strength = s })
}

// SetResizePolicy changes how id reconciles differing input sizes.
func (lg *LiveGraph) SetResizePolicy(id node.ID, p buffer.Policy) error {
	return lg.mutate(func(g *graph.Graph) ([]node.ID, error) {
		n, err := g.NodeMut(id)
		if err != nil {
			return nil, err
		}
		n.Resize = p
		return affected(g, id), nil
	})
}

// SetResizeFilter changes the resampling filter of id.
func (lg *LiveGraph) SetResizeFilter(id node.ID, f buffer.Filter) error {
	return lg.mutate(func(g *graph.Graph) ([]node.ID, error) {
		n, err := g.NodeMut(id)
		if err != nil {
			return nil, err
		}
		n.Filter = f
		return affected(g, id), nil
	})
}

// Watch adds id to the set kept fresh by auto_update and Process.
func (lg *LiveGraph) Watch(id node.ID) error {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if !lg.graph.HasNode(id) {
		return fmt.Errorf("%w: node %d", graph.ErrNotFound, id)
	}
	lg.watch[id] = struct{}{}
	if lg.autoUpdate && !lg.closed {
		lg.materializeLocked([]node.ID{id}, lg.tokens.Generate())
	}
	return nil
}

// Unwatch removes id from the watch set. Unknown ids are ignored.
func (lg *LiveGraph) Unwatch(id node.ID) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	delete(lg.watch, id)
}

// SetAutoUpdate toggles implicit materialization after mutations. Turning it
// on materializes the watch set immediately.
func (lg *LiveGraph) SetAutoUpdate(on bool) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	lg.autoUpdate = on
	if on && !lg.closed && len(lg.watch) > 0 {
		lg.materializeLocked(lg.watchedLocked(), lg.tokens.Generate())
	}
}

// SetUseCache toggles the persistent store. In-memory buffers are unaffected.
func (lg *LiveGraph) SetUseCache(on bool) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	lg.useCache = on
}

// mutate applies a graph mutation under the write lock and invalidates the
// nodes it reports as affected.
func (lg *LiveGraph) mutate(fn func(g *graph.Graph) ([]node.ID, error)) error {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	if lg.closed {
		return ErrClosed
	}
	ids, err := fn(lg.graph)
	if err != nil {
		return err
	}
	lg.afterMutationLocked(ids)
	return nil
}

func (lg *LiveGraph) editType(id node.ID, kind node.Kind, edit func(t *node.Type)) error {
	return lg.mutate(func(g *graph.Graph) ([]node.ID, error) {
		n, err := g.Node(id)
		if err != nil {
			return nil, err
		}
		if n.Type.Kind != kind {
			return nil, fmt.Errorf("%w: node %d is %s, not %s", graph.ErrKindChange, id, n.Type.Kind, kind)
		}
		t := n.Type
		edit(&t)
		if err := g.SetType(id, t); err != nil {
			return nil, err
		}
		return affected(g, id), nil
	})
}

func affected(g *graph.Graph, id node.ID) []node.ID {
	set := graph.AffectedDownstream(g, id)
	ids := make([]node.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func (lg *LiveGraph) trackLocked(id node.ID) {
	lg.nodes[id] = &nodeState{state: Dirty, version: lg.clock.Next()}
	lg.changed.Add(id)
}

// afterMutationLocked invalidates affected nodes and, with auto_update,
// re-requests the watch set.
func (lg *LiveGraph) afterMutationLocked(affected []node.ID) {
	lg.invalidateLocked(affected)
	if lg.autoUpdate && len(lg.watch) > 0 {
		lg.materializeLocked(lg.watchedLocked(), lg.tokens.Generate())
	}
}
