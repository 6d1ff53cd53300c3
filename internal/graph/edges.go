package graph

import (
	"fmt"

	"github.com/roach88/texgraph/internal/node"
)

// Connect adds the edge out -> in. An edge already feeding in is replaced.
// It returns the input node and everything downstream of it, ascending.
// When an edge was replaced, its former producer and that producer's
// remaining downstream are included too.
func (g *Graph) Connect(out, in SlotRef) ([]node.ID, error) {
	if err := g.checkEdge(out, in); err != nil {
		return nil, err
	}
	prev, replaced := g.inputs[in]
	if replaced && prev == out {
		return nil, nil
	}
	g.link(out, in)
	g.version++

	affected := AffectedDownstream(g, in.Node)
	if replaced {
		for id := range AffectedDownstream(g, prev.Node) {
			affected[id] = struct{}{}
		}
	}
	return sortedIDs(affected), nil
}

// InsertEdge adds e without replacing: an occupied input slot is an error.
// Undo replay uses it to restore edges exactly as they were.
func (g *Graph) InsertEdge(e Edge) ([]node.ID, error) {
	if err := g.checkEdge(e.Output, e.Input); err != nil {
		return nil, err
	}
	if prev, ok := g.inputs[e.Input]; ok {
		return nil, fmt.Errorf("%w: %s already fed by %s", ErrSlotOccupied, e.Input, prev)
	}
	g.link(e.Output, e.Input)
	g.version++
	return sortedIDs(AffectedDownstream(g, e.Input.Node)), nil
}

// ConnectArbitrary connects two slots given in either order. Exactly one side
// must be an output.
func (g *Graph) ConnectArbitrary(a node.ID, aSide node.Side, aSlot node.SlotID, b node.ID, bSide node.Side, bSlot node.SlotID) ([]node.ID, error) {
	if aSide == bSide {
		return nil, fmt.Errorf("%w: both endpoints are %s slots", ErrSlotTypeMismatch, aSide)
	}
	out := SlotRef{Node: a, Slot: aSlot}
	in := SlotRef{Node: b, Slot: bSlot}
	if aSide == node.Input {
		out, in = in, out
	}
	return g.Connect(out, in)
}

// Disconnect removes the edge feeding in.Slot of in.Node. A missing edge is
// not an error and yields no affected nodes.
func (g *Graph) Disconnect(in SlotRef) ([]node.ID, error) {
	if !g.HasNode(in.Node) {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, in.Node)
	}
	if _, ok := g.inputs[in]; !ok {
		return nil, nil
	}
	g.unlink(in)
	g.version++
	return sortedIDs(AffectedDownstream(g, in.Node)), nil
}

// DisconnectOutput removes every edge leaving out.
func (g *Graph) DisconnectOutput(out SlotRef) ([]node.ID, error) {
	if !g.HasNode(out.Node) {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, out.Node)
	}
	affected := make(map[node.ID]struct{})
	for _, c := range g.Consumers(out.Node) {
		for _, in := range g.inputSlots(c) {
			if src, ok := g.inputs[in]; !ok || src != out {
				continue
			}
			g.unlink(in)
			for id := range AffectedDownstream(g, c) {
				affected[id] = struct{}{}
			}
		}
	}
	if len(affected) == 0 {
		return nil, nil
	}
	g.version++
	return sortedIDs(affected), nil
}

// checkEdge validates endpoints, slot types and acyclicity without mutating.
func (g *Graph) checkEdge(out, in SlotRef) error {
	outNode, ok := g.nodes[out.Node]
	if !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, out.Node)
	}
	inNode, ok := g.nodes[in.Node]
	if !ok {
		return fmt.Errorf("%w: node %d", ErrNotFound, in.Node)
	}
	outSlot, ok := outNode.Slot(node.Output, out.Slot)
	if !ok {
		return fmt.Errorf("%w: %s has no output slot %d", ErrSlotOutOfRange, outNode, out.Slot)
	}
	inSlot, ok := inNode.Slot(node.Input, in.Slot)
	if !ok {
		return fmt.Errorf("%w: %s has no input slot %d", ErrSlotOutOfRange, inNode, in.Slot)
	}
	if !node.Compatible(outSlot.Type, inSlot.Type) {
		return fmt.Errorf("%w: %s %s -> %s %s", ErrSlotTypeMismatch, out, outSlot.Type, in, inSlot.Type)
	}
	if out.Node == in.Node || reachable(g, in.Node, out.Node) {
		return fmt.Errorf("%w: %s -> %s", ErrWouldCreateCycle, out, in)
	}
	return nil
}
