// Package graph owns the topology of the texture graph: nodes, slots and the
// edges between them.
//
// Graph is not synchronized. The engine's LiveGraph wraps it in a single
// reader/writer lock together with the scheduler state and buffer cache.
//
// Invariants kept after every successful mutation:
//   - the graph is acyclic; edge inserts that would close a cycle are rejected
//   - an input slot has at most one incoming edge
//   - every edge endpoint refers to an existing node and slot
//   - node ids are never reused
//
// Mutations return the set of nodes whose output is now stale so the caller
// can drive dirty propagation; Graph itself keeps no execution state.
package graph

import (
	"fmt"
	"math"
	"sort"

	"github.com/roach88/texgraph/internal/node"
)

// SlotRef names one slot on one node.
type SlotRef struct {
	Node node.ID
	Slot node.SlotID
}

func (r SlotRef) String() string {
	return fmt.Sprintf("%d:%d", r.Node, r.Slot)
}

// Edge is a directed connection (Output -> Input).
type Edge struct {
	Output SlotRef
	Input  SlotRef
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s", e.Output, e.Input)
}

// Graph is the DAG of texture nodes.
type Graph struct {
	nodes  map[node.ID]*node.Node
	inputs map[SlotRef]SlotRef // input slot -> feeding output slot
	// producers[c][p] and consumers[p][c] count the edges p -> c.
	producers map[node.ID]map[node.ID]int
	consumers map[node.ID]map[node.ID]int
	nextID    node.ID
	// version changes on every structural mutation.
	version uint64
}

// New returns an empty graph. The first issued id is 1.
func New() *Graph {
	return &Graph{
		nodes:     make(map[node.ID]*node.Node),
		inputs:    make(map[SlotRef]SlotRef),
		producers: make(map[node.ID]map[node.ID]int),
		consumers: make(map[node.ID]map[node.ID]int),
		nextID:    1,
	}
}

// Version returns a counter that changes whenever nodes or edges change.
func (g *Graph) Version() uint64 { return g.version }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// AddNode allocates a fresh id and inserts a node of type t with no edges.
func (g *Graph) AddNode(t node.Type) (node.ID, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if g.nextID == math.MaxUint64 {
		return 0, ErrIDExhausted
	}
	id := g.nextID
	g.nextID++
	n := node.New(id, t)
	g.nodes[id] = &n
	g.version++
	return id, nil
}

// AddNodeWithID inserts a node whose id was assigned earlier, as when undo
// replays a removed node. The id counter is advanced past n.ID so it is never
// issued again.
func (g *Graph) AddNodeWithID(n node.Node) error {
	if n.ID == 0 {
		return fmt.Errorf("%w: id 0 is reserved", ErrNotFound)
	}
	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, n.ID)
	}
	if err := n.Type.Validate(); err != nil {
		return err
	}
	cp := n
	g.nodes[n.ID] = &cp
	if n.ID >= g.nextID {
		g.nextID = n.ID + 1
	}
	g.version++
	return nil
}

// RemoveNode deletes id and every incident edge. It returns the former
// downstream consumers (transitively), which are now stale.
func (g *Graph) RemoveNode(id node.ID) ([]node.ID, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	affected := AffectedDownstream(g, id)
	delete(affected, id)

	for _, in := range g.inputSlots(id) {
		g.unlink(in)
	}
	for _, c := range g.Consumers(id) {
		for _, in := range g.inputSlots(c) {
			if out, ok := g.inputs[in]; ok && out.Node == id {
				g.unlink(in)
			}
		}
	}
	delete(g.nodes, id)
	g.version++
	return sortedIDs(affected), nil
}

// Node returns a copy of the node.
func (g *Graph) Node(id node.ID) (node.Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return node.Node{}, fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	return *n, nil
}

// NodeMut returns the stored node for in-place parameter edits. Callers must
// not change ID or Type.Kind; use SetType for variant parameters.
func (g *Graph) NodeMut(id node.ID) (*node.Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrNotFound, id)
	}
	return n, nil
}

// HasNode reports whether id exists.
func (g *Graph) HasNode(id node.ID) bool {
	_, ok := g.nodes[id]
	return ok
}

// SetType replaces the variant parameters of id. The kind, and with it the
// slot arity, must stay the same.
func (g *Graph) SetType(id node.ID, t node.Type) error {
	n, err := g.NodeMut(id)
	if err != nil {
		return err
	}
	if t.Kind != n.Type.Kind {
		return fmt.Errorf("%w: %s -> %s", ErrKindChange, n.Type.Kind, t.Kind)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	n.Type = t
	return nil
}

// NodeIDs returns all node ids in ascending order.
func (g *Graph) NodeIDs() []node.ID {
	ids := make([]node.ID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OutputIDs returns the ids of sink nodes in ascending order.
func (g *Graph) OutputIDs() []node.ID {
	var ids []node.ID
	for _, id := range g.NodeIDs() {
		if g.nodes[id].Type.Kind.IsOutput() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Edges returns every edge ordered by input node then input slot.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.inputs))
	for in, out := range g.inputs {
		edges = append(edges, Edge{Output: out, Input: in})
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i].Input, edges[j].Input
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		return a.Slot < b.Slot
	})
	return edges
}

// InputEdge returns the edge feeding an input slot, if any.
func (g *Graph) InputEdge(in SlotRef) (Edge, bool) {
	out, ok := g.inputs[in]
	if !ok {
		return Edge{}, false
	}
	return Edge{Output: out, Input: in}, true
}

// Producers returns the distinct nodes feeding id, ascending.
func (g *Graph) Producers(id node.ID) []node.ID {
	return sortedKeys(g.producers[id])
}

// Consumers returns the distinct nodes fed by id, ascending.
func (g *Graph) Consumers(id node.ID) []node.ID {
	return sortedKeys(g.consumers[id])
}

// link sets the edge out -> in, replacing whatever fed in.
func (g *Graph) link(out, in SlotRef) {
	g.unlink(in)
	g.inputs[in] = out
	addCount(g.producers, in.Node, out.Node)
	addCount(g.consumers, out.Node, in.Node)
}

// unlink removes the edge feeding in, if any.
func (g *Graph) unlink(in SlotRef) {
	out, ok := g.inputs[in]
	if !ok {
		return
	}
	delete(g.inputs, in)
	dropCount(g.producers, in.Node, out.Node)
	dropCount(g.consumers, out.Node, in.Node)
}

// inputSlots lists the input slot refs of id.
func (g *Graph) inputSlots(id node.ID) []SlotRef {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	refs := make([]SlotRef, len(n.Inputs()))
	for i := range refs {
		refs[i] = SlotRef{Node: id, Slot: node.SlotID(i)}
	}
	return refs
}

func addCount(m map[node.ID]map[node.ID]int, a, b node.ID) {
	inner, ok := m[a]
	if !ok {
		inner = make(map[node.ID]int)
		m[a] = inner
	}
	inner[b]++
}

func dropCount(m map[node.ID]map[node.ID]int, a, b node.ID) {
	inner := m[a]
	if inner[b]--; inner[b] <= 0 {
		delete(inner, b)
	}
	if len(inner) == 0 {
		delete(m, a)
	}
}

func sortedKeys(m map[node.ID]int) []node.ID {
	ids := make([]node.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedIDs(set map[node.ID]struct{}) []node.ID {
	ids := make([]node.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
