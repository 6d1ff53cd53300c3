// Package node defines the closed set of texture-processing node types, their
// slot layouts and the pure compute function behind each of them.
package node

import (
	"fmt"
	"strconv"

	"github.com/roach88/texgraph/internal/buffer"
)

// ID identifies a node for its whole lifetime. IDs are issued by the graph's
// counter and never reused.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses the decimal form produced by ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return ID(v), nil
}

// SlotID is an input or output position on a node, unique per (node, side).
type SlotID int

// Side distinguishes input slots from output slots.
type Side int

const (
	Input Side = iota
	Output
)

func (s Side) String() string {
	if s == Output {
		return "output"
	}
	return "input"
}

// SlotType is the category of data a slot carries.
type SlotType int

const (
	SlotGray SlotType = iota
	SlotRgba
	// SlotGrayOrRgba accepts or produces either format.
	SlotGrayOrRgba
)

func (t SlotType) String() string {
	switch t {
	case SlotGray:
		return "gray"
	case SlotRgba:
		return "rgba"
	case SlotGrayOrRgba:
		return "gray_or_rgba"
	default:
		return fmt.Sprintf("slot_type(%d)", int(t))
	}
}

// Compatible reports whether an output slot of type out may feed an input of type in.
func Compatible(out, in SlotType) bool {
	return out == in || out == SlotGrayOrRgba || in == SlotGrayOrRgba
}

// Slot describes one position on a node.
type Slot struct {
	ID   SlotID
	Name string
	Type SlotType
}

// Node is a typed processing unit. ID and the slot arity implied by Type.Kind
// are fixed once created; parameters and resize settings may change.
type Node struct {
	ID     ID
	Type   Type
	Resize buffer.Policy
	Filter buffer.Filter
}

// New returns a node with default resize settings.
func New(id ID, t Type) Node {
	return Node{ID: id, Type: t, Resize: buffer.MostPixels(), Filter: buffer.FilterNearest}
}

// Inputs returns the node's input slots.
func (n Node) Inputs() []Slot { return n.Type.Inputs() }

// Outputs returns the node's output slots.
func (n Node) Outputs() []Slot { return n.Type.Outputs() }

// Slot returns the slot at id on the given side.
func (n Node) Slot(side Side, id SlotID) (Slot, bool) {
	slots := n.Inputs()
	if side == Output {
		slots = n.Outputs()
	}
	if id < 0 || int(id) >= len(slots) {
		return Slot{}, false
	}
	return slots[id], true
}

func (n Node) String() string {
	return fmt.Sprintf("%s#%d", n.Type.Kind, n.ID)
}
