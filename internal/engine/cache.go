package engine

import (
	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/node"
)

// slotKey addresses one output slot.
type slotKey struct {
	node node.ID
	slot node.SlotID
}

// bufferCache holds the output buffers of Clean nodes.
//
// Entries exist for a node exactly while it is Clean: put happens in the same
// critical section that marks the node Clean and invalidate in the one that
// moves it away. Buffers are immutable once stored; recomputation replaces
// them and consumers keep reading the pointer they were handed.
//
// Not synchronized; guarded by the LiveGraph lock.
type bufferCache struct {
	entries map[slotKey]*buffer.Buffer
	// slots remembers how many outputs each node stored, so invalidate does
	// not need the node's type.
	slots map[node.ID]int
}

func newBufferCache() *bufferCache {
	return &bufferCache{
		entries: make(map[slotKey]*buffer.Buffer),
		slots:   make(map[node.ID]int),
	}
}

// get returns the buffer for (id, slot) if present.
func (c *bufferCache) get(id node.ID, slot node.SlotID) (*buffer.Buffer, bool) {
	b, ok := c.entries[slotKey{id, slot}]
	return b, ok
}

// put stores all output buffers of id, replacing earlier ones.
func (c *bufferCache) put(id node.ID, outs []*buffer.Buffer) {
	c.invalidate(id)
	for i, b := range outs {
		c.entries[slotKey{id, node.SlotID(i)}] = b
	}
	c.slots[id] = len(outs)
}

// invalidate drops every buffer of id. It reports whether anything was held.
func (c *bufferCache) invalidate(id node.ID) bool {
	n, ok := c.slots[id]
	if !ok {
		return false
	}
	for i := 0; i < n; i++ {
		delete(c.entries, slotKey{id, node.SlotID(i)})
	}
	delete(c.slots, id)
	return true
}

// len returns the number of nodes with cached buffers.
func (c *bufferCache) len() int {
	return len(c.slots)
}

// bytes estimates the memory held by cached pixels.
func (c *bufferCache) bytes() int {
	total := 0
	for _, b := range c.entries {
		total += len(b.Pix()) * 4
	}
	return total
}
