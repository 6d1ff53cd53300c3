package graph

import "errors"

// Structural mutation errors. Every rejected mutation leaves the graph unchanged.
var (
	ErrNotFound         = errors.New("graph: not found")
	ErrDuplicateID      = errors.New("graph: duplicate node id")
	ErrSlotTypeMismatch = errors.New("graph: slot type mismatch")
	ErrSlotOccupied     = errors.New("graph: input slot occupied")
	ErrWouldCreateCycle = errors.New("graph: edge would create a cycle")
	ErrSlotOutOfRange   = errors.New("graph: slot out of range")
	ErrKindChange       = errors.New("graph: node kind cannot change")
	ErrIDExhausted      = errors.New("graph: node id space exhausted")
)
