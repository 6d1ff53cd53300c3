package testutil

import (
	"fmt"
	"sync"
)

// FixedTokenGenerator returns the same request token every time.
//
// The same scenario with the same FixedTokenGenerator produces identical
// log output, which keeps golden comparisons stable.
//
// Thread-safety: FixedTokenGenerator is stateless and safe for concurrent use.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a generator returning token.
// If token is empty, Generate returns "test-request-default".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-request-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
//
// Implements engine.TokenGenerator.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}

// SequenceTokenGenerator returns prefix-1, prefix-2, ... in call order.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequenceTokenGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceTokenGenerator creates a generator numbering from 1.
func NewSequenceTokenGenerator(prefix string) *SequenceTokenGenerator {
	return &SequenceTokenGenerator{prefix: prefix}
}

// Generate returns the next token in the sequence.
func (g *SequenceTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Count returns how many tokens were issued.
func (g *SequenceTokenGenerator) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}
