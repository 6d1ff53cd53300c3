package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/node"
)

// ComputeFunc computes a node's outputs from its input buffers.
// node.Compute is the production implementation.
type ComputeFunc func(n node.Node, inputs []*buffer.Buffer) ([]*buffer.Buffer, error)

// BufferStore is the persistent second-level cache consulted when use_cache
// is on. Implemented by store.Store and postgres.PGStore.
type BufferStore interface {
	LoadBuffers(ctx context.Context, key string) ([]*buffer.Buffer, bool, error)
	SaveBuffers(ctx context.Context, key, kind string, outs []*buffer.Buffer) error
}

// Option configures a LiveGraph.
type Option func(*LiveGraph)

// WithWorkers sets the worker pool size. Zero disables computation entirely,
// which leaves scheduling state observable without races.
func WithWorkers(n int) Option {
	return func(lg *LiveGraph) {
		if n < 0 {
			n = 0
		}
		lg.workers = n
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(lg *LiveGraph) {
		if l != nil {
			lg.logger = l
		}
	}
}

// WithAutoUpdate materializes the watch set after every mutation.
func WithAutoUpdate(on bool) Option {
	return func(lg *LiveGraph) {
		lg.autoUpdate = on
	}
}

// WithStore attaches a persistent buffer store.
func WithStore(s BufferStore) Option {
	return func(lg *LiveGraph) {
		lg.store = s
	}
}

// WithUseCache enables reads and writes of the persistent store.
func WithUseCache(on bool) Option {
	return func(lg *LiveGraph) {
		lg.useCache = on
	}
}

// WithTokenGenerator sets the request token source. Default: UUIDv7Generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(lg *LiveGraph) {
		if g != nil {
			lg.tokens = g
		}
	}
}

// WithCompute replaces the compute function. Tests use it to block or fail
// specific nodes.
func WithCompute(f ComputeFunc) Option {
	return func(lg *LiveGraph) {
		if f != nil {
			lg.compute = f
		}
	}
}
