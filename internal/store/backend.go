package store

import (
	"context"

	"github.com/roach88/texgraph/internal/buffer"
)

// Backend is a persistent buffer cache. Store is the SQLite backend; the
// postgres subpackage provides a shared one.
type Backend interface {
	SaveBuffers(ctx context.Context, key, kind string, outs []*buffer.Buffer) error
	LoadBuffers(ctx context.Context, key string) ([]*buffer.Buffer, bool, error)
	Stats(ctx context.Context) (Stats, error)
	Prune(ctx context.Context, keep int) (int, error)
	Close() error
}

var _ Backend = (*Store)(nil)
