package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/node"
	"github.com/roach88/texgraph/internal/testutil"
)

// newTestGraph returns a started LiveGraph with no workers unless opts add
// some. Tests without workers drive the scheduler through runAll.
func newTestGraph(t *testing.T, opts ...Option) (*LiveGraph, *testutil.LogRecorder) {
	t.Helper()
	logger, rec := testutil.NewTestLogger()
	base := []Option{
		WithWorkers(0),
		WithLogger(logger),
		WithTokenGenerator(testutil.NewFixedTokenGenerator("req")),
	}
	lg := New(append(base, opts...)...)
	require.NoError(t, lg.Start(context.Background()))
	t.Cleanup(func() { lg.Close() })
	return lg, rec
}

// runAll dispatches and commits jobs on the calling goroutine until nothing
// is eligible. It returns the dispatch order.
func runAll(t *testing.T, lg *LiveGraph) []node.ID {
	t.Helper()
	var order []node.ID
	for i := 0; i < 1000; i++ {
		j, ok := lg.nextJob()
		if !ok {
			return order
		}
		outs, err := lg.execute(context.Background(), j)
		lg.commit(j, outs, err)
		order = append(order, j.node.ID)
	}
	t.Fatal("scheduler did not settle")
	return nil
}

func addNode(t *testing.T, lg *LiveGraph, typ node.Type) node.ID {
	t.Helper()
	id, err := lg.AddNode(typ)
	require.NoError(t, err)
	return id
}

func connect(t *testing.T, lg *LiveGraph, out node.ID, outSlot int, in node.ID, inSlot int) {
	t.Helper()
	require.NoError(t, lg.Connect(out, node.SlotID(outSlot), in, node.SlotID(inSlot)))
}

// mixScenario builds Value(0.5) -> Mix(Add) <- Value(0.3), Mix -> OutputRgba.
func mixScenario(t *testing.T, lg *LiveGraph) (a, b, mix, out node.ID) {
	t.Helper()
	a = addNode(t, lg, node.Value(0.5))
	b = addNode(t, lg, node.Value(0.3))
	mix = addNode(t, lg, node.Mix(node.MixAdd))
	out = addNode(t, lg, node.OutputRgba())
	connect(t, lg, a, 0, mix, 0)
	connect(t, lg, b, 0, mix, 1)
	connect(t, lg, mix, 0, out, 0)
	return a, b, mix, out
}

func requireState(t *testing.T, lg *LiveGraph, want State, ids ...node.ID) {
	t.Helper()
	for _, id := range ids {
		got, err := lg.NodeState(id)
		require.NoError(t, err)
		require.Equal(t, want, got, "node %d", id)
	}
}

func requireUniform(t *testing.T, b *buffer.Buffer, want float32) {
	t.Helper()
	require.NotNil(t, b)
	for i, v := range b.Pix() {
		require.InDelta(t, want, v, 1e-6, "sample %d", i)
	}
}

// memStore is an in-memory BufferStore.
type memStore struct {
	mu     sync.Mutex
	data   map[string][]*buffer.Buffer
	loads  int
	saves  int
	misses int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]*buffer.Buffer)}
}

func (s *memStore) LoadBuffers(_ context.Context, key string) ([]*buffer.Buffer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	outs, ok := s.data[key]
	if !ok {
		s.misses++
	}
	return outs, ok, nil
}

func (s *memStore) SaveBuffers(_ context.Context, key, _ string, outs []*buffer.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.data[key] = outs
	return nil
}
