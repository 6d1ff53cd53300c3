package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/graph"
	"github.com/roach88/texgraph/internal/node"
)

func TestAddNode_StartsDirty(t *testing.T) {
	lg, _ := newTestGraph(t)
	id := addNode(t, lg, node.Value(1))

	requireState(t, lg, Dirty, id)
	assert.Equal(t, []node.ID{id}, lg.ChangedConsume())
	assert.Empty(t, lg.ChangedConsume(), "second drain without mutation is empty")
}

func TestScenario_MixAddFeedsOutput(t *testing.T) {
	lg, _ := newTestGraph(t)
	a, b, mix, out := mixScenario(t, lg)

	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)

	requireState(t, lg, Clean, a, b, mix, out)
	buf, ok := lg.Buffer(out, 0)
	require.True(t, ok)
	assert.Equal(t, buffer.RGBA, buf.Channels())
	requireUniform(t, buf, 0.8)

	size, ok := lg.SlotDataSize(out, 0)
	require.True(t, ok)
	assert.Equal(t, buffer.Size{Width: 1, Height: 1}, size)

	px, _, ok := lg.BufferRGBA(out, 0)
	require.True(t, ok)
	assert.Equal(t, []byte{204, 204, 204, 204}, px)
}

func TestScenario_DisconnectLeavesOutputDirty(t *testing.T) {
	lg, _ := newTestGraph(t)
	_, _, mix, out := mixScenario(t, lg)
	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)

	require.NoError(t, lg.Disconnect(out, 0))
	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)

	requireState(t, lg, Dirty, out)
	requireState(t, lg, Clean, mix)
	err := lg.NodeError(out)
	require.Error(t, err)
	assert.True(t, node.IsInvalidBufferCount(err))

	_, ok := lg.Buffer(out, 0)
	assert.False(t, ok, "no buffer for a dirty node")
}

func TestMaterialize_RequestsAncestorsAndPrioritisesTargets(t *testing.T) {
	lg, _ := newTestGraph(t)
	a, b, mix, out := mixScenario(t, lg)
	lone := addNode(t, lg, node.Value(0))
	lg.ChangedConsume()

	require.NoError(t, lg.Materialize(out))

	requireState(t, lg, Requested, a, b, mix)
	requireState(t, lg, Prioritised, out)
	requireState(t, lg, Dirty, lone)
	assert.Equal(t, []node.ID{a, b, mix, out}, lg.ChangedConsume())

	err := lg.Materialize(999)
	assert.True(t, errors.Is(err, graph.ErrNotFound))
}

func TestMutation_DirtiesExactlyDownstream(t *testing.T) {
	lg, _ := newTestGraph(t)
	a, b, mix, out := mixScenario(t, lg)
	other := addNode(t, lg, node.Value(0.1))
	otherOut := addNode(t, lg, node.OutputGray())
	connect(t, lg, other, 0, otherOut, 0)

	require.NoError(t, lg.Process())
	runAll(t, lg)
	requireState(t, lg, Clean, a, b, mix, out, other, otherOut)
	lg.ChangedConsume()

	require.NoError(t, lg.SetValue(a, 0.1))

	requireState(t, lg, Dirty, a, mix, out)
	requireState(t, lg, Clean, b, other, otherOut)
	assert.Equal(t, []node.ID{a, mix, out}, lg.ChangedConsume())
	assert.Empty(t, lg.ChangedConsume())
}

func TestConnect_ReplacingEdgeDirtiesBothEnds(t *testing.T) {
	lg, _ := newTestGraph(t)
	a, b, mix, out := mixScenario(t, lg)
	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)
	lg.ChangedConsume()

	connect(t, lg, b, 0, mix, 0)

	requireState(t, lg, Dirty, a, mix, out)
	requireState(t, lg, Clean, b)
	assert.Equal(t, []node.ID{a, mix, out}, lg.ChangedConsume())

	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)
	buf, _ := lg.Buffer(out, 0)
	requireUniform(t, buf, 0.6)
}

func TestConnect_RejectedMutationChangesNothing(t *testing.T) {
	lg, _ := newTestGraph(t)
	_, _, mix, out := mixScenario(t, lg)
	lg.ChangedConsume()

	err := lg.Connect(out, 0, mix, 0)
	assert.True(t, errors.Is(err, graph.ErrWouldCreateCycle))
	assert.Empty(t, lg.ChangedConsume())
	assert.Len(t, lg.Edges(), 3)
}

func TestRemoveNode_DirtiesFormerConsumers(t *testing.T) {
	lg, _ := newTestGraph(t)
	a, b, mix, out := mixScenario(t, lg)
	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)
	lg.ChangedConsume()

	require.NoError(t, lg.RemoveNode(mix))

	assert.False(t, lg.HasNode(mix))
	_, err := lg.NodeState(mix)
	assert.True(t, errors.Is(err, graph.ErrNotFound))
	requireState(t, lg, Dirty, out)
	requireState(t, lg, Clean, a, b)
	assert.Equal(t, []node.ID{mix, out}, lg.ChangedConsume())
	assert.Empty(t, lg.Edges())

	next := addNode(t, lg, node.Value(0))
	assert.Greater(t, next, out, "ids are never reused")
}

func TestAddNodeWithID_Restores(t *testing.T) {
	lg, _ := newTestGraph(t)
	_, _, mix, out := mixScenario(t, lg)
	saved, err := lg.Node(mix)
	require.NoError(t, err)
	edges := lg.Edges()

	require.NoError(t, lg.RemoveNode(mix))
	require.NoError(t, lg.AddNodeWithID(saved))
	for _, e := range edges {
		require.NoError(t, lg.InsertEdge(e))
	}

	err = lg.AddNodeWithID(saved)
	assert.True(t, errors.Is(err, graph.ErrDuplicateID))
	err = lg.InsertEdge(edges[0])
	assert.True(t, errors.Is(err, graph.ErrSlotOccupied))

	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)
	buf, _ := lg.Buffer(out, 0)
	requireUniform(t, buf, 0.8)
}

func TestDispatchOrder_PrioritisedThenDepthThenID(t *testing.T) {
	lg, _ := newTestGraph(t)
	v1 := addNode(t, lg, node.Value(0.1))
	v2 := addNode(t, lg, node.Value(0.2))
	mix := addNode(t, lg, node.Mix(node.MixAdd))
	out := addNode(t, lg, node.OutputGray())
	solo := addNode(t, lg, node.Value(0.3))
	connect(t, lg, v1, 0, mix, 0)
	connect(t, lg, v2, 0, mix, 1)
	connect(t, lg, mix, 0, out, 0)

	require.NoError(t, lg.Materialize(out, solo))
	order := runAll(t, lg)

	assert.Equal(t, []node.ID{solo, v1, v2, mix, out}, order)
}

func TestStaleResultIsDiscarded(t *testing.T) {
	lg, rec := newTestGraph(t)
	v := addNode(t, lg, node.Value(0.2))
	out := addNode(t, lg, node.OutputGray())
	connect(t, lg, v, 0, out, 0)
	require.NoError(t, lg.Materialize(out))

	j, ok := lg.nextJob()
	require.True(t, ok)
	require.Equal(t, v, j.node.ID)
	requireState(t, lg, Processing, v)

	require.NoError(t, lg.SetValue(v, 0.9))
	require.NoError(t, lg.Materialize(out))

	_, ok = lg.nextJob()
	assert.False(t, ok, "a running node is never dispatched twice")

	outs, err := lg.execute(context.Background(), j)
	require.NoError(t, err)
	lg.commit(j, outs, err)

	assert.True(t, rec.Has("discarding stale result"))
	_, ok = lg.Buffer(v, 0)
	assert.False(t, ok)

	runAll(t, lg)
	buf, ok := lg.Buffer(out, 0)
	require.True(t, ok)
	requireUniform(t, buf, 0.9)
}

func TestCommit_RemovedNodeIsIgnored(t *testing.T) {
	lg, rec := newTestGraph(t)
	v := addNode(t, lg, node.Value(0.2))
	require.NoError(t, lg.Materialize(v))

	j, ok := lg.nextJob()
	require.True(t, ok)
	require.NoError(t, lg.RemoveNode(v))

	outs, err := lg.execute(context.Background(), j)
	lg.commit(j, outs, err)
	assert.True(t, rec.Has("discarding result for removed node"))
	assert.False(t, lg.HasNode(v))
}

func TestPanicBecomesComputeError(t *testing.T) {
	panicky := func(n node.Node, in []*buffer.Buffer) ([]*buffer.Buffer, error) {
		if n.Type.Kind == node.KindMix {
			panic("boom")
		}
		return node.Compute(n, in)
	}
	lg, rec := newTestGraph(t, WithCompute(panicky))
	a, b, mix, out := mixScenario(t, lg)

	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)

	requireState(t, lg, Clean, a, b)
	requireState(t, lg, Dirty, mix, out)
	assert.Equal(t, node.ErrCodePanic, node.ErrorCode(lg.NodeError(mix)))
	assert.Equal(t, node.ErrCodeUpstreamFailed, node.ErrorCode(lg.NodeError(out)))

	var ce *node.ComputeError
	require.True(t, errors.As(lg.NodeError(out), &ce))
	assert.Equal(t, mix, ce.Upstream)
	assert.True(t, rec.Has("node compute failed"))
}

func TestComputeArityIsChecked(t *testing.T) {
	short := func(n node.Node, in []*buffer.Buffer) ([]*buffer.Buffer, error) {
		return nil, nil
	}
	lg, _ := newTestGraph(t, WithCompute(short))
	v := addNode(t, lg, node.Value(1))

	require.NoError(t, lg.Materialize(v))
	runAll(t, lg)

	requireState(t, lg, Dirty, v)
	assert.True(t, node.IsInvalidBufferCount(lg.NodeError(v)))
}

func TestMaterialize_RetriesFailedNode(t *testing.T) {
	lg, _ := newTestGraph(t)
	out := addNode(t, lg, node.OutputGray())
	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)
	require.Error(t, lg.NodeError(out))

	v := addNode(t, lg, node.Value(0.4))
	connect(t, lg, v, 0, out, 0)
	assert.NoError(t, lg.NodeError(out), "invalidation clears the recorded error")

	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)
	requireState(t, lg, Clean, out)
}

func TestAutoUpdate_KeepsWatchedFresh(t *testing.T) {
	lg, _ := newTestGraph(t, WithAutoUpdate(true))
	a, _, mix, out := mixScenario(t, lg)
	require.NoError(t, lg.Watch(out))
	requireState(t, lg, Prioritised, out)
	runAll(t, lg)
	requireState(t, lg, Clean, out)

	require.NoError(t, lg.SetValue(a, 0.1))
	requireState(t, lg, Requested, a, mix)
	requireState(t, lg, Prioritised, out)
	runAll(t, lg)

	buf, _ := lg.Buffer(out, 0)
	requireUniform(t, buf, 0.4)

	lg.Unwatch(out)
	require.NoError(t, lg.SetValue(a, 0.2))
	requireState(t, lg, Dirty, out)
	assert.Empty(t, lg.Watched())
}

func TestAutoUpdate_Toggle(t *testing.T) {
	lg, _ := newTestGraph(t)
	_, _, _, out := mixScenario(t, lg)
	require.NoError(t, lg.Watch(out))
	requireState(t, lg, Dirty, out)
	assert.False(t, lg.AutoUpdate())

	lg.SetAutoUpdate(true)
	assert.True(t, lg.AutoUpdate())
	requireState(t, lg, Prioritised, out)

	err := lg.Watch(404)
	assert.True(t, errors.Is(err, graph.ErrNotFound))
}

func TestProcess_CoversWatchedAndOutputs(t *testing.T) {
	lg, _ := newTestGraph(t)
	a, _, _, out := mixScenario(t, lg)
	extra := addNode(t, lg, node.Value(0.7))
	require.NoError(t, lg.Watch(extra))

	require.NoError(t, lg.Process())
	requireState(t, lg, Prioritised, out, extra)
	requireState(t, lg, Requested, a)
}

func TestParameterSetters(t *testing.T) {
	lg, _ := newTestGraph(t)
	a, b, mix, out := mixScenario(t, lg)

	require.NoError(t, lg.SetMixType(mix, node.MixMultiply))
	require.NoError(t, lg.SetResizePolicy(a, buffer.SpecificSize(2, 2)))
	require.NoError(t, lg.SetResizeFilter(mix, buffer.FilterTriangle))
	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)

	size, ok := lg.SlotDataSize(out, 0)
	require.True(t, ok)
	assert.Equal(t, buffer.Size{Width: 2, Height: 2}, size)
	buf, _ := lg.Buffer(out, 0)
	requireUniform(t, buf, 0.15)

	err := lg.SetValue(mix, 1)
	assert.True(t, errors.Is(err, graph.ErrKindChange))
	err = lg.SetMixType(b, node.MixAdd)
	assert.True(t, errors.Is(err, graph.ErrKindChange))
	err = lg.SetResizeFilter(999, buffer.FilterNearest)
	assert.True(t, errors.Is(err, graph.ErrNotFound))
}

func TestConnectArbitraryAndDisconnectOutput(t *testing.T) {
	lg, _ := newTestGraph(t)
	v := addNode(t, lg, node.Value(0.5))
	o1 := addNode(t, lg, node.OutputGray())
	o2 := addNode(t, lg, node.OutputGray())

	require.NoError(t, lg.ConnectArbitrary(o1, node.Input, 0, v, node.Output, 0))
	require.NoError(t, lg.ConnectArbitrary(v, node.Output, 0, o2, node.Input, 0))
	assert.Len(t, lg.Edges(), 2)

	require.NoError(t, lg.DisconnectOutput(v, 0))
	assert.Empty(t, lg.Edges())
}

func TestPersistentCache_SkipsCompute(t *testing.T) {
	st := newMemStore()
	calls := 0
	counting := func(n node.Node, in []*buffer.Buffer) ([]*buffer.Buffer, error) {
		calls++
		return node.Compute(n, in)
	}

	first, _ := newTestGraph(t, WithStore(st), WithUseCache(true), WithCompute(counting))
	_, _, _, out := mixScenario(t, first)
	require.NoError(t, first.Materialize(out))
	runAll(t, first)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, st.saves)

	second, _ := newTestGraph(t, WithStore(st), WithUseCache(true), WithCompute(counting))
	_, _, _, out2 := mixScenario(t, second)
	require.NoError(t, second.Materialize(out2))
	runAll(t, second)
	assert.Equal(t, 4, calls, "every node served from the store")
	buf, _ := second.Buffer(out2, 0)
	requireUniform(t, buf, 0.8)

	second.SetUseCache(false)
	assert.False(t, second.UseCache())
	require.NoError(t, second.SetValue(1, 0.5))
	require.NoError(t, second.Materialize(out2))
	runAll(t, second)
	assert.Equal(t, 7, calls, "store bypassed when use_cache is off")
}

func TestAwaitCleanRead_WithoutWorkers(t *testing.T) {
	lg, _ := newTestGraph(t)
	_, _, _, out := mixScenario(t, lg)

	_, err := lg.AwaitCleanRead(context.Background(), out)
	assert.True(t, errors.Is(err, ErrNoWorkers))

	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)
	snap, err := lg.AwaitCleanRead(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, out, snap.Node.ID)
	require.Len(t, snap.Buffers, 1)
	requireUniform(t, snap.Buffers[0], 0.8)

	_, err = lg.AwaitCleanRead(context.Background(), 999)
	assert.True(t, errors.Is(err, graph.ErrNotFound))
}

func TestStats(t *testing.T) {
	lg, _ := newTestGraph(t)
	_, _, _, out := mixScenario(t, lg)
	require.NoError(t, lg.Materialize(out))
	runAll(t, lg)
	addNode(t, lg, node.Value(0))

	st := lg.Stats()
	assert.Equal(t, 5, st.Nodes)
	assert.Equal(t, 4, st.States["clean"])
	assert.Equal(t, 1, st.States["dirty"])
	assert.Equal(t, 4, st.CachedNodes)
}

func TestClose_RejectsMutations(t *testing.T) {
	lg, _ := newTestGraph(t)
	require.NoError(t, lg.Close())
	require.NoError(t, lg.Close())

	_, err := lg.AddNode(node.Value(0))
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(lg.Materialize(), ErrClosed))
	assert.True(t, errors.Is(lg.Start(context.Background()), ErrClosed))
}

func TestState_Names(t *testing.T) {
	for _, s := range []State{Dirty, Requested, Prioritised, Processing, Clean} {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseState("asleep")
	assert.Error(t, err)
}

func TestRunPending_ReturnsDispatchOrder(t *testing.T) {
	lg, _ := newTestGraph(t)
	a, b, mix, out := mixScenario(t, lg)
	require.NoError(t, lg.Materialize(out))

	order, err := lg.RunPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []node.ID{a, b, mix, out}, order)
	requireState(t, lg, Clean, a, b, mix, out)

	order, err = lg.RunPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, order)

	require.NoError(t, lg.Close())
	_, err = lg.RunPending(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
