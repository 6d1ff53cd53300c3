package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/node"
)

func TestChangedSet_DrainIsSortedAndDeduplicated(t *testing.T) {
	s := newChangedSet()
	s.Add(3, 1)
	s.Add(2, 3)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []node.ID{1, 2, 3}, s.Drain())
	assert.Empty(t, s.Drain())
}

func TestChangedSet_SignalCoalesces(t *testing.T) {
	s := newChangedSet()
	s.Add(1)
	s.Add(2)

	select {
	case <-s.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-s.Wait():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestChangedSet_CloseWakesAndDropsAdds(t *testing.T) {
	s := newChangedSet()
	s.Close()
	s.Close()

	_, open := <-s.Wait()
	assert.False(t, open)

	s.Add(1)
	assert.Empty(t, s.Drain())
}

func TestBufferCache_PutGetInvalidate(t *testing.T) {
	c := newBufferCache()
	one := buffer.Uniform(buffer.Size{Width: 1, Height: 1}, buffer.Gray, 0.5)
	two := buffer.Uniform(buffer.Size{Width: 2, Height: 2}, buffer.Gray, 0.5)

	c.put(7, []*buffer.Buffer{one, two})
	got, ok := c.get(7, 1)
	assert.True(t, ok)
	assert.Same(t, two, got)
	assert.Equal(t, 1, c.len())
	assert.Equal(t, (1+4)*4, c.bytes())

	c.put(7, []*buffer.Buffer{two})
	_, ok = c.get(7, 1)
	assert.False(t, ok, "put replaces every slot of the node")

	assert.True(t, c.invalidate(7))
	assert.False(t, c.invalidate(7))
	_, ok = c.get(7, 0)
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}
