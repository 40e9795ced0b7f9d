package timebuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushMaintainsOrder(t *testing.T) {
	b := New[string](8)
	require.True(t, b.Push("c", 30))
	require.True(t, b.Push("a", 10))
	require.True(t, b.Push("b", 20))

	it := b.Iterate()
	var got []string
	var lastTS int64 = -1
	for {
		v, ts, ok := it.Next()
		if !ok {
			break
		}
		assert.GreaterOrEqual(t, ts, lastTS)
		lastTS = ts
		got = append(got, v)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestPushFullReturnsFalse(t *testing.T) {
	b := New[int](2)
	require.True(t, b.Push(1, 1))
	require.True(t, b.Push(2, 2))
	assert.False(t, b.Push(3, 3))
	assert.Equal(t, 2, b.Len())
}

func TestClearResetsAndReusesCapacity(t *testing.T) {
	b := New[int](2)
	b.Push(1, 1)
	b.Push(2, 2)
	b.Clear()
	assert.Equal(t, 0, b.Len())
	require.True(t, b.Push(3, 1))
	require.True(t, b.Push(4, 2))
}

func TestPopFrontOrder(t *testing.T) {
	b := New[int](4)
	b.Push(10, 2)
	b.Push(20, 1)
	b.Push(30, 3)

	v, ts, ok := b.PopFront()
	require.True(t, ok)
	assert.Equal(t, 20, v)
	assert.Equal(t, int64(1), ts)
	assert.Equal(t, 2, b.Len())
}

func TestIteratorRestartable(t *testing.T) {
	b := New[int](4)
	b.Push(1, 1)
	b.Push(2, 2)
	it := b.Iterate()
	it.Next()
	it.Reset()
	_, ts, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, int64(1), ts)
}
