package checkpoint

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/observer"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, capacity int) *ring.Ring {
	path := filepath.Join(t.TempDir(), "ckpt.ring")
	r, err := ring.Create(path, 12, capacity)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func pushCell(t *testing.T, r *ring.Ring, ts int64, id uint32) {
	cell := make([]byte, 12)
	binary.LittleEndian.PutUint64(cell[0:8], uint64(ts))
	binary.LittleEndian.PutUint32(cell[8:12], id)
	require.True(t, r.TryEnqueue(cell))
}

func TestTickDrainsWithinWindow(t *testing.T) {
	r := newTestRing(t, 8)
	pushCell(t, r, 1, 10)
	pushCell(t, r, 5, 20)

	m := New(r)
	var got []Record
	m.Attach(observer.ObserverFunc[Event](func(e Event) {
		if !e.IsLoss {
			got = append(got, e.Record)
		}
	}))
	m.Tick(3)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(10), got[0].CheckpointID)

	m.Tick(10)
	require.Len(t, got, 2)
	assert.Equal(t, uint32(20), got[1].CheckpointID)
}

func TestOverflowPushesDataLoss(t *testing.T) {
	r := newTestRing(t, 2)
	pushCell(t, r, 1, 1)
	pushCell(t, r, 2, 2)
	require.False(t, r.TryEnqueue(make([]byte, 12))) // overflow

	m := New(r)
	lossCount := 0
	m.Attach(observer.ObserverFunc[Event](func(e Event) {
		if e.IsLoss {
			lossCount++
		}
	}))
	m.Tick(100)
	assert.Equal(t, InactiveOverflow, m.State())
	assert.GreaterOrEqual(t, lossCount, 1)
}
