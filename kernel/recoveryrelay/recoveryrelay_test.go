package recoveryrelay

import (
	"path/filepath"
	"testing"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequesterDrainerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.ring")
	r, err := ring.Create(path, CellSize, 16)
	require.NoError(t, err)
	defer r.Close()

	requester := NewRequester(r)
	drainer := NewDrainer(r)

	group := idhash.Of("PG_Main")
	state := idhash.Of("Run")
	require.NoError(t, requester.RequestStateChange(group, state))

	var got []Request
	drainer.Drain(func(req Request) { got = append(got, req) })

	require.Len(t, got, 1)
	assert.Equal(t, group, got[0].Group)
	assert.Equal(t, state, got[0].State)
}

func TestDrainerDrainsMultipleRequestsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.ring")
	r, err := ring.Create(path, CellSize, 16)
	require.NoError(t, err)
	defer r.Close()

	requester := NewRequester(r)
	drainer := NewDrainer(r)

	require.NoError(t, requester.RequestStateChange(idhash.Of("PG_A"), idhash.Of("Run")))
	require.NoError(t, requester.RequestStateChange(idhash.Of("PG_B"), idhash.Of("Idle")))

	var got []Request
	drainer.Drain(func(req Request) { got = append(got, req) })

	require.Len(t, got, 2)
	assert.Equal(t, idhash.Of("PG_A"), got[0].Group)
	assert.Equal(t, idhash.Of("PG_B"), got[1].Group)
}

func TestRequesterErrorsWhenRingFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.ring")
	r, err := ring.Create(path, CellSize, 1)
	require.NoError(t, err)
	defer r.Close()

	requester := NewRequester(r)
	require.NoError(t, requester.RequestStateChange(idhash.Of("PG_A"), idhash.Of("Run")))
	assert.Error(t, requester.RequestStateChange(idhash.Of("PG_B"), idhash.Of("Run")))
}
