package healthmonitor

import (
	"path/filepath"
	"testing"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/psnotify"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGroup() *configmodel.ProcessGroup {
	return &configmodel.ProcessGroup{
		Name:     idhash.Of("G"),
		OffState: idhash.Off,
		Processes: []configmodel.OsProcess{
			{ProcessID: idhash.Of("/proc/A")},
			{ProcessID: idhash.Of("/proc/B")},
		},
	}
}

func TestProcessStateMirrorStartsAtOffState(t *testing.T) {
	pg := testGroup()
	mirror := NewProcessStateMirror(pg)
	assert.Equal(t, idhash.Off, mirror.CurrentState())
	assert.Equal(t, []configmodel.ProcessState{configmodel.StateIdle, configmodel.StateIdle}, mirror.Snapshot())
}

func TestProcessStateMirrorTracksRegisteredProcessOnly(t *testing.T) {
	pg := testGroup()
	mirror := NewProcessStateMirror(pg)

	path := filepath.Join(t.TempDir(), "ps.ring")
	r, err := ring.Create(path, psnotify.CellSize, 64)
	require.NoError(t, err)
	defer r.Close()

	w := psnotify.NewWriter(r)
	reader := psnotify.NewReader(r)
	mirror.Attach(reader)

	runState := idhash.Of("Run")
	w.Notify(psnotify.PosixProcess{
		ID: idhash.Of("/proc/B"), State: configmodel.StateRunning, PGState: runState, Timestamp: 7,
	})
	w.Notify(psnotify.PosixProcess{
		ID: idhash.Of("/proc/unconfigured"), State: configmodel.StateRunning, PGState: runState,
	})
	reader.Drain()

	snapshot := mirror.Snapshot()
	assert.Equal(t, configmodel.StateIdle, snapshot[0])
	assert.Equal(t, configmodel.StateRunning, snapshot[1])
	assert.Equal(t, runState, mirror.CurrentState())
}
