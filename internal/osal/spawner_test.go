package osal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/lifecycleclient"
)

func newTestSpawner(t *testing.T) (*Spawner, *Waiter) {
	t.Helper()
	s := NewSpawner(t.TempDir(), obslog.New("osal-test"))
	w := NewWaiter(s)
	s.SetWaiter(w)
	return s, w
}

func TestSpawnStampsLifecycleSyncRegion(t *testing.T) {
	s, _ := newTestSpawner(t)

	pid, err := s.Spawn(&configmodel.OsalConfig{
		ExecutablePath: "/bin/sleep",
		Argv:           []string{"sleep", "0.2"},
		Comms:          configmodel.Reporting,
	})
	require.NoError(t, err)
	assert.Positive(t, pid)

	s.mu.Lock()
	tracked, ok := s.byPID[pid]
	s.mu.Unlock()
	require.True(t, ok)

	f, err := os.Open(tracked.syncFile.Name())
	require.NoError(t, err)
	defer f.Close()

	client, err := lifecycleclient.Open(f)
	require.NoError(t, err)
	assert.Equal(t, int32(pid), client.PID())
	assert.Equal(t, configmodel.Reporting, client.CommsType())
}

func TestWaiterReportsExitAndReleasesSyncRegion(t *testing.T) {
	s, w := newTestSpawner(t)

	pid, err := s.Spawn(&configmodel.OsalConfig{
		ExecutablePath: "/bin/true",
		Argv:           []string{"true"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	gotPID, status, err := w.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, pid, gotPID)
	assert.Equal(t, 0, status)

	s.mu.Lock()
	_, stillTracked := s.byPID[pid]
	s.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestSendTerminateStopsRunningProcess(t *testing.T) {
	s, w := newTestSpawner(t)

	pid, err := s.Spawn(&configmodel.OsalConfig{
		ExecutablePath: "/bin/sleep",
		Argv:           []string{"sleep", "30"},
	})
	require.NoError(t, err)
	require.NoError(t, s.SendTerminate(pid))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err = w.Wait(ctx)
	require.NoError(t, err)
}
