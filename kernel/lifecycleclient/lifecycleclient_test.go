package lifecycleclient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSyncFile(t *testing.T) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestReportRunningIsIdempotent(t *testing.T) {
	f := newSyncFile(t)
	require.NoError(t, WriteMetadata(f, 4242, configmodel.Reporting, uuid.Nil))

	c, err := Open(f)
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.HasReportedRunning())
	c.ReportRunning()
	c.ReportRunning()
	assert.True(t, c.HasReportedRunning())
	assert.Equal(t, int32(4242), c.PID())
	assert.Equal(t, configmodel.Reporting, c.CommsType())
}

func TestControlClientIDRoundTrips(t *testing.T) {
	f := newSyncFile(t)
	id := uuid.New()
	require.NoError(t, WriteMetadata(f, 1, configmodel.ControlClient, id))

	c, err := Open(f)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, configmodel.ControlClient, c.CommsType())
	assert.Equal(t, id, c.ControlClientID())
}
