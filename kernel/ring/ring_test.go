package ring

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ring")
	r, err := Create(path, 16, 4)
	require.NoError(t, err)
	defer r.Close()

	payload := make([]byte, 16)
	payload[0] = 0x42
	require.True(t, r.TryEnqueue(payload))

	out := make([]byte, 16)
	require.True(t, r.TryDequeue(out))
	assert.Equal(t, byte(0x42), out[0])
}

func TestOverflowSticky(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ring")
	r, err := Create(path, 8, 2)
	require.NoError(t, err)
	defer r.Close()

	cell := make([]byte, 8)
	require.True(t, r.TryEnqueue(cell))
	require.True(t, r.TryEnqueue(cell))
	assert.False(t, r.TryEnqueue(cell))
	assert.True(t, r.Overflow())
}

func TestDequeueEmptyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ring")
	r, err := Create(path, 8, 2)
	require.NoError(t, err)
	defer r.Close()
	out := make([]byte, 8)
	assert.False(t, r.TryDequeue(out))
}

func TestConnectAfterCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ring")
	writer, err := Create(path, 8, 2)
	require.NoError(t, err)
	reader, err := Connect(path, 8, 2)
	require.NoError(t, err)

	cell := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.True(t, writer.TryEnqueue(cell))

	out := make([]byte, 8)
	require.True(t, reader.TryDequeue(out))
	assert.Equal(t, cell, out)

	reader.file.Close()
	writer.Close()
}

func TestTryPeekDoesNotAdvance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ring")
	r, err := Create(path, 8, 2)
	require.NoError(t, err)
	defer r.Close()

	cell := make([]byte, 8)
	r.TryEnqueue(cell)

	out := make([]byte, 8)
	require.True(t, r.TryPeek(out))
	assert.Equal(t, uint64(0), r.readCursor())
	require.True(t, r.TryPop())
	assert.Equal(t, uint64(1), r.readCursor())
}
