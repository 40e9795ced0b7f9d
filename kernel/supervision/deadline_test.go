package supervision

import (
	"testing"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/timebuffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeadlineBuf() *timebuffer.Buffer[Event] { return timebuffer.New[Event](16) }

func TestDeadlineWithinBoundsOK(t *testing.T) {
	d := NewDeadline(DeadlineConfig{SourceCheckpointID: 1, TargetCheckpointID: 2, MinDisabled: true, MaxDeadlineNs: 100})
	buf := newDeadlineBuf()
	buf.Push(activation(0), 0)
	buf.Push(Event{Kind: EventCheckpoint, Timestamp: 0, CheckpointID: 1}, 0)
	buf.Push(Event{Kind: EventCheckpoint, Timestamp: 5, CheckpointID: 2}, 5)
	d.Evaluate(buf, 5)
	assert.Equal(t, OK, d.Status())
}

func TestDeadlineMinViolationExpires(t *testing.T) {
	// S5: min=10ms, max=100ms. Source at t=0, target at t=5ms.
	d := NewDeadline(DeadlineConfig{SourceCheckpointID: 1, TargetCheckpointID: 2, MinDeadlineNs: 10, MaxDeadlineNs: 100})
	buf := newDeadlineBuf()
	buf.Push(activation(0), 0)
	buf.Push(Event{Kind: EventCheckpoint, Timestamp: 0, CheckpointID: 1}, 0)
	buf.Push(Event{Kind: EventCheckpoint, Timestamp: 5, CheckpointID: 2}, 5)
	d.Evaluate(buf, 5)
	assert.Equal(t, Expired, d.Status())
}

func TestDeadlineMaxViolationExpires(t *testing.T) {
	// orig §8 invariant 7: max=D; delta > D expires.
	d := NewDeadline(DeadlineConfig{SourceCheckpointID: 1, TargetCheckpointID: 2, MinDisabled: true, MaxDeadlineNs: 10})
	buf := newDeadlineBuf()
	buf.Push(activation(0), 0)
	buf.Push(Event{Kind: EventCheckpoint, Timestamp: 0, CheckpointID: 1}, 0)
	buf.Push(Event{Kind: EventCheckpoint, Timestamp: 20, CheckpointID: 2}, 20)
	d.Evaluate(buf, 20)
	assert.Equal(t, Expired, d.Status())
}

func TestDeadlineMissingTargetBySyncExpires(t *testing.T) {
	d := NewDeadline(DeadlineConfig{SourceCheckpointID: 1, TargetCheckpointID: 2, MinDisabled: true, MaxDeadlineNs: 10})
	buf := newDeadlineBuf()
	buf.Push(activation(0), 0)
	buf.Push(Event{Kind: EventCheckpoint, Timestamp: 0, CheckpointID: 1}, 0)
	d.Evaluate(buf, 15) // no target by t+D
	assert.Equal(t, Expired, d.Status())
}

func TestDeadlineConsecutiveSourceExpires(t *testing.T) {
	d := NewDeadline(DeadlineConfig{SourceCheckpointID: 1, TargetCheckpointID: 2, MinDisabled: true, MaxDeadlineNs: 100})
	buf := newDeadlineBuf()
	buf.Push(activation(0), 0)
	buf.Push(Event{Kind: EventCheckpoint, Timestamp: 0, CheckpointID: 1}, 0)
	buf.Push(Event{Kind: EventCheckpoint, Timestamp: 1, CheckpointID: 1}, 1)
	d.Evaluate(buf, 1)
	assert.Equal(t, Expired, d.Status())
	require.NotNil(t, d)
}
