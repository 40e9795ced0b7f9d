package supervision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newLogical() *Logical {
	return NewLogical(LogicalConfig{
		Successors: map[uint32][]uint32{1: {2}, 2: {3}},
		Entries:    map[uint32]bool{1: true},
		Finals:     map[uint32]bool{3: true},
	}, nil)
}

func TestLogicalValidPathStaysOK(t *testing.T) {
	l := newLogical()
	l.Consume(activation(0))
	l.Consume(Event{Kind: EventCheckpoint, Timestamp: 1, CheckpointID: 1})
	l.Consume(Event{Kind: EventCheckpoint, Timestamp: 2, CheckpointID: 2})
	l.Consume(Event{Kind: EventCheckpoint, Timestamp: 3, CheckpointID: 3})
	assert.Equal(t, OK, l.Status())
	assert.False(t, l.active)
}

func TestLogicalInvalidTransitionExpires(t *testing.T) {
	l := newLogical()
	l.Consume(activation(0))
	l.Consume(Event{Kind: EventCheckpoint, Timestamp: 1, CheckpointID: 1})
	l.Consume(Event{Kind: EventCheckpoint, Timestamp: 2, CheckpointID: 99})
	assert.Equal(t, Expired, l.Status())
}

func TestLogicalNonEntryWhileInactiveExpires(t *testing.T) {
	l := newLogical()
	l.Consume(activation(0))
	l.Consume(Event{Kind: EventCheckpoint, Timestamp: 1, CheckpointID: 2})
	assert.Equal(t, Expired, l.Status())
}

func TestLogicalResetsAfterFinal(t *testing.T) {
	l := newLogical()
	l.Consume(activation(0))
	l.Consume(Event{Kind: EventCheckpoint, Timestamp: 1, CheckpointID: 1})
	l.Consume(Event{Kind: EventCheckpoint, Timestamp: 2, CheckpointID: 2})
	l.Consume(Event{Kind: EventCheckpoint, Timestamp: 3, CheckpointID: 3})
	l.Consume(Event{Kind: EventCheckpoint, Timestamp: 4, CheckpointID: 1})
	assert.Equal(t, OK, l.Status())
}
