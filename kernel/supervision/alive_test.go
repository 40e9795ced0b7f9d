package supervision

import (
	"testing"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/pstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activation(ts int64) Event {
	return Event{Kind: EventProcessState, Timestamp: ts, Edge: pstate.Activation}
}

func deactivation(ts int64) Event {
	return Event{Kind: EventProcessState, Timestamp: ts, Edge: pstate.Deactivation}
}

func checkpoint(ts int64) Event {
	return Event{Kind: EventCheckpoint, Timestamp: ts}
}

func TestAliveActivationEntersOK(t *testing.T) {
	a := NewAlive(AliveConfig{ReferenceCycleNs: 50, MinIndications: 1, MaxIndications: 1}, 16)
	a.Push(activation(0))
	a.Evaluate(0)
	assert.Equal(t, OK, a.Status())
}

func TestAliveWithinBoundsStaysOK(t *testing.T) {
	a := NewAlive(AliveConfig{ReferenceCycleNs: 50, MinIndications: 1, MaxIndications: 1}, 16)
	a.Push(activation(0))
	a.Push(checkpoint(10))
	a.Evaluate(50)
	assert.Equal(t, OK, a.Status())
}

func TestAliveOutOfBoundsExpiresWithZeroTolerance(t *testing.T) {
	a := NewAlive(AliveConfig{ReferenceCycleNs: 50, MinIndications: 1, MaxIndications: 1, FailedCyclesTolerance: 0}, 16)
	a.Push(activation(0))
	a.Evaluate(50) // no checkpoint in [0,50) -> min_error -> tolerance 0 -> expired
	assert.Equal(t, Expired, a.Status())
}

func TestAliveS4ToleranceScenario(t *testing.T) {
	a := NewAlive(AliveConfig{ReferenceCycleNs: 50, MinIndications: 1, MaxIndications: 1, FailedCyclesTolerance: 2}, 16)
	a.Push(activation(0))
	a.Evaluate(0)
	require.Equal(t, OK, a.Status())

	a.Evaluate(50) // cycle 1: no checkpoints -> ok -> failed
	assert.Equal(t, Failed, a.Status())

	a.Evaluate(100) // cycle 2: failed -> failed
	assert.Equal(t, Failed, a.Status())

	a.Evaluate(150) // cycle 3: failed -> expired
	assert.Equal(t, Expired, a.Status())
}

func TestAliveDeactivationResets(t *testing.T) {
	a := NewAlive(AliveConfig{ReferenceCycleNs: 50, MinIndications: 1, MaxIndications: 1}, 16)
	a.Push(activation(0))
	a.Evaluate(0)
	a.Push(deactivation(10))
	a.Evaluate(10)
	assert.Equal(t, Deactivated, a.Status())
}

func TestAliveRecoveryTransition(t *testing.T) {
	a := NewAlive(AliveConfig{ReferenceCycleNs: 50, MinIndications: 1, MaxIndications: 1, FailedCyclesTolerance: 0}, 16)
	a.Push(activation(0))
	a.Evaluate(50) // -> expired (no checkpoint, tolerance 0)
	require.Equal(t, Expired, a.Status())

	a.Push(Event{Kind: EventProcessState, Timestamp: 60, Edge: pstate.RecoveredFromCrash})
	a.Evaluate(60)
	assert.Equal(t, OK, a.Status())
}

func TestAliveDataLossExpires(t *testing.T) {
	a := NewAlive(AliveConfig{ReferenceCycleNs: 50, MinIndications: 1, MaxIndications: 1}, 16)
	a.Push(activation(0))
	a.Evaluate(0)
	a.Push(Event{Kind: EventCheckpoint, Timestamp: 10, DataLoss: true})
	a.Evaluate(10)
	assert.Equal(t, Expired, a.Status())
}
