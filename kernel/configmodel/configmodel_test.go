package configmodel

import (
	"errors"
	"testing"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validGroup() *ProcessGroup {
	return &ProcessGroup{
		Name:     idhash.Of("/G"),
		OffState: idhash.Off,
		RecoveryState: idhash.Recovery,
		States: []ProcessGroupState{
			{Name: idhash.Of("Run"), ActiveProcesses: []uint32{0, 1}},
		},
		Processes: []OsProcess{
			{ProcessID: idhash.Of("A"), UniqueIndex: 0},
			{ProcessID: idhash.Of("B"), UniqueIndex: 1, Dependencies: []Dependency{
				{Trigger: StateRunning, TargetProcess: idhash.Of("A"), TargetIndex: 0},
			}},
		},
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validGroup().Validate())
}

func TestValidateOutOfRangeActiveProcess(t *testing.T) {
	g := validGroup()
	g.States[0].ActiveProcesses = append(g.States[0].ActiveProcesses, 99)
	err := g.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, xerrors.ErrConfiguration))
}

func TestValidateBadDependencyIndex(t *testing.T) {
	g := validGroup()
	g.Processes[1].Dependencies[0].TargetIndex = 42
	require.Error(t, g.Validate())
}

func TestActiveSetOff(t *testing.T) {
	g := validGroup()
	set, ok := g.ActiveSet(idhash.Off)
	require.True(t, ok)
	assert.Empty(t, set)
}

func TestActiveSetNamed(t *testing.T) {
	g := validGroup()
	set, ok := g.ActiveSet(idhash.Of("Run"))
	require.True(t, ok)
	assert.True(t, set[0])
	assert.True(t, set[1])
}
