package configmodel

import (
	"fmt"
	"time"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/xerrors"
)

// MonitorConfig names one application's checkpoint ring (orig §4.3): the
// owning process, the uid the ring's ACL restricts write access to, and the
// ring's configured cell capacity.
type MonitorConfig struct {
	Process  idhash.Hash
	UID      uint32
	RingSize uint32
}

// AliveSupervisionConfig configures one Alive elementary supervision
// (orig §4.5.1), scoped to the producer processes it watches.
type AliveSupervisionConfig struct {
	Name                  idhash.Hash
	Producers             []uint32 // indexes into ProcessGroup.Processes
	ReferenceCycle        time.Duration
	MinIndications        uint32
	MaxIndications        uint32
	MinDisabled           bool
	MaxDisabled           bool
	FailedCyclesTolerance uint32
}

// DeadlineSupervisionConfig configures one Deadline elementary supervision
// (orig §4.5.2).
type DeadlineSupervisionConfig struct {
	Name               idhash.Hash
	Producers          []uint32
	SourceCheckpointID uint32
	TargetCheckpointID uint32
	MinDeadline        time.Duration
	MaxDeadline        time.Duration
	MinDisabled        bool
	MaxDisabled        bool
}

// LogicalSupervisionConfig configures one Logical elementary supervision
// (orig §4.5.3): a directed graph of checkpoint nodes plus entry/final sets.
type LogicalSupervisionConfig struct {
	Name       idhash.Hash
	Producers  []uint32
	Successors map[uint32][]uint32
	Entries    []uint32
	Finals     []uint32
}

// LocalSupervisionConfig configures one Local aggregation (orig §4.6): the
// set of elementary supervisions, by name, that feed it.
type LocalSupervisionConfig struct {
	Name      idhash.Hash
	Alives    []idhash.Hash
	Deadlines []idhash.Hash
	Logicals  []idhash.Hash
}

// GlobalSupervisionConfig configures the single Global aggregation of a
// process group (orig §4.7): the Local supervisions it watches and the
// expired->stopped debounce tolerance in effect for the group's initial
// state. Per-state tolerance overrides are resolved at runtime by whatever
// drives SetExpiredTolerance on a process-group-state change.
type GlobalSupervisionConfig struct {
	Locals             []idhash.Hash
	InitialTolerance   time.Duration
	StateTolerances    map[idhash.Hash]time.Duration // overrides per ProcessGroupState.Name
}

// RecoverySupervisionConfig configures the Recovery notifier (orig §4.8)
// that fires when Global reaches Stopped.
type RecoverySupervisionConfig struct {
	ConfigName      string
	ServiceInstance string
	Timeout         time.Duration
}

// validateSupervision checks the supervision configuration's internal references:
// every Local's elementary refs and every Global's Local refs must resolve
// within the same process group, and every elementary's producer indices
// must be in range.
func (pg *ProcessGroup) validateSupervision() error {
	n := len(pg.Processes)
	aliveNames := make(map[idhash.Hash]bool, len(pg.Alives))
	for _, a := range pg.Alives {
		aliveNames[a.Name] = true
		if err := checkProducers(n, a.Producers); err != nil {
			return xerrors.New(xerrors.ErrConfiguration, uint64(a.Name), err.Error())
		}
	}
	deadlineNames := make(map[idhash.Hash]bool, len(pg.Deadlines))
	for _, d := range pg.Deadlines {
		deadlineNames[d.Name] = true
		if err := checkProducers(n, d.Producers); err != nil {
			return xerrors.New(xerrors.ErrConfiguration, uint64(d.Name), err.Error())
		}
	}
	logicalNames := make(map[idhash.Hash]bool, len(pg.Logicals))
	for _, l := range pg.Logicals {
		logicalNames[l.Name] = true
		if err := checkProducers(n, l.Producers); err != nil {
			return xerrors.New(xerrors.ErrConfiguration, uint64(l.Name), err.Error())
		}
	}
	localNames := make(map[idhash.Hash]bool, len(pg.Locals))
	for _, loc := range pg.Locals {
		localNames[loc.Name] = true
		for _, ref := range loc.Alives {
			if !aliveNames[ref] {
				return xerrors.New(xerrors.ErrConfiguration, uint64(loc.Name), fmt.Sprintf("local references unknown alive %v", ref))
			}
		}
		for _, ref := range loc.Deadlines {
			if !deadlineNames[ref] {
				return xerrors.New(xerrors.ErrConfiguration, uint64(loc.Name), fmt.Sprintf("local references unknown deadline %v", ref))
			}
		}
		for _, ref := range loc.Logicals {
			if !logicalNames[ref] {
				return xerrors.New(xerrors.ErrConfiguration, uint64(loc.Name), fmt.Sprintf("local references unknown logical %v", ref))
			}
		}
	}
	for _, ref := range pg.Global.Locals {
		if !localNames[ref] {
			return xerrors.New(xerrors.ErrConfiguration, uint64(pg.Name), fmt.Sprintf("global references unknown local %v", ref))
		}
	}
	return nil
}

func checkProducers(n int, producers []uint32) error {
	for _, idx := range producers {
		if int(idx) >= n {
			return fmt.Errorf("producer index %d out of range", idx)
		}
	}
	return nil
}
