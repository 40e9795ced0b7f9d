// Package pstate implements the per-supervision process-state tracker of
// orig §4.4: a bit-per-configured-process mirror of {Deactivated, Activated,
// Crashed} that reduces raw ProcessState/pg_state transitions to exactly one
// edge event per update.
package pstate

import "github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"

// Mark is the tracker's internal per-process classification.
type Mark int

const (
	Deactivated Mark = iota
	Activated
	Crashed
)

// Edge is the single edge event the tracker emits per process update.
type Edge int

const (
	NoChange Edge = iota
	Activation
	Deactivation
	RecoveredFromCrash
)

func (e Edge) String() string {
	switch e {
	case Activation:
		return "activation"
	case Deactivation:
		return "deactivation"
	case RecoveredFromCrash:
		return "recovered_from_crash"
	default:
		return "no_change"
	}
}

// Update is one process's raw event as seen by the tracker.
type Update struct {
	ProcessIndex uint32
	State        configmodel.ProcessState
	InActiveSet  bool // whether pg_state currently includes this process
	ActiveMarker configmodel.ProcessState // running by default; starting for some supervisions
}

// Tracker holds one Mark per configured process plus the previous cycle's
// snapshot, as required to detect Activation/Deactivation/RecoveredFromCrash
// transitions (orig §4.4).
type Tracker struct {
	current  []Mark
	previous []Mark
}

// New creates a tracker for a supervision watching numProcesses processes,
// all initially Deactivated.
func New(numProcesses int) *Tracker {
	t := &Tracker{
		current:  make([]Mark, numProcesses),
		previous: make([]Mark, numProcesses),
	}
	return t
}

// Apply folds one raw update into the tracker's current marks. Call
// Finalize once all of a cycle's updates have been applied to compute the
// edge event.
func (t *Tracker) Apply(u Update) {
	idx := int(u.ProcessIndex)
	if idx < 0 || idx >= len(t.current) {
		return
	}
	switch {
	case u.State == u.ActiveMarker && u.InActiveSet:
		t.current[idx] = Activated
	case u.State == configmodel.StateTerminating:
		t.current[idx] = Deactivated
	case !u.InActiveSet && (u.State == configmodel.StateRunning || u.State == configmodel.StateStarting):
		t.current[idx] = Deactivated
	case u.State == configmodel.StateOff:
		if t.current[idx] != Deactivated {
			t.current[idx] = Crashed
		}
	}
}

// Finalize computes the edge event for the cycle from the accumulated
// current marks against the previous snapshot, then rolls current into
// previous for the next cycle.
func (t *Tracker) Finalize() Edge {
	allActivatedNow := true
	anyActivatedNow := false
	allActivatedBefore := true
	anyWasCrashed := false
	anyNewlyActivated := false
	anyNewlyDeactivated := false

	for i, cur := range t.current {
		prev := t.previous[i]
		if cur == Activated {
			anyActivatedNow = true
			if prev != Activated {
				anyNewlyActivated = true
			}
		} else {
			allActivatedNow = false
			if cur == Deactivated {
				anyNewlyDeactivated = true
			}
		}
		if prev != Activated {
			allActivatedBefore = false
		}
		if prev == Crashed {
			anyWasCrashed = true
		}
	}

	var edge Edge
	switch {
	case allActivatedNow && anyNewlyActivated:
		if anyWasCrashed {
			edge = RecoveredFromCrash
		} else {
			edge = Activation
		}
	case !allActivatedNow && allActivatedBefore && anyNewlyDeactivated:
		edge = Deactivation
	default:
		edge = NoChange
	}

	_ = anyActivatedNow
	copy(t.previous, t.current)
	return edge
}

// ForceDataLoss forces every process to Activated so the supervision can
// re-enter deactivated through the normal Deactivation path (orig §4.4,
// "on data loss, all processes are forced to Activated").
func (t *Tracker) ForceDataLoss() {
	for i := range t.current {
		t.current[i] = Activated
	}
}
