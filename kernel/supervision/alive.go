package supervision

import (
	"math"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/pstate"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/timebuffer"
)

// AliveConfig configures an Alive supervision (orig §4.5.1).
type AliveConfig struct {
	ReferenceCycleNs      int64
	MinIndications        uint32
	MaxIndications        uint32
	MinDisabled           bool
	MaxDisabled           bool
	FailedCyclesTolerance uint32
}

// Alive is an elementary checkpoint supervision tracking a rolling
// reference-cycle window of checkpoint indications.
type Alive struct {
	cfg AliveConfig

	status Status

	cycleStart  int64
	cycleEnd    int64
	indications uint32
	failedCycles uint32

	lastExecErr uint32

	buf *timebuffer.Buffer[Event]
}

// NewAlive constructs an Alive supervision with the given event buffer
// capacity.
func NewAlive(cfg AliveConfig, bufCapacity int) *Alive {
	return &Alive{cfg: cfg, status: Deactivated, buf: timebuffer.New[Event](bufCapacity)}
}

// Status reports the supervision's current state.
func (a *Alive) Status() Status { return a.status }

// ExecutionError reports the execution error recorded at the last failure.
func (a *Alive) ExecutionError() uint32 { return a.lastExecErr }

// Push enqueues an event into the supervision's time-sorting buffer. Returns
// false (data loss) if the buffer is full.
func (a *Alive) Push(ev Event) bool {
	if !a.buf.Push(ev, ev.Timestamp) {
		a.forceExpired()
		return false
	}
	return true
}

func (a *Alive) forceExpired() {
	a.status = Expired
}

// Evaluate drains the buffer up to and including syncTimestamp, running the
// Alive state machine (orig §4.5.1). It pushes a synthetic Sync event as
// the final element to guarantee progress.
func (a *Alive) Evaluate(syncTimestamp int64) {
	a.buf.Push(Event{Kind: EventSync, Timestamp: syncTimestamp}, syncTimestamp)

	it := a.buf.Iterate()
	for {
		ev, ts, ok := it.Next()
		if !ok {
			break
		}
		if ts > syncTimestamp {
			continue
		}
		a.consume(ev)
	}
	a.buf.Clear()
}

func (a *Alive) consume(ev Event) {
	if ev.DataLoss {
		a.status = Expired
		return
	}

	if ev.ExecutionError != 0 {
		a.lastExecErr = ev.ExecutionError
	}

	if ev.Kind == EventProcessState {
		switch ev.Edge {
		case pstate.Deactivation:
			a.reset()
			a.status = Deactivated
			return
		case pstate.Activation:
			a.enterOK(ev.Timestamp)
			return
		case pstate.RecoveredFromCrash:
			// recovery transition: deactivated -> ok within one evaluate call.
			a.reset()
			a.status = Deactivated
			a.enterOK(ev.Timestamp)
			return
		}
	}

	if a.status == Deactivated {
		return
	}

	switch ev.Kind {
	case EventCheckpoint:
		if ev.Timestamp >= a.cycleStart && ev.Timestamp < a.cycleEnd {
			if a.indications == math.MaxUint32 {
				a.status = Expired
				return
			}
			a.indications++
		}
	case EventSync:
		a.maybeEvaluateCycle(ev.Timestamp)
	}

	// A non-sync event may itself cross the cycle boundary (orig §4.5.1:
	// "emitted whenever the next event's timestamp crosses
	// reference_cycle_end").
	if ev.Kind != EventSync {
		a.maybeEvaluateCycle(ev.Timestamp)
	}
}

func (a *Alive) enterOK(t int64) {
	a.status = OK
	a.cycleStart = t
	a.cycleEnd = t + a.cfg.ReferenceCycleNs
	a.indications = 0
	a.failedCycles = 0
}

func (a *Alive) reset() {
	a.cycleStart, a.cycleEnd, a.indications, a.failedCycles = 0, 0, 0, 0
}

func (a *Alive) maybeEvaluateCycle(t int64) {
	if a.status == Deactivated {
		return
	}
	for t >= a.cycleEnd && a.cycleEnd > 0 {
		prevEnd := a.cycleEnd
		a.runEvaluation()
		if a.cycleEnd == prevEnd {
			break
		}
	}
}

func (a *Alive) runEvaluation() {
	minErr := !a.cfg.MinDisabled && a.indications < a.cfg.MinIndications
	maxErr := !a.cfg.MaxDisabled && a.indications > a.cfg.MaxIndications
	hasErr := minErr || maxErr

	newStart := a.cycleEnd
	newEnd := a.cycleEnd + a.cfg.ReferenceCycleNs
	if newEnd <= a.cycleEnd {
		a.status = Expired
		return
	}

	switch a.status {
	case OK:
		if hasErr {
			if a.failedCycles < a.cfg.FailedCyclesTolerance {
				a.status = Failed
				a.failedCycles++
			} else {
				a.status = Expired
			}
		}
	case Failed:
		if !hasErr {
			if a.failedCycles <= 1 {
				a.status = OK
				a.failedCycles = 0
			} else {
				a.failedCycles--
			}
		} else {
			if a.failedCycles < a.cfg.FailedCyclesTolerance {
				a.failedCycles++
			} else {
				a.status = Expired
			}
		}
	}

	// The window always advances, even into Expired: leaving cycleEnd
	// behind would make maybeEvaluateCycle's "t >= cycleEnd" loop spin
	// forever re-expiring the same boundary.
	a.cycleStart, a.cycleEnd = newStart, newEnd
	a.indications = 0
}
