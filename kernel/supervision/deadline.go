package supervision

import (
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/pstate"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/timebuffer"
)

// DeadlineConfig configures a Deadline supervision (orig §4.5.2). Source
// and target checkpoint ids identify which Checkpoint events start/stop the
// timing window.
type DeadlineConfig struct {
	SourceCheckpointID uint32
	TargetCheckpointID uint32
	MinDeadlineNs      int64
	MaxDeadlineNs      int64
	MinDisabled        bool
	MaxDisabled        bool
}

// Deadline is an elementary checkpoint supervision measuring the elapsed
// time between a source and target checkpoint.
type Deadline struct {
	cfg DeadlineConfig

	status    Status
	sourceTS  int64
	hasSource bool // a source checkpoint is pending; sourceTS is its timestamp

	lastExecErr uint32
}

func NewDeadline(cfg DeadlineConfig) *Deadline {
	return &Deadline{cfg: cfg, status: Deactivated}
}

func (d *Deadline) Status() Status { return d.status }

// ExecutionError reports the execution error recorded at the last failure.
func (d *Deadline) ExecutionError() uint32 { return d.lastExecErr }

// Consume processes events in timestamp order; callers are expected to
// feed events through a timebuffer.Buffer the same way Alive does (kept
// explicit here since Deadline's state is a single pending timestamp, not a
// window, so the buffer indirection adds no value).
func (d *Deadline) Consume(ev Event) {
	if ev.DataLoss {
		d.status = Expired
		return
	}
	if ev.ExecutionError != 0 {
		d.lastExecErr = ev.ExecutionError
	}
	if ev.Kind == EventProcessState {
		switch ev.Edge {
		case pstate.Deactivation:
			d.hasSource = false
			d.status = Deactivated
			return
		case pstate.Activation:
			d.hasSource = false
			d.status = OK
			return
		case pstate.RecoveredFromCrash:
			// recovery transition: deactivated -> ok in one evaluate call.
			d.hasSource = false
			d.status = OK
			return
		}
	}
	if d.status == Deactivated {
		return
	}
	switch ev.Kind {
	case EventCheckpoint:
		switch ev.CheckpointID {
		case d.cfg.SourceCheckpointID:
			if d.hasSource {
				d.status = Expired // consecutive_source_error
				return
			}
			d.sourceTS = ev.Timestamp
			d.hasSource = true
		case d.cfg.TargetCheckpointID:
			if !d.hasSource {
				return
			}
			delta := ev.Timestamp - d.sourceTS
			if !d.cfg.MaxDisabled && delta > d.cfg.MaxDeadlineNs {
				d.status = Expired
				return
			}
			if !d.cfg.MinDisabled && delta < d.cfg.MinDeadlineNs {
				d.status = Expired
				return
			}
			d.hasSource = false
			d.status = OK
		}
	case EventSync:
		if d.hasSource && ev.Timestamp-d.sourceTS > d.cfg.MaxDeadlineNs {
			d.status = Expired
		}
	}
}

// Evaluate is provided for symmetry with Alive/Logical; Deadline has no
// reference-cycle bookkeeping of its own so a bare buffer drain suffices.
func (d *Deadline) Evaluate(buf *timebuffer.Buffer[Event], syncTimestamp int64) {
	buf.Push(Event{Kind: EventSync, Timestamp: syncTimestamp}, syncTimestamp)
	it := buf.Iterate()
	for {
		ev, ts, ok := it.Next()
		if !ok {
			break
		}
		if ts > syncTimestamp {
			continue
		}
		d.Consume(ev)
	}
	buf.Clear()
}
