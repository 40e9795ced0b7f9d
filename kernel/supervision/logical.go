package supervision

import (
	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/pstate"
)

// LogicalConfig configures a Logical supervision (orig §4.5.3): a directed
// graph of checkpoint nodes, a set of entry points, and a set of final
// (exit) points.
type LogicalConfig struct {
	Successors map[uint32][]uint32
	Entries    map[uint32]bool
	Finals     map[uint32]bool
}

// Logical is an elementary checkpoint supervision tracking a single cursor
// position in a configured checkpoint graph.
type Logical struct {
	cfg    LogicalConfig
	status Status
	active bool
	cursor uint32
	log    *obslog.Logger

	lastExecErr uint32
}

func NewLogical(cfg LogicalConfig, log *obslog.Logger) *Logical {
	if log == nil {
		log = obslog.New("logical")
	}
	return &Logical{cfg: cfg, status: Deactivated, log: log}
}

func (l *Logical) Status() Status { return l.status }

// ExecutionError reports the execution error recorded at the last failure.
func (l *Logical) ExecutionError() uint32 { return l.lastExecErr }

func (l *Logical) Consume(ev Event) {
	if ev.DataLoss {
		l.status = Expired
		return
	}
	if ev.ExecutionError != 0 {
		l.lastExecErr = ev.ExecutionError
	}
	if ev.Kind == EventProcessState {
		switch ev.Edge {
		case pstate.Deactivation:
			l.status = Deactivated
			l.active = false
			return
		case pstate.Activation:
			l.status = OK
			l.active = false
			return
		case pstate.RecoveredFromCrash:
			l.status = OK
			l.active = false
			return
		}
	}
	if l.status == Deactivated || ev.Kind != EventCheckpoint {
		return
	}

	valid := false
	if !l.active {
		valid = l.cfg.Entries[ev.CheckpointID]
	} else {
		for _, s := range l.cfg.Successors[l.cursor] {
			if s == ev.CheckpointID {
				valid = true
				break
			}
		}
	}

	if !valid {
		l.log.Warn("logical supervision invalid transition",
			obslog.Uint64("current_cp_id", uint64(l.cursor)),
			obslog.Uint64("reported_cp_id", uint64(ev.CheckpointID)),
			obslog.Uint64("process", uint64(ev.Process)))
		l.status = Expired
		return
	}

	l.cursor = ev.CheckpointID
	l.active = true
	if l.cfg.Finals[ev.CheckpointID] {
		l.active = false
	}
}
