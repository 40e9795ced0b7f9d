package supervision

import (
	"math"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/observer"
)

// GlobalStatus is the {deactivated, ok, failed, expired, stopped} state
// space of the Global supervision (orig §4.7).
type GlobalStatus int

const (
	GDeactivated GlobalStatus = iota
	GOK
	GFailed
	GExpired
	GStopped
)

func (s GlobalStatus) String() string {
	switch s {
	case GDeactivated:
		return "deactivated"
	case GOK:
		return "ok"
	case GFailed:
		return "failed"
	case GExpired:
		return "expired"
	case GStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// NeverExpireTolerance is the orig §9 open-question resolution for
// expired_tolerance = UINT64_MAX: "never timeout to stopped". Go durations
// are signed so this uses math.MaxInt64 nanoseconds.
const NeverExpireTolerance int64 = math.MaxInt64

// SupervisionErrorInfo is dispatched to every registered recovery notifier
// when Global reaches Stopped (orig §4.7).
type SupervisionErrorInfo struct {
	FailedProcessExecutionError uint32
	FailedSupervisionType       ElementaryKind
}

// Global aggregates all Local supervisions of a process group and adds an
// expired->stopped debounce timer that depends on the active
// process-group state's configured tolerance.
type Global struct {
	locals   map[string]Status
	status   GlobalStatus
	expiredStart int64
	tolerance    int64

	lastExecErr  uint32
	lastExecKind ElementaryKind

	onStopped observer.Observable[SupervisionErrorInfo]
}

// NewGlobal creates a Global supervision with the given initial debounce
// tolerance (from the process group's initial state).
func NewGlobal(initialTolerance int64) *Global {
	return &Global{locals: make(map[string]Status), status: GDeactivated, tolerance: initialTolerance}
}

func (g *Global) Status() GlobalStatus { return g.status }

// AttachRecoveryNotifier registers an observer that receives
// SupervisionErrorInfo whenever Global transitions to Stopped.
func (g *Global) AttachRecoveryNotifier(obs observer.Observer[SupervisionErrorInfo]) {
	g.onStopped.Attach(obs)
}

// SetExpiredTolerance updates the debounce tolerance in effect, driven by a
// process-group-state-change event (orig §4.7 inputs).
func (g *Global) SetExpiredTolerance(tol int64) {
	g.tolerance = tol
}

// UpdateLocal folds one Local supervision's status into the aggregate,
// keyed by an opaque local-supervision id.
func (g *Global) UpdateLocal(id string, status Status, execErr uint32, kind ElementaryKind, ts int64) {
	g.locals[id] = status
	if status == Failed || status == Expired {
		g.lastExecErr, g.lastExecKind = execErr, kind
	}
	g.recompute(ts)
}

func (g *Global) aggregate() Status {
	allDeactivated := true
	worst := Deactivated
	for _, s := range g.locals {
		if s != Deactivated {
			allDeactivated = false
		}
		if s.Severity() > worst.Severity() {
			worst = s
		}
	}
	if allDeactivated {
		return Deactivated
	}
	return worst
}

func (g *Global) recompute(ts int64) {
	agg := g.aggregate()
	switch g.status {
	case GDeactivated, GOK, GFailed:
		switch agg {
		case Deactivated:
			g.status = GDeactivated
		case OK:
			g.status = GOK
		case Failed:
			g.status = GFailed
		case Expired:
			g.expiredStart = ts
			g.status = GExpired
		}
	case GExpired:
		// Only the debounce timer (Tick) moves Global out of Expired.
	case GStopped:
		switch agg {
		case Deactivated:
			g.status = GDeactivated
		case OK:
			g.status = GOK
		case Failed:
			g.status = GFailed
		}
	}
}

// Tick advances the debounce timer against now, which may be any incoming
// event timestamp or the sync timestamp (orig §4.7). Dispatches
// SupervisionErrorInfo to every registered recovery notifier on the
// expired->stopped transition.
func (g *Global) Tick(now int64) {
	if g.status != GExpired {
		return
	}
	if g.tolerance >= NeverExpireTolerance {
		return
	}
	if now-g.expiredStart >= g.tolerance {
		g.status = GStopped
		g.onStopped.Notify(SupervisionErrorInfo{
			FailedProcessExecutionError: g.lastExecErr,
			FailedSupervisionType:       g.lastExecKind,
		})
	}
}

// ForceStop immediately transitions to Stopped with a default execution
// error, used on history_buffer_overflow or data_corruption (orig §4.7).
func (g *Global) ForceStop(defaultExecErr uint32) {
	g.status = GStopped
	g.onStopped.Notify(SupervisionErrorInfo{FailedProcessExecutionError: defaultExecErr})
}
