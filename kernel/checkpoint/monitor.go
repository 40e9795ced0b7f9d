// Package checkpoint implements the daemon-side Monitor interface of
// orig §4.3: for each application, it drains the application's checkpoint
// shared-memory ring and fans records out to attached per-supervision-point
// observers, detecting ring overflow and injecting data-loss events.
// Grounded on kernel/threads/foundation/message_queue.go's drain-and-dispatch
// loop, generalised from bytes to checkpoint records and from a single
// consumer to an observer fan-out (kernel/observer).
package checkpoint

import (
	"encoding/binary"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/observer"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/ring"
)

// internalState mirrors orig §4.3's {Inactive, Active, InactiveOverflow}.
type internalState int

const (
	Inactive internalState = iota
	Active
	InactiveOverflow
)

// Record is one (timestamp, checkpoint_id) cell drained from the ring.
type Record struct {
	Timestamp    int64
	CheckpointID uint32
}

// DataLoss is pushed to every observer on ring overflow or a malformed pop.
type DataLoss struct{}

// Event is the union the Monitor fans out: either a Record or a DataLoss
// marker.
type Event struct {
	Record   Record
	IsLoss   bool
}

// Monitor tracks one application's checkpoint ring and dispatches drained
// records to attached observers.
type Monitor struct {
	r      *ring.Ring
	state  internalState
	cameBackFromRestart bool

	observers observer.Observable[Event]
}

// New wraps an already-connected ring for one application.
func New(r *ring.Ring) *Monitor {
	return &Monitor{r: r, state: Inactive}
}

// Attach registers an observer for this monitor's events.
func (m *Monitor) Attach(obs observer.Observer[Event]) int {
	return m.observers.Attach(obs)
}

// OnProcessState feeds a process-state transition for the owning
// application; starting/running activates the monitor, off moves an Active
// monitor to Inactive at once: the move is not deferred to the next cycle
// boundary.
func (m *Monitor) OnProcessState(state configmodel.ProcessState) {
	switch state {
	case configmodel.StateStarting, configmodel.StateRunning:
		if m.state == Inactive {
			m.state = Active
		}
		if m.state == InactiveOverflow {
			// restart detected: deactivate followed by activate.
			m.cameBackFromRestart = true
		}
	case configmodel.StateOff:
		if m.state == Active {
			m.state = Inactive
		}
	}
}

// Tick drains every record whose timestamp is <= syncTimestamp, fanning
// each out to attached observers; records with a later timestamp are left
// for the next cycle (orig §4.3's window invariant).
func (m *Monitor) Tick(syncTimestamp int64) {
	cell := make([]byte, 12) // u64 timestamp, u32 checkpoint_id
	for {
		if !m.r.TryPeek(cell) {
			break
		}
		ts := int64(binary.LittleEndian.Uint64(cell[0:8]))
		if ts > syncTimestamp {
			break
		}
		id := binary.LittleEndian.Uint32(cell[8:12])
		if !m.r.TryPop() {
			m.enterOverflow()
			return
		}
		m.observers.Notify(Event{Record: Record{Timestamp: ts, CheckpointID: id}})
	}

	if m.r.Overflow() {
		m.enterOverflow()
	} else if m.cameBackFromRestart && m.state == InactiveOverflow {
		m.observers.Notify(Event{IsLoss: true})
		m.cameBackFromRestart = false
	}
}

func (m *Monitor) enterOverflow() {
	m.state = InactiveOverflow
	m.observers.Notify(Event{IsLoss: true})
}

// State reports the Monitor's current internal state, for diagnostics.
func (m *Monitor) State() internalState { return m.state }
