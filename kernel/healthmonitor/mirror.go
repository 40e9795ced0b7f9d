package healthmonitor

import (
	"sync"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/psnotify"
)

// ProcessStateMirror implements ProcessStateSource for a Health Monitor
// daemon that does not share an address space with the Launch Manager
// owning the real kernel/graph.Graph: it replays kernel/psnotify's
// PosixProcess records into a local per-process snapshot (orig §4.12,
// "HM's reader drains and dispatches to registered ProcessState objects").
type ProcessStateMirror struct {
	mu          sync.Mutex
	indexOf     map[idhash.Hash]uint32
	snapshot    []configmodel.ProcessState
	pgState     idhash.Hash
	lastExecErr uint32
	hasExecErr  bool
}

// NewProcessStateMirror allocates a mirror sized to pg's process list,
// every slot starting at StateIdle (the zero ProcessState) until the first
// record arrives.
func NewProcessStateMirror(pg *configmodel.ProcessGroup) *ProcessStateMirror {
	m := &ProcessStateMirror{
		indexOf:  make(map[idhash.Hash]uint32, len(pg.Processes)),
		snapshot: make([]configmodel.ProcessState, len(pg.Processes)),
		pgState:  pg.OffState,
	}
	for i, p := range pg.Processes {
		m.indexOf[p.ProcessID] = uint32(i)
	}
	return m
}

// Attach registers this mirror's update callback against r for every
// configured process, so every record r.Drain() dispatches updates the
// mirror's snapshot.
func (m *ProcessStateMirror) Attach(r *psnotify.Reader) {
	for id, idx := range m.indexOf {
		idx := idx
		r.Register(id, func(rec psnotify.PosixProcess) { m.apply(idx, rec) })
	}
}

func (m *ProcessStateMirror) apply(idx uint32, rec psnotify.PosixProcess) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot[idx] = rec.State
	m.pgState = rec.PGState
	if rec.ExecutionError != 0 {
		m.lastExecErr = rec.ExecutionError
		m.hasExecErr = true
	}
}

// Snapshot returns a copy of the mirrored per-process state, satisfying
// ProcessStateSource.
func (m *ProcessStateMirror) Snapshot() []configmodel.ProcessState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]configmodel.ProcessState, len(m.snapshot))
	copy(out, m.snapshot)
	return out
}

// CurrentState returns the last process-group state observed on the ring.
func (m *ProcessStateMirror) CurrentState() idhash.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pgState
}

// LastExecutionError returns the most recent non-zero execution_error_code
// mirrored over the ring, satisfying ProcessStateSource.
func (m *ProcessStateMirror) LastExecutionError() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastExecErr, m.hasExecErr
}
