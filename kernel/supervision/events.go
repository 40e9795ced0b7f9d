package supervision

import (
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/pstate"
)

// EventKind tags the supervision event union of orig §3.
type EventKind int

const (
	EventCheckpoint EventKind = iota
	EventProcessState
	EventSync
)

// ProcessState mirrors configmodel.ProcessState without importing it here,
// to keep this package free of a dependency cycle with pstate/configmodel;
// callers translate at the boundary.
type ProcessState int

const (
	PSIdle ProcessState = iota
	PSStarting
	PSRunning
	PSTerminating
	PSTerminated
	PSOff
)

// Event is the tagged union {Checkpoint, ProcessStateSnapshot, Sync} that
// every elementary supervision consumes, keyed by Timestamp for the
// time-sorting buffer.
type Event struct {
	Kind      EventKind
	Timestamp int64

	// Checkpoint fields.
	CheckpointID uint32
	Process      idhash.Hash

	// ProcessStateSnapshot fields. Edge is the already-classified tracker
	// edge (orig §4.4), computed upstream by a pstate.Tracker scoped to
	// this supervision's configured producer processes.
	State          ProcessState
	PGState        idhash.Hash
	ExecutionError uint32
	Edge           pstate.Edge

	// DataLoss is set on any event that represents a detected data-loss
	// condition (ring overflow, time-buffer full); every supervision
	// reacts to this by expiring (orig §4.5.4, §4.4).
	DataLoss bool
}
