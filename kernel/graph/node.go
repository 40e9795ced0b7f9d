package graph

import (
	"sync/atomic"
	"time"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
)

// successor is a weak back-reference into the owning Graph's node slice: it
// never owns the target, only its index, matching orig §3's "successor
// entries are weak back-references (pointers + index, never owning)".
type successor struct {
	index uint32
}

// Node is the mutable per-process record of orig §3 ("ProcessInfoNode"):
// one per configured OsProcess, exclusively owned by its Graph.
type Node struct {
	Index  uint32
	Config *configmodel.OsProcess

	state      configmodel.ProcessState
	pid        int
	exitStatus int

	dependenciesRemaining uint32 // atomic
	isIncluded            bool
	isHead                bool

	dependentOnRunning     []successor
	dependentOnTerminating []successor

	restartCounter uint32
	generation     uint64 // the Graph.generation at dispatch time; guards stale completions

	// terminationWait/startupWait stand in for the bounded-timeout
	// semaphores of orig §4.9: each is closed exactly once, by the node's
	// own executor callback, to release a blocked caller.
	terminationWait chan struct{}
	startupWait     chan struct{}
}

func newNode(idx uint32, cfg *configmodel.OsProcess) *Node {
	return &Node{
		Index:  idx,
		Config: cfg,
		state:  configmodel.StateIdle,
	}
}

// State returns the node's current ProcessState.
func (n *Node) State() configmodel.ProcessState { return n.state }

// PID returns the last known OS process id, valid only while State is
// Starting or Running.
func (n *Node) PID() int { return n.pid }

// RestartCounter returns how many times this node has been reset to Idle
// for a restart after an unexpected termination.
func (n *Node) RestartCounter() uint32 { return n.restartCounter }

// ID returns the configured process identifier hash.
func (n *Node) ID() idhash.Hash { return n.Config.ProcessID }

func (n *Node) resetWaiters() {
	n.terminationWait = make(chan struct{})
	n.startupWait = make(chan struct{})
}

// awaitStartup blocks until the node reports kRunning or the timeout
// elapses, mirroring "ProcessInfoNode.start blocks on the Lifecycle-Client
// semaphore up to the process's configured startup_timeout_ms" (orig §5).
func (n *Node) awaitStartup(timeout time.Duration) bool {
	select {
	case <-n.startupWait:
		return true
	case <-time.After(timeout):
		return false
	}
}

// awaitTermination blocks until the node's process is reaped or the
// timeout elapses; on timeout the caller force-terminates (orig §5).
func (n *Node) awaitTermination(timeout time.Duration) bool {
	select {
	case <-n.terminationWait:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (n *Node) signalStarted() {
	select {
	case <-n.startupWait:
	default:
		close(n.startupWait)
	}
}

func (n *Node) signalTerminated() {
	select {
	case <-n.terminationWait:
	default:
		close(n.terminationWait)
	}
}

func (n *Node) decrementRemaining() uint32 {
	return atomic.AddUint32(&n.dependenciesRemaining, ^uint32(0))
}
