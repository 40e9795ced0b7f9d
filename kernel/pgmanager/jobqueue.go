// Package pgmanager implements the process-group manager, job queue, and
// worker pool of orig §4.10: it owns every configured Graph, dispatches
// ready nodes to a fixed worker pool, and routes reaped OS exits back to
// their owning node. Grounded on _examples' tony-shepherd ProcessManager
// (the JobQueue/worker split mirrors its monitor-goroutine-per-process
// model, generalised to a shared pool) and on the teacher's
// kernel/threads/supervisor channel-based job handoff.
package pgmanager

import (
	"context"
	"time"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/graph"
)

// job pairs a ready node with the graph that owns it.
type job struct {
	g *graph.Graph
	n *graph.Node
}

// JobQueue is the bounded MPMC queue of orig §4.10: "Producer waits up to
// a bounded delay; on timeout the job is dropped and the graph aborts."
type JobQueue struct {
	ch         chan job
	addTimeout time.Duration
}

// NewJobQueue constructs a queue of the given capacity (typically >= 4x
// the worker count, per orig §4.10) with a bounded add timeout.
func NewJobQueue(capacity int, addTimeout time.Duration) *JobQueue {
	return &JobQueue{ch: make(chan job, capacity), addTimeout: addTimeout}
}

// Add enqueues a ready node, blocking up to addTimeout. It returns false
// if the queue stayed full for the whole timeout, in which case the
// caller must abort the owning graph (orig §5).
func (q *JobQueue) Add(g *graph.Graph, n *graph.Node) bool {
	timer := time.NewTimer(q.addTimeout)
	defer timer.Stop()
	select {
	case q.ch <- job{g: g, n: n}:
		return true
	case <-timer.C:
		return false
	}
}

// Get dequeues the next job, or returns ok=false if ctx is done first.
func (q *JobQueue) Get(ctx context.Context) (job, bool) {
	select {
	case j := <-q.ch:
		return j, true
	case <-ctx.Done():
		return job{}, false
	}
}

// Len reports the number of jobs currently queued, for diagnostics.
func (q *JobQueue) Len() int { return len(q.ch) }
