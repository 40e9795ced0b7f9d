package pgmanager

import (
	"context"
	"sync"

	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/graph"
)

// OSWaiter abstracts the platform wait primitive (waitpid/wait4 and
// equivalents); the core itself never interposes on syscalls (orig §1
// Non-goals), it only consumes whatever the platform layer reports.
type OSWaiter interface {
	// Wait blocks until a child process exits or ctx is cancelled.
	Wait(ctx context.Context) (pid int, status int, err error)
}

type nodeRef struct {
	g   *graph.Graph
	idx uint32
}

// Reaper is the single OS-event-reaper thread of orig §4.10: it waits on
// process exit and routes (pid, status) to the owning node via a
// process-id -> node map protected by a reader-writer lock.
type Reaper struct {
	mu     sync.RWMutex
	byPID  map[int]nodeRef
	waiter OSWaiter
	log    *obslog.Logger
}

func NewReaper(waiter OSWaiter, log *obslog.Logger) *Reaper {
	if log == nil {
		log = obslog.New("pgmanager.reaper")
	}
	return &Reaper{byPID: make(map[int]nodeRef), waiter: waiter, log: log}
}

// Register associates a spawned pid with its owning graph node, called by
// the worker immediately after Executor.Spawn succeeds.
func (r *Reaper) Register(pid int, g *graph.Graph, idx uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPID[pid] = nodeRef{g: g, idx: idx}
}

// Unregister drops a pid once its exit has been routed or it is no longer
// of interest (e.g. the node it tracked was superseded).
func (r *Reaper) Unregister(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPID, pid)
}

// Run loops on the platform wait primitive until ctx is cancelled, routing
// every reaped exit to Graph.ReportExit.
func (r *Reaper) Run(ctx context.Context) {
	for {
		pid, status, err := r.waiter.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Warn("wait failed", obslog.Err(err))
			continue
		}
		r.route(pid, status)
	}
}

func (r *Reaper) route(pid, status int) {
	r.mu.RLock()
	ref, ok := r.byPID[pid]
	r.mu.RUnlock()
	if !ok {
		r.log.Warn("reaped unknown pid", obslog.Int("pid", pid))
		return
	}
	ref.g.ReportExit(ref.idx, status)
	r.Unregister(pid)
}
