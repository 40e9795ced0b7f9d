package pgmanager

import (
	"context"
	"sync"
	"time"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/graph"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
)

// DefaultQueueCapacity is 4x DefaultWorkerCount, matching orig §4.10's
// "typically >= 4x the worker count".
const DefaultQueueCapacity = 4 * DefaultWorkerCount

// DefaultAddTimeout is kMaxQueueDelay's stand-in default.
const DefaultAddTimeout = 2 * time.Second

// Manager owns every configured process group's Graph plus the shared job
// queue, worker pool, and OS-event reaper of orig §4.10.
type Manager struct {
	mu     sync.RWMutex
	graphs map[idhash.Hash]*graph.Graph

	spawner ProcessSpawner
	queue   *JobQueue
	pool    *WorkerPool
	reaper  *Reaper

	// seen dedups SetState requests that may be redelivered over an
	// at-least-once Control-Client transport; restartLimiters holds one
	// rate limiter per process group, queried through AllowRestart.
	seenMu          sync.Mutex
	seen            *bloom.BloomFilter
	restartLimiters map[idhash.Hash]*rate.Limiter

	shutdown *Shutdowner

	// onAsyncEvent, if set, is wired into every group's Graph.SetEventSink
	// so kernel/controlclient can broadcast FailedUnexpectedTermination(OnEnter)
	// to subscribed clients without the Manager knowing anything about
	// channels.
	onAsyncEvent func(group idhash.Hash, execErr uint32, onEnter bool)

	log *obslog.Logger
}

// SetAsyncEventHandler installs the callback forwarded to every group's
// Graph.SetEventSink. Call before AddGroup for groups that should report
// async events; existing groups are not retroactively rewired.
func (m *Manager) SetAsyncEventHandler(fn func(group idhash.Hash, execErr uint32, onEnter bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAsyncEvent = fn
}

// New constructs a Manager. workerCount <= 0 selects DefaultWorkerCount;
// queueCapacity/addTimeout <= 0 select their documented defaults.
func New(spawner ProcessSpawner, waiter OSWaiter, workerCount, queueCapacity int, addTimeout time.Duration, log *obslog.Logger) *Manager {
	if log == nil {
		log = obslog.New("pgmanager")
	}
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	if addTimeout <= 0 {
		addTimeout = DefaultAddTimeout
	}
	queue := NewJobQueue(queueCapacity, addTimeout)
	reaper := NewReaper(waiter, log.Named("reaper"))
	return &Manager{
		spawner:         spawner,
		graphs:          make(map[idhash.Hash]*graph.Graph),
		queue:           queue,
		pool:            NewWorkerPool(queue, workerCount, log.Named("workerpool")),
		reaper:          reaper,
		seen:            bloom.NewWithEstimates(100_000, 0.001),
		restartLimiters: make(map[idhash.Hash]*rate.Limiter),
		shutdown:        NewShutdowner(0, log.Named("shutdown")),
		log:             log,
	}
}

// RegisterShutdownHook adds fn to the set of hooks Shutdown runs, in LIFO
// order relative to other registered hooks. Daemons use this to fold
// their own components (Control-Client handler, metrics flush, log sync)
// into the same graceful-shutdown sequence as the worker pool and reaper.
func (m *Manager) RegisterShutdownHook(fn func(context.Context) error) {
	m.shutdown.Register(fn)
}

// AddGroup registers a configured process group, building its Graph and
// wiring its dispatch to the shared job queue.
func (m *Manager) AddGroup(cfg *configmodel.ProcessGroup) *graph.Graph {
	adapter := newExecutorAdapter(m.spawner, m.reaper)
	g := graph.New(cfg, adapter, m.dispatch, m.log.Named(cfg.Name.String()))
	adapter.g = g

	m.mu.Lock()
	m.graphs[cfg.Name] = g
	m.restartLimiters[cfg.Name] = rate.NewLimiter(rate.Every(time.Second), 5)
	onAsyncEvent := m.onAsyncEvent
	m.mu.Unlock()

	if onAsyncEvent != nil {
		g.SetEventSink(func(execErr uint32, onEnter bool) {
			onAsyncEvent(cfg.Name, execErr, onEnter)
		})
	}
	return g
}

// Graph looks up a previously-registered group's Graph.
func (m *Manager) Graph(name idhash.Hash) (*graph.Graph, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.graphs[name]
	return g, ok
}

func (m *Manager) dispatch(g *graph.Graph, n *graph.Node) {
	if !m.queue.Add(g, n) {
		m.log.Warn("job queue add timed out; aborting graph",
			obslog.Uint64("node", uint64(n.Index)))
		g.Abort(n.Config.Manager.ExecutionErrorCode)
	}
}

// RequestSetState dedups requestID against recent requests (an
// at-least-once Control-Client transport may redeliver the same message)
// before forwarding to the named group's Graph.
func (m *Manager) RequestSetState(groupName idhash.Hash, requestID uuid.UUID, target idhash.Hash, respond func(graph.ResponseCode, uint32)) {
	if m.alreadySeen(requestID) {
		m.log.Warn("duplicate SetState request dropped", obslog.String("request_id", requestID.String()))
		return
	}
	g, ok := m.Graph(groupName)
	if !ok {
		respond(graph.SetStateInvalidArguments, 0)
		return
	}
	g.RequestSetState(target, respond)
}

func (m *Manager) alreadySeen(id uuid.UUID) bool {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	return m.seen.TestAndAdd(id[:])
}

// AllowRestart applies the per-group restart rate limit (one token per
// second, burst 5), independent of the configured restart_attempts
// counter. Nothing in this module calls it; the graph's restart handling
// does not consult it.
func (m *Manager) AllowRestart(groupName idhash.Hash) bool {
	m.mu.RLock()
	limiter, ok := m.restartLimiters[groupName]
	m.mu.RUnlock()
	if !ok {
		return true
	}
	return limiter.Allow()
}

// Start launches the worker pool and the OS-event reaper; both run until
// ctx is cancelled. It registers the pool's drain as the first shutdown
// hook, so Shutdown always waits for in-flight spawn/terminate jobs
// before a daemon reports itself stopped.
func (m *Manager) Start(ctx context.Context) {
	m.pool.Start(ctx)
	go m.reaper.Run(ctx)
	m.shutdown.Register(func(context.Context) error {
		m.pool.Wait()
		return nil
	})
}

// Shutdown runs every registered shutdown hook (worker pool drain plus
// whatever a daemon added via RegisterShutdownHook) in LIFO order, bounded
// by the Shutdowner's timeout. The caller is responsible for cancelling
// the context passed to Start before calling Shutdown, or the pool drain
// hook will block until the hook deadline expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.shutdown.Shutdown(ctx)
}
