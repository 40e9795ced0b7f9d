package pgmanager

import (
	"context"
	"sync"

	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
)

// WorkerPool runs kNumWorkerThreads goroutines (default 32, orig §4.10)
// that each loop: dequeue a node, execute its action (start or stop,
// deducible from graph.IsStarting()), and let Graph.ExecuteNode itself
// walk successors and re-dispatch. Grounded on the teacher's fixed worker
// goroutines over a shared channel (kernel/threads/supervisor), not on
// tony-shepherd's per-process goroutine (the spec explicitly pools
// workers across all processes of all groups).
type WorkerPool struct {
	queue *JobQueue
	size  int
	log   *obslog.Logger
	wg    sync.WaitGroup
}

// DefaultWorkerCount is kNumWorkerThreads's default from orig §4.10.
const DefaultWorkerCount = 32

func NewWorkerPool(queue *JobQueue, size int, log *obslog.Logger) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkerCount
	}
	if log == nil {
		log = obslog.New("pgmanager.workerpool")
	}
	return &WorkerPool{queue: queue, size: size, log: log}
}

// Start launches the pool's worker goroutines; they run until ctx is
// cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

func (p *WorkerPool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		j, ok := p.queue.Get(ctx)
		if !ok {
			return
		}
		j.g.ExecuteNode(j.n)
	}
}

// Wait blocks until every worker goroutine has returned, i.e. until the
// context passed to Start is cancelled and in-flight work drains.
func (p *WorkerPool) Wait() { p.wg.Wait() }
