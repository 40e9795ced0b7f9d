// Package healthmonitor implements the Health Monitor daemon's periodic
// tick loop of orig §5: one goroutine per machine that advances every
// configured process group's Monitor -> {Alive, Deadline, Logical} ->
// Local -> Global -> Recovery chain once per cycle, in that dependency
// order, and feeds kernel/metrics with the tick's wall time and every
// group's resulting status. Grounded on kernel/threads/supervisor.go's
// single-goroutine supervision loop, generalised from thread-restart
// bookkeeping to the chained supervision state machines of
// kernel/supervision/kernel/recovery.
package healthmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/metrics"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/recovery"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/ring"
)

// Orchestrator owns every process group's GroupMonitor and drives them
// through one Tick per cycle.
type Orchestrator struct {
	cycle   time.Duration
	clk     clock.Clock
	metrics *metrics.Registry
	log     *obslog.Logger

	mu     sync.RWMutex
	groups map[idhash.Hash]*GroupMonitor
}

// New creates an Orchestrator that ticks every cycle (the machine config's
// CycleTime). Pass clk=nil in production; tests inject a clock.Mock to
// drive ticks deterministically.
func New(cycle time.Duration, metricsReg *metrics.Registry, clk clock.Clock, log *obslog.Logger) *Orchestrator {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = obslog.New("healthmonitor")
	}
	return &Orchestrator{
		cycle:   cycle,
		clk:     clk,
		metrics: metricsReg,
		log:     log,
		groups:  make(map[idhash.Hash]*GroupMonitor),
	}
}

// AddGroup builds and registers a GroupMonitor for pg. states is either the
// same Graph instance kernel/pgmanager.Manager drives for this group's
// lifecycle (single-daemon deployment) or a ProcessStateMirror fed over
// kernel/psnotify (separate-daemon deployment); rings is this group's
// already-connected per-application checkpoint rings, keyed by process;
// requester issues the recovery notifier's control-plane request (typically
// a kernel/recoveryrelay.Requester).
func (o *Orchestrator) AddGroup(pg *configmodel.ProcessGroup, states ProcessStateSource, rings map[idhash.Hash]*ring.Ring, requester recovery.Requester) {
	gm := NewGroupMonitor(pg, states, rings, requester, o.clk, o.log)
	o.mu.Lock()
	o.groups[pg.Name] = gm
	o.mu.Unlock()
}

// Group returns the GroupMonitor registered for name, if any.
func (o *Orchestrator) Group(name idhash.Hash) (*GroupMonitor, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	gm, ok := o.groups[name]
	return gm, ok
}

// Run drives the periodic tick loop until ctx is cancelled: every cycle,
// every registered group is ticked with the same sync timestamp and the
// cycle's wall time is recorded to SupervisionTickNS.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := o.clk.Ticker(o.cycle)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			o.tickAll(now.UnixNano())
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) tickAll(syncTimestamp int64) {
	start := o.clk.Now()

	o.mu.RLock()
	groups := make([]*GroupMonitor, 0, len(o.groups))
	for _, gm := range o.groups {
		groups = append(groups, gm)
	}
	o.mu.RUnlock()

	for _, gm := range groups {
		gm.Tick(syncTimestamp)
	}

	if o.metrics != nil {
		o.metrics.SupervisionTickNS.Observe(o.clk.Now().Sub(start).Seconds())
	}
}
