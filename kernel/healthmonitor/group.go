package healthmonitor

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/checkpoint"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/observer"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/pstate"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/recovery"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/ring"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/supervision"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/timebuffer"
)

// ProcessStateSource supplies the per-cycle process snapshot and current
// process-group state a GroupMonitor's elementary supervisions are fed
// from. kernel/graph.Graph satisfies it directly when a single daemon owns
// both the Launch Manager and Health Monitor roles; ProcessStateMirror
// satisfies it when HM runs as its own daemon, fed over kernel/psnotify's
// cross-process ring (orig §4.12).
type ProcessStateSource interface {
	Snapshot() []configmodel.ProcessState
	CurrentState() idhash.Hash

	// LastExecutionError reports the execution_error_code of the most
	// recent abort, for elementary supervisions to carry onto the
	// process-state events they feed their Local/Global aggregates (orig
	// §4.6/§4.7). ok is false if no process has aborted yet.
	LastExecutionError() (code uint32, ok bool)
}

// deadlineBufferCapacity bounds the per-Deadline time-sorted event buffer;
// a Deadline only ever holds one pending source timestamp so a handful of
// in-flight checkpoint/process-state events per cycle is generous.
const deadlineBufferCapacity = 64

// elementary wraps one configured Alive/Deadline/Logical supervision with
// the bookkeeping a GroupMonitor needs to drive it: the process-state
// tracker scoped to its configured producers and, for Alive/Deadline, the
// buffer that Push/Evaluate or Evaluate(buf, ...) require.
type elementary struct {
	name      idhash.Hash
	kind      supervision.ElementaryKind
	producers []uint32 // process indices, for pstate.Tracker sizing
	tracker   *pstate.Tracker

	alive    *supervision.Alive
	deadline *supervision.Deadline
	deadBuf  *timebuffer.Buffer[supervision.Event]
	logical  *supervision.Logical
}

func (e *elementary) status() (supervision.Status, uint32) {
	switch e.kind {
	case supervision.ElemAlive:
		return e.alive.Status(), e.alive.ExecutionError()
	case supervision.ElemDeadline:
		return e.deadline.Status(), e.deadline.ExecutionError()
	default:
		return e.logical.Status(), e.logical.ExecutionError()
	}
}

func (e *elementary) pushEvent(ev supervision.Event) {
	switch e.kind {
	case supervision.ElemAlive:
		e.alive.Push(ev)
	case supervision.ElemDeadline:
		if !e.deadBuf.Push(ev, ev.Timestamp) {
			e.deadline.Consume(supervision.Event{DataLoss: true, Timestamp: ev.Timestamp})
		}
	default:
		e.logical.Consume(ev)
	}
}

func (e *elementary) evaluate(syncTS int64) {
	switch e.kind {
	case supervision.ElemAlive:
		e.alive.Evaluate(syncTS)
	case supervision.ElemDeadline:
		e.deadline.Evaluate(e.deadBuf, syncTS)
	}
}

// checkpointFeed adapts checkpoint.Monitor's Event union into the
// supervision.Event one elementary supervision consumes.
type checkpointFeed struct {
	target *elementary
	clk    clock.Clock
}

func (f *checkpointFeed) OnNotify(ev checkpoint.Event) {
	if ev.IsLoss {
		f.target.pushEvent(supervision.Event{DataLoss: true, Timestamp: f.clk.Now().UnixNano()})
		return
	}
	f.target.pushEvent(supervision.Event{
		Kind:         supervision.EventCheckpoint,
		Timestamp:    ev.Record.Timestamp,
		CheckpointID: ev.Record.CheckpointID,
	})
}

// localAggregate folds every elementary supervision feeding one Local,
// grouped by kind, before calling Local.UpdateElementary — the configured
// schema allows a Local to list more than one Alive/Deadline/Logical, but
// supervision.Local only tracks one status per kind, so the worst
// (highest-severity) status among same-kind elementaries is what reaches
// the aggregate, matching Global's own worst-of aggregation.
type localAggregate struct {
	name    idhash.Hash
	local   *supervision.Local
	members []*elementary
}

// GroupMonitor drives one process group's Monitor -> {Alive, Deadline,
// Logical} -> Local -> Global -> Recovery chain for one HM tick (orig
// §4.3–4.8, §5's "one periodic HM thread ... advances every supervision in
// dependency order").
type GroupMonitor struct {
	pg     *configmodel.ProcessGroup
	states ProcessStateSource
	clk    clock.Clock
	log    *obslog.Logger

	mu sync.Mutex

	monitors    map[idhash.Hash]*checkpoint.Monitor
	elementaries map[idhash.Hash]*elementary
	locals      []*localAggregate
	global      *supervision.Global
	recovery    *recovery.Notifier

	lastPGState idhash.Hash
}

// NewGroupMonitor assembles a GroupMonitor from pg's supervision
// configuration. states supplies the per-cycle process snapshot (a
// kernel/graph.Graph in-process, or a ProcessStateMirror fed over
// kernel/psnotify). rings must contain one already-connected *ring.Ring per
// configured MonitorConfig.Process (HM attaches these at application
// startup, before a group is added here). requester issues the recovery
// notifier's control-plane request.
func NewGroupMonitor(
	pg *configmodel.ProcessGroup,
	states ProcessStateSource,
	rings map[idhash.Hash]*ring.Ring,
	requester recovery.Requester,
	clk clock.Clock,
	log *obslog.Logger,
) *GroupMonitor {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = obslog.New("healthmonitor")
	}
	log = log.Named(pg.Name.String())

	gm := &GroupMonitor{
		pg:          pg,
		states:      states,
		clk:         clk,
		log:         log,
		monitors:    make(map[idhash.Hash]*checkpoint.Monitor),
		elementaries: make(map[idhash.Hash]*elementary, len(pg.Alives)+len(pg.Deadlines)+len(pg.Logicals)),
	}

	for _, mc := range pg.Monitors {
		if r, ok := rings[mc.Process]; ok {
			gm.monitors[mc.Process] = checkpoint.New(r)
		}
	}

	for _, cfg := range pg.Alives {
		e := &elementary{
			name: cfg.Name, kind: supervision.ElemAlive, producers: cfg.Producers,
			tracker: pstate.New(len(cfg.Producers)),
			alive: supervision.NewAlive(supervision.AliveConfig{
				ReferenceCycleNs:      int64(cfg.ReferenceCycle),
				MinIndications:        cfg.MinIndications,
				MaxIndications:        cfg.MaxIndications,
				MinDisabled:           cfg.MinDisabled,
				MaxDisabled:           cfg.MaxDisabled,
				FailedCyclesTolerance: cfg.FailedCyclesTolerance,
			}, 256),
		}
		gm.elementaries[cfg.Name] = e
		gm.attachProducers(e, cfg.Producers)
	}

	for _, cfg := range pg.Deadlines {
		e := &elementary{
			name: cfg.Name, kind: supervision.ElemDeadline, producers: cfg.Producers,
			tracker: pstate.New(len(cfg.Producers)),
			deadline: supervision.NewDeadline(supervision.DeadlineConfig{
				SourceCheckpointID: cfg.SourceCheckpointID,
				TargetCheckpointID: cfg.TargetCheckpointID,
				MinDeadlineNs:      int64(cfg.MinDeadline),
				MaxDeadlineNs:      int64(cfg.MaxDeadline),
				MinDisabled:        cfg.MinDisabled,
				MaxDisabled:        cfg.MaxDisabled,
			}),
			deadBuf: timebuffer.New[supervision.Event](deadlineBufferCapacity),
		}
		gm.elementaries[cfg.Name] = e
		gm.attachProducers(e, cfg.Producers)
	}

	for _, cfg := range pg.Logicals {
		entries := make(map[uint32]bool, len(cfg.Entries))
		for _, id := range cfg.Entries {
			entries[id] = true
		}
		finals := make(map[uint32]bool, len(cfg.Finals))
		for _, id := range cfg.Finals {
			finals[id] = true
		}
		e := &elementary{
			name: cfg.Name, kind: supervision.ElemLogical, producers: cfg.Producers,
			tracker: pstate.New(len(cfg.Producers)),
			logical: supervision.NewLogical(supervision.LogicalConfig{
				Successors: cfg.Successors, Entries: entries, Finals: finals,
			}, log.Named("logical")),
		}
		gm.elementaries[cfg.Name] = e
		gm.attachProducers(e, cfg.Producers)
	}

	for _, cfg := range pg.Locals {
		kinds := make([]supervision.ElementaryKind, 0, 3)
		agg := &localAggregate{name: cfg.Name}
		if len(cfg.Alives) > 0 {
			kinds = append(kinds, supervision.ElemAlive)
		}
		if len(cfg.Deadlines) > 0 {
			kinds = append(kinds, supervision.ElemDeadline)
		}
		if len(cfg.Logicals) > 0 {
			kinds = append(kinds, supervision.ElemLogical)
		}
		agg.local = supervision.NewLocal(kinds...)
		for _, ref := range cfg.Alives {
			if e, ok := gm.elementaries[ref]; ok {
				agg.members = append(agg.members, e)
			}
		}
		for _, ref := range cfg.Deadlines {
			if e, ok := gm.elementaries[ref]; ok {
				agg.members = append(agg.members, e)
			}
		}
		for _, ref := range cfg.Logicals {
			if e, ok := gm.elementaries[ref]; ok {
				agg.members = append(agg.members, e)
			}
		}
		gm.locals = append(gm.locals, agg)
	}

	gm.global = supervision.NewGlobal(int64(pg.Global.InitialTolerance))

	if pg.Recovery.ConfigName != "" {
		gm.recovery = recovery.New(recovery.Config{
			ConfigName:        pg.Recovery.ConfigName,
			ServiceInstance:   pg.Recovery.ServiceInstance,
			ProcessGroup:      pg.Name,
			ProcessGroupState: pg.RecoveryState,
			Timeout:           pg.Recovery.Timeout,
		}, requester, clk)
		gm.global.AttachRecoveryNotifier(gm.recovery)
	}

	return gm
}

// attachProducers registers a checkpoint-event adapter for e against every
// producer process's Monitor that has one.
func (gm *GroupMonitor) attachProducers(e *elementary, producers []uint32) {
	for _, idx := range producers {
		proc, ok := gm.pg.ProcessByIndex(idx)
		if !ok {
			continue
		}
		mon, ok := gm.monitors[proc.ProcessID]
		if !ok {
			continue
		}
		mon.Attach(&checkpointFeed{target: e, clk: gm.clk})
	}
}

// Tick advances every Monitor, elementary, Local and Global supervision in
// this group by one HM cycle, in dependency order, then polls the recovery
// notifier.
func (gm *GroupMonitor) Tick(syncTimestamp int64) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for _, m := range gm.monitors {
		m.Tick(syncTimestamp)
	}

	gm.feedProcessState(syncTimestamp)

	for _, e := range gm.elementaries {
		e.evaluate(syncTimestamp)
	}

	gm.maybeUpdateTolerance()

	for _, agg := range gm.locals {
		worst := make(map[supervision.ElementaryKind]supervision.Status)
		worstErr := make(map[supervision.ElementaryKind]uint32)
		for _, e := range agg.members {
			st, execErr := e.status()
			if cur, ok := worst[e.kind]; !ok || st.Severity() > cur.Severity() {
				worst[e.kind] = st
				worstErr[e.kind] = execErr
			}
		}
		for kind, st := range worst {
			agg.local.UpdateElementary(kind, st, worstErr[kind])
		}
		execErr, kind := agg.local.ExecutionError()
		gm.global.UpdateLocal(agg.name.String(), agg.local.Status(), execErr, kind, syncTimestamp)
	}

	gm.global.Tick(syncTimestamp)

	if gm.recovery != nil {
		if gm.recovery.State() == recovery.Sending {
			gm.recovery.CyclicTrigger()
		}
		gm.recovery.Poll()
	}
}

// feedProcessState polls the owning graph's current process states and
// active set once per cycle, applies them to every elementary's tracker
// scoped to its configured producers, and feeds the resulting edge.
func (gm *GroupMonitor) feedProcessState(syncTimestamp int64) {
	snapshot := gm.states.Snapshot()
	pgState := gm.states.CurrentState()
	activeSet, _ := gm.pg.ActiveSet(pgState)
	execErr, _ := gm.states.LastExecutionError()

	for _, e := range gm.elementaries {
		for i, procIdx := range e.producers {
			if int(procIdx) >= len(snapshot) {
				continue
			}
			e.tracker.Apply(pstate.Update{
				ProcessIndex: uint32(i),
				State:        snapshot[procIdx],
				InActiveSet:  activeSet[procIdx],
				ActiveMarker: configmodel.StateRunning,
			})
		}
		edge := e.tracker.Finalize()
		if edge == pstate.NoChange {
			continue
		}
		e.pushEvent(supervision.Event{Kind: supervision.EventProcessState, Timestamp: syncTimestamp, Edge: edge, ExecutionError: execErr})
	}
}

// maybeUpdateTolerance applies a per-state expired->stopped debounce
// override when the group's active state has changed since the last tick
// (orig §4.7's "depends on the active process-group state's configured
// tolerance").
func (gm *GroupMonitor) maybeUpdateTolerance() {
	cur := gm.states.CurrentState()
	if cur == gm.lastPGState {
		return
	}
	gm.lastPGState = cur
	if tol, ok := gm.pg.Global.StateTolerances[cur]; ok {
		gm.global.SetExpiredTolerance(int64(tol))
	} else {
		gm.global.SetExpiredTolerance(int64(gm.pg.Global.InitialTolerance))
	}
}

// GlobalStatus reports the group's current Global supervision status.
func (gm *GroupMonitor) GlobalStatus() supervision.GlobalStatus {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	return gm.global.Status()
}
