// Package graph implements the per-process-group orchestrator of orig
// §4.9: a Graph owns one ProcessInfoNode per configured process and drives
// a single two-phase (stop-then-start) state transition at a time, exactly
// as kNumWorkerThreads workers in kernel/pgmanager will dispatch against it.
// Grounded on _examples' tony-shepherd ProcessManager/DependencyGraph
// (dependency-ordered start/stop, per-process monitor goroutine, cascade
// failure on dependency loss, restart-with-backoff) generalised from a
// name-keyed map and "stop dependents first" walk to the spec's counted
// dependency model, where nodes are dispatched to a shared worker pool as
// their remaining-dependency count reaches zero.
package graph

import (
	"sync"

	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
)

// DispatchFunc hands a ready node to the owning worker pool; the pool calls
// back into Graph.ExecuteNode on some worker goroutine. Dispatch is called
// with the graph's internal lock held, so implementations must only
// enqueue (e.g. onto a JobQueue) and must never call ExecuteNode inline.
type DispatchFunc func(*Graph, *Node)

// Graph drives one ProcessGroup's lifecycle. One Graph exists per
// configured process group, owned by kernel/pgmanager's Manager.
type Graph struct {
	mu sync.Mutex

	group *configmodel.ProcessGroup
	nodes []*Node

	state        State
	currentState idhash.Hash

	pendingValid   bool
	pendingState   idhash.Hash
	pendingRespond func(ResponseCode, uint32)

	activeRespond func(ResponseCode, uint32)
	targetState   idhash.Hash

	phaseStarting    bool // false = Phase A (stop), true = Phase B (start)
	nodesToExecute   uint32
	generation       uint64 // bumped per beginTransitionLocked; guards stale completions after an abort
	everReachedState bool   // true once any setState has completed successfully; for GetInitialMachineStateRequest

	lastExecutionError    uint32
	hasLastExecutionError bool

	exec      Executor
	dispatch  DispatchFunc
	eventSink func(execErr uint32, onEnter bool)
	log       *obslog.Logger
}

// SetEventSink installs the callback that receives the async LM->SM events
// of orig §6 (`FailedUnexpectedTermination`/`FailedUnexpectedTerminationOnEnter`)
// whenever this graph aborts, onEnter reporting whether the abort happened
// during Phase B (start) of a transition; an abort in Phase A (stop) or a
// crash outside any transition reports false. kernel/pgmanager wires
// this to the Control-Client handler's broadcast path.
func (g *Graph) SetEventSink(sink func(execErr uint32, onEnter bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.eventSink = sink
}

func (g *Graph) notifyAsyncEventLocked(execErr uint32, onEnter bool) {
	g.lastExecutionError = execErr
	g.hasLastExecutionError = true
	if g.eventSink != nil {
		g.eventSink(execErr, onEnter)
	}
}

// LastExecutionError returns the most recently recorded execution_error_code
// from an abort, for GetExecutionErrorRequest (orig §6). ok is false if the
// graph has never aborted.
func (g *Graph) LastExecutionError() (code uint32, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastExecutionError, g.hasLastExecutionError
}

// New constructs a Graph for group, starting in the Off state with every
// node Idle (orig §3: "The Off state has an empty ActiveProcesses").
func New(group *configmodel.ProcessGroup, exec Executor, dispatch DispatchFunc, log *obslog.Logger) *Graph {
	if log == nil {
		log = obslog.New("graph")
	}
	g := &Graph{
		group:        group,
		nodes:        make([]*Node, len(group.Processes)),
		state:        Success,
		currentState: group.OffState,
		exec:         exec,
		dispatch:     dispatch,
		log:          log,
	}
	for i := range group.Processes {
		g.nodes[i] = newNode(uint32(i), &group.Processes[i])
	}
	return g
}

// State reports the graph's current GraphState.
func (g *Graph) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// HasConfiguredState reports whether name names a state configured on this
// graph's process group, for ValidateProcessGroupState (orig §6).
func (g *Graph) HasConfiguredState(name idhash.Hash) bool {
	if name == idhash.Off {
		return true
	}
	_, ok := g.group.StateByName(name)
	return ok
}

// CurrentState reports the last successfully-achieved process-group state.
func (g *Graph) CurrentState() idhash.Hash {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentState
}

// HasReachedState reports whether any setState request has ever completed
// successfully, for GetInitialMachineStateRequest (orig §6).
func (g *Graph) HasReachedState() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.everReachedState
}

// IsStarting reports whether the in-flight transition is in Phase B, for
// the worker pool to decide start vs. stop when it dequeues a node (orig
// §4.10: "execute its action ... deducible from graph.is_starting()").
func (g *Graph) IsStarting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phaseStarting
}

// Snapshot returns a shallow, read-only view of every node's state,
// indexed like the group's process list.
func (g *Graph) Snapshot() []configmodel.ProcessState {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]configmodel.ProcessState, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.state
	}
	return out
}

// RequestSetState implements the serialisation and idempotence rules of
// orig §4.9/§4.10/§8: respond is invoked exactly once per request, either
// synchronously (reject/idempotent cases) or asynchronously on transition
// completion. execErr is only meaningful when the code is SetStateFailed.
func (g *Graph) RequestSetState(target idhash.Hash, respond func(code ResponseCode, execErr uint32)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.group.ActiveSet(target); !ok {
		respond(SetStateInvalidArguments, 0)
		return
	}

	if g.state == Success && g.currentState == target {
		respond(SetStateAlreadyInState, 0)
		return
	}

	busy := g.state == InTransition || g.state == Aborting || g.state == Cancelled
	if busy {
		if g.state == InTransition && g.targetState == target {
			respond(SetStateTransitionToSameState, 0)
			return
		}
		if g.pendingValid && g.pendingState == target {
			respond(SetStateTransitionToSameState, 0)
			return
		}
		if g.state == InTransition {
			g.state = next(g.state, Cancelled)
			if g.activeRespond != nil {
				g.activeRespond(SetStateCancelled, 0)
				g.activeRespond = nil
			}
		} else {
			g.state = next(g.state, Cancelled)
		}
		if g.pendingValid && g.pendingRespond != nil {
			// the older pending request is superseded before it ever started
			g.pendingRespond(SetStateCancelled, 0)
		}
		g.pendingValid = true
		g.pendingState = target
		g.pendingRespond = respond
		return
	}

	g.beginTransitionLocked(target, respond)
}

func (g *Graph) beginTransitionLocked(target idhash.Hash, respond func(ResponseCode, uint32)) {
	g.state = next(g.state, InTransition)
	g.targetState = target
	g.activeRespond = respond
	g.phaseStarting = false
	g.generation++
	g.startPhaseALocked()
}

// startPhaseALocked marks included stop-nodes, counts their stop-dependency
// edges within the currently-active state, and dispatches every head node.
func (g *Graph) startPhaseALocked() {
	active, _ := g.group.ActiveSet(g.currentState)
	target, _ := g.group.ActiveSet(g.targetState)

	var included []*Node
	for _, n := range g.nodes {
		n.isIncluded = n.state != configmodel.StateIdle && !target[n.Index]
		n.dependentOnTerminating = n.dependentOnTerminating[:0]
	}
	for _, n := range g.nodes {
		if !n.isIncluded {
			continue
		}
		included = append(included, n)
	}
	for _, n := range included {
		var deps uint32
		for _, other := range included {
			if other == n {
				continue
			}
			for _, dep := range other.Config.Dependencies {
				if dep.Trigger == configmodel.StateRunning && dep.TargetIndex == n.Index && active[other.Index] {
					deps++
					// other depends on n's Running, so other must terminate
					// before n: other's completion decrements n's remaining count.
					other.dependentOnTerminating = append(other.dependentOnTerminating, successor{index: n.Index})
				}
			}
		}
		n.dependenciesRemaining = deps
	}

	g.nodesToExecute = uint32(len(included))
	if g.nodesToExecute == 0 {
		g.advancePhaseLocked()
		return
	}
	for _, n := range included {
		n.isHead = n.dependenciesRemaining == 0
		if n.isHead {
			g.dispatchLocked(n)
		}
	}
}

// startPhaseBLocked marks included start-nodes, counts their configured
// start-dependencies, and dispatches every head node.
func (g *Graph) startPhaseBLocked() {
	target, _ := g.group.ActiveSet(g.targetState)

	var included []*Node
	for _, n := range g.nodes {
		n.isIncluded = target[n.Index] && n.state != configmodel.StateRunning
		n.dependentOnRunning = n.dependentOnRunning[:0]
	}
	for _, n := range g.nodes {
		if n.isIncluded {
			included = append(included, n)
		}
	}
	byIndex := make(map[uint32]*Node, len(g.nodes))
	for _, n := range g.nodes {
		byIndex[n.Index] = n
	}
	for _, n := range included {
		var deps uint32
		for _, dep := range n.Config.Dependencies {
			depTarget := byIndex[dep.TargetIndex]
			if depTarget == nil {
				continue
			}
			switch dep.Trigger {
			case configmodel.StateRunning:
				if depTarget.state == configmodel.StateRunning {
					continue // already satisfied
				}
				deps++
				depTarget.dependentOnRunning = append(depTarget.dependentOnRunning, successor{index: n.Index})
			case configmodel.StateTerminated:
				// Phase A already quiesced every stop this transition
				// needed; a Terminated trigger is satisfied as soon as
				// its target is not (still) Running.
				continue
			}
		}
		n.dependenciesRemaining = deps
	}

	g.nodesToExecute = uint32(len(included))
	if g.nodesToExecute == 0 {
		g.advancePhaseLocked()
		return
	}
	for _, n := range included {
		n.isHead = n.dependenciesRemaining == 0
		if n.isHead {
			g.dispatchLocked(n)
		}
	}
}

func (g *Graph) dispatchLocked(n *Node) {
	n.resetWaiters()
	n.generation = g.generation
	if g.dispatch != nil {
		g.dispatch(g, n)
	}
}

// advancePhaseLocked is called when a phase's node count reaches zero. A
// cancelled graph (orig §5: "the current graph continues to execute to
// quiescence ... no force-terminate") still runs Phase A and Phase B to
// completion here; only an abort short-circuits, via abortLocked calling
// resolveQuiescenceLocked directly instead of going through this path.
func (g *Graph) advancePhaseLocked() {
	if !g.phaseStarting {
		g.phaseStarting = true
		g.startPhaseBLocked()
		return
	}
	g.currentState = g.targetState
	if g.state != Aborting && g.state != Cancelled {
		g.state = Success // transition quiesced; not a table-driven request
		g.everReachedState = true
	}
	if g.activeRespond != nil {
		g.activeRespond(SetStateSuccess, 0)
		g.activeRespond = nil
	}
	g.resolveQuiescenceLocked()
}

// resolveQuiescenceLocked runs once the active transition has fully
// quiesced (success, aborted, or cancelled) and promotes any pending
// request (orig §4.10: "on quiescence the graph transitions to it").
func (g *Graph) resolveQuiescenceLocked() {
	if g.state == Aborting {
		g.state = next(g.state, Success) // -> undefined, per the transition table
	} else if g.state == Cancelled {
		g.state = next(g.state, Success) // -> undefined
	}
	if g.state == Undefined {
		// Undefined only resolves via a fresh setState; nothing to do
		// until one arrives.
	}
	if g.pendingValid {
		target := g.pendingState
		respond := g.pendingRespond
		g.pendingValid = false
		g.pendingState = idhash.Zero
		g.pendingRespond = nil
		if g.state == Undefined {
			g.state = Success // allow a pending request to re-arm the graph
		}
		g.beginTransitionLocked(target, respond)
	}
}

// Abort aborts the in-flight transition from outside the worker pool, used
// when kernel/pgmanager's JobQueue drops a job after its add-timeout
// elapses (orig §5: "timeout is a failure signal, not a retry cue").
func (g *Graph) Abort(execErr uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.abortLocked(execErr)
}

func (g *Graph) abortLocked(execErr uint32) {
	g.state = next(g.state, Aborting)
	g.notifyAsyncEventLocked(execErr, g.phaseStarting)
	if g.activeRespond != nil {
		g.activeRespond(SetStateFailed, execErr)
		g.activeRespond = nil
	}
	g.resolveQuiescenceLocked()
}

// ExecuteNode performs n's action for the graph's current phase, blocking
// on the configured timeout, then updates dependency counters and
// dispatches newly-ready successors. Called by a kernel/pgmanager worker
// goroutine after dequeuing n.
func (g *Graph) ExecuteNode(n *Node) {
	if g.IsStarting() {
		g.executeStart(n)
	} else {
		g.executeStop(n)
	}
}

func (g *Graph) executeStop(n *Node) {
	n.state = configmodel.StateTerminating
	if err := g.exec.RequestTerminate(n); err != nil {
		g.log.Warn("terminate request failed", obslog.Uint64("node", uint64(n.Index)), obslog.Err(err))
	}
	timeout := n.Config.Manager.TerminationTimeout
	if !n.awaitTermination(timeout) {
		if err := g.exec.ForceTerminate(n); err != nil {
			g.log.Warn("force terminate failed", obslog.Uint64("node", uint64(n.Index)), obslog.Err(err))
		}
	}
	n.state = configmodel.StateTerminated

	g.mu.Lock()
	defer g.mu.Unlock()
	g.completeNodeLocked(n, n.dependentOnTerminating)
}

func (g *Graph) executeStart(n *Node) {
	n.state = configmodel.StateStarting
	if err := g.exec.Spawn(n); err != nil {
		g.mu.Lock()
		g.abortLocked(n.Config.Manager.ExecutionErrorCode)
		g.mu.Unlock()
		return
	}
	timeout := n.Config.Manager.StartupTimeout
	if !n.awaitStartup(timeout) {
		g.mu.Lock()
		g.abortLocked(n.Config.Manager.ExecutionErrorCode)
		g.mu.Unlock()
		return
	}
	n.state = configmodel.StateRunning

	g.mu.Lock()
	defer g.mu.Unlock()
	g.completeNodeLocked(n, n.dependentOnRunning)
}

func (g *Graph) completeNodeLocked(n *Node, successors []successor) {
	if n.generation != g.generation {
		return // stale completion from an aborted/superseded transition
	}
	if g.nodesToExecute > 0 {
		g.nodesToExecute--
	}
	for _, s := range successors {
		target := g.nodes[s.index]
		if target.decrementRemaining() == 0 {
			g.dispatchLocked(target)
		}
	}
	if g.nodesToExecute == 0 {
		g.advancePhaseLocked()
	}
}

// ReportRunning signals that the Lifecycle-Client channel has reported
// kRunning for the process at idx (orig §4.9's ProcessInfoNode.start
// semaphore).
func (g *Graph) ReportRunning(idx uint32) {
	if int(idx) >= len(g.nodes) {
		return
	}
	g.nodes[idx].signalStarted()
}

// ReportExit routes a reaped (pid, status) to its owning node. If the node
// was expected to terminate (it is in kTerminating), this releases the
// worker blocked on awaitTermination. Otherwise it is an unexpected
// termination (orig §4.9.1).
func (g *Graph) ReportExit(idx uint32, status int) {
	if int(idx) >= len(g.nodes) {
		return
	}
	n := g.nodes[idx]
	n.exitStatus = status

	g.mu.Lock()
	expected := n.state == configmodel.StateTerminating
	g.mu.Unlock()

	if expected {
		n.signalTerminated()
		return
	}
	g.handleUnexpectedTermination(n)
}

// handleUnexpectedTermination implements orig §4.9.1: a node whose process
// exits while not in kTerminating and not self-terminating aborts the
// graph, optionally re-arming itself if restarts remain. Either way the
// graph itself quiesces to undefined: a restart only pre-arms the node (by
// resetting it to Idle with its restart counter bumped) for the next
// transition attempt, it does not resume the interrupted one in place.
func (g *Graph) handleUnexpectedTermination(n *Node) {
	if n.Config.Manager.IsSelfTerminating {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	n.state = configmodel.StateTerminated
	onEnter := g.phaseStarting && (g.state == InTransition || g.state == Cancelled)
	g.state = next(g.state, Aborting)
	g.notifyAsyncEventLocked(n.Config.Manager.ExecutionErrorCode, onEnter)
	if g.activeRespond != nil {
		g.activeRespond(SetStateFailed, n.Config.Manager.ExecutionErrorCode)
		g.activeRespond = nil
	}

	if n.restartCounter < n.Config.Manager.RestartAttempts {
		n.restartCounter++
		n.state = configmodel.StateIdle
	}
	g.resolveQuiescenceLocked()
}

