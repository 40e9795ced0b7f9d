package graph

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSpawnFailed = errors.New("spawn failed")

// fakeExecutor is a no-delay Executor: Spawn immediately "runs" the
// process (test drives ReportRunning explicitly), RequestTerminate and
// ForceTerminate are recorded but otherwise no-ops.
type fakeExecutor struct {
	mu        sync.Mutex
	spawned   []uint32
	failSpawn map[uint32]bool
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{failSpawn: map[uint32]bool{}}
}

func (f *fakeExecutor) Spawn(n *Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned = append(f.spawned, n.Index)
	if f.failSpawn[n.Index] {
		return errSpawnFailed
	}
	n.SetPID(1000 + int(n.Index))
	return nil
}

func (f *fakeExecutor) RequestTerminate(n *Node) error { return nil }
func (f *fakeExecutor) ForceTerminate(n *Node) error   { return nil }

// testHarness drives a Graph's dispatched nodes on background goroutines,
// exactly as kernel/pgmanager's worker pool would, and auto-acks startup
// for every spawned node unless told not to.
type testHarness struct {
	g        *Graph
	autoRun  bool
	runDelay time.Duration
	wg       sync.WaitGroup
}

func newHarness(group *configmodel.ProcessGroup, exec Executor, autoRun bool) *testHarness {
	h := &testHarness{autoRun: autoRun, runDelay: time.Millisecond}
	h.g = New(group, exec, h.dispatch, nil)
	return h
}

func (h *testHarness) dispatch(g *Graph, n *Node) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if h.autoRun && !g.IsStarting() {
			// stop action: signal termination immediately.
			go func() { time.Sleep(h.runDelay); g.ReportExit(n.Index, 0) }()
		}
		if h.autoRun && g.IsStarting() {
			go func() { time.Sleep(h.runDelay); g.ReportRunning(n.Index) }()
		}
		g.ExecuteNode(n)
	}()
}

func (h *testHarness) wait() { h.wg.Wait() }

func singleProcessGroup() *configmodel.ProcessGroup {
	runState := idhash.Of("Run")
	proc := configmodel.OsProcess{
		ProcessID:   idhash.Of("P"),
		UniqueIndex: 0,
		Manager: configmodel.PgManagerConfig{
			StartupTimeout:     50 * time.Millisecond,
			TerminationTimeout: 50 * time.Millisecond,
		},
	}
	return &configmodel.ProcessGroup{
		Name:     idhash.Of("G"),
		OffState: idhash.Off,
		States: []configmodel.ProcessGroupState{
			{Name: runState, ActiveProcesses: []uint32{0}},
		},
		Processes: []configmodel.OsProcess{proc},
	}
}

func TestSingleProcessStart(t *testing.T) {
	group := singleProcessGroup()
	exec := newFakeExecutor()
	h := newHarness(group, exec, true)

	var got ResponseCode
	done := make(chan struct{})
	h.g.RequestSetState(idhash.Of("Run"), func(code ResponseCode, execErr uint32) {
		got = code
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	h.wait()

	assert.Equal(t, SetStateSuccess, got)
	assert.Equal(t, Success, h.g.State())
	assert.Equal(t, configmodel.StateRunning, h.g.Snapshot()[0])
}

func TestDependencyOrdering(t *testing.T) {
	runState := idhash.Of("Run")
	a := configmodel.OsProcess{
		ProcessID: idhash.Of("A"),
		Manager: configmodel.PgManagerConfig{
			StartupTimeout:     50 * time.Millisecond,
			TerminationTimeout: 50 * time.Millisecond,
		},
	}
	b := configmodel.OsProcess{
		ProcessID: idhash.Of("B"),
		Manager: configmodel.PgManagerConfig{
			StartupTimeout:     50 * time.Millisecond,
			TerminationTimeout: 50 * time.Millisecond,
		},
		Dependencies: []configmodel.Dependency{
			{Trigger: configmodel.StateRunning, TargetIndex: 0},
		},
	}
	group := &configmodel.ProcessGroup{
		Name:     idhash.Of("G"),
		OffState: idhash.Off,
		States: []configmodel.ProcessGroupState{
			{Name: runState, ActiveProcesses: []uint32{0, 1}},
		},
		Processes: []configmodel.OsProcess{a, b},
	}

	exec := newFakeExecutor()
	h := newHarness(group, exec, true)

	done := make(chan ResponseCode, 1)
	h.g.RequestSetState(runState, func(code ResponseCode, execErr uint32) { done <- code })

	select {
	case code := <-done:
		assert.Equal(t, SetStateSuccess, code)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	h.wait()

	assert.Equal(t, configmodel.StateRunning, h.g.Snapshot()[0])
	assert.Equal(t, configmodel.StateRunning, h.g.Snapshot()[1])
	assert.Equal(t, []uint32{0, 1}, exec.spawned)
}

func TestStartupTimeoutAborts(t *testing.T) {
	group := singleProcessGroup()
	group.Processes[0].Manager.StartupTimeout = 10 * time.Millisecond
	group.Processes[0].Manager.ExecutionErrorCode = 42

	exec := newFakeExecutor()
	// autoRun=false: nobody ever calls ReportRunning, so the node times out.
	h := newHarness(group, exec, false)

	done := make(chan struct{})
	var got ResponseCode
	var errCode uint32
	h.g.RequestSetState(idhash.Of("Run"), func(code ResponseCode, execErr uint32) {
		got, errCode = code, execErr
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	h.wait()

	assert.Equal(t, SetStateFailed, got)
	assert.Equal(t, uint32(42), errCode)
	require.Equal(t, Undefined, h.g.State())
}

func TestCancellationLetsFirstTransitionQuiesce(t *testing.T) {
	runState := idhash.Of("Run")
	idleState := idhash.Of("Idle")
	proc := configmodel.OsProcess{
		ProcessID: idhash.Of("P"),
		Manager: configmodel.PgManagerConfig{
			StartupTimeout:     200 * time.Millisecond,
			TerminationTimeout: 200 * time.Millisecond,
		},
	}
	group := &configmodel.ProcessGroup{
		Name:     idhash.Of("G"),
		OffState: idhash.Off,
		States: []configmodel.ProcessGroupState{
			{Name: runState, ActiveProcesses: []uint32{0}},
			{Name: idleState, ActiveProcesses: []uint32{}},
		},
		Processes: []configmodel.OsProcess{proc},
	}

	exec := newFakeExecutor()
	h := newHarness(group, exec, true)
	h.runDelay = 150 * time.Millisecond

	firstDone := make(chan ResponseCode, 1)
	secondDone := make(chan ResponseCode, 1)

	h.g.RequestSetState(runState, func(code ResponseCode, execErr uint32) { firstDone <- code })
	time.Sleep(20 * time.Millisecond)
	h.g.RequestSetState(idleState, func(code ResponseCode, execErr uint32) { secondDone <- code })

	select {
	case code := <-firstDone:
		assert.Equal(t, SetStateCancelled, code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first response")
	}
	select {
	case code := <-secondDone:
		assert.Equal(t, SetStateSuccess, code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second response")
	}
	h.wait()

	assert.Equal(t, idleState, h.g.CurrentState())
}
