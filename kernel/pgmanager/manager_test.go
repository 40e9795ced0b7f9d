package pgmanager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/graph"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSpawner hands out incrementing pids; it does not report process exit
// on its own, only on a subsequent SendTerminate (ForceKill is a no-op), mirroring a real
// OSAL (startup completion instead arrives over the Lifecycle-Client
// channel, driven explicitly by the test via Graph.ReportRunning).
type fakeSpawner struct {
	nextPID int32
	exits   chan int // pids to report as exited, consumed by fakeWaiter
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{exits: make(chan int, 16)}
}

func (s *fakeSpawner) Spawn(cfg *configmodel.OsalConfig) (int, error) {
	pid := int(atomic.AddInt32(&s.nextPID, 1))
	return pid, nil
}

func (s *fakeSpawner) SendTerminate(pid int) error {
	s.exits <- pid
	return nil
}

func (s *fakeSpawner) ForceKill(pid int) error { return nil }

// fakeWaiter replays pids pushed onto a channel, standing in for waitpid.
type fakeWaiter struct {
	pids <-chan int
}

func (w *fakeWaiter) Wait(ctx context.Context) (int, int, error) {
	select {
	case pid := <-w.pids:
		return pid, 0, nil
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
}

func singleProcessGroup(name string) *configmodel.ProcessGroup {
	runState := idhash.Of("Run")
	proc := configmodel.OsProcess{
		ProcessID: idhash.Of("P"),
		Manager: configmodel.PgManagerConfig{
			StartupTimeout:     200 * time.Millisecond,
			TerminationTimeout: 200 * time.Millisecond,
		},
	}
	return &configmodel.ProcessGroup{
		Name:     idhash.Of(name),
		OffState: idhash.Off,
		States: []configmodel.ProcessGroupState{
			{Name: runState, ActiveProcesses: []uint32{0}},
		},
		Processes: []configmodel.OsProcess{proc},
	}
}

func TestManagerGroupLifecycle(t *testing.T) {
	spawner := newFakeSpawner()
	waiter := &fakeWaiter{pids: spawner.exits}
	m := New(spawner, waiter, 2, 8, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	defer func() { cancel(); m.Shutdown(ctx) }()

	group := singleProcessGroup("G")
	g := m.AddGroup(group)
	require.NotNil(t, g)

	done := make(chan graph.ResponseCode, 1)
	m.RequestSetState(group.Name, uuid.New(), idhash.Of("Run"), func(code graph.ResponseCode, execErr uint32) {
		done <- code
	})
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.ReportRunning(0)
	}()

	select {
	case code := <-done:
		assert.Equal(t, graph.SetStateSuccess, code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	assert.Equal(t, configmodel.StateRunning, g.Snapshot()[0])
}

func TestManagerDedupsRepeatedRequestID(t *testing.T) {
	spawner := newFakeSpawner()
	waiter := &fakeWaiter{pids: spawner.exits}
	m := New(spawner, waiter, 2, 8, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	defer func() { cancel(); m.Shutdown(ctx) }()

	group := singleProcessGroup("G2")
	g := m.AddGroup(group)

	reqID := uuid.New()
	var calls int32
	var wg sync.WaitGroup
	wg.Add(1)
	m.RequestSetState(group.Name, reqID, idhash.Of("Run"), func(code graph.ResponseCode, execErr uint32) {
		atomic.AddInt32(&calls, 1)
		wg.Done()
	})
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.ReportRunning(0)
	}()
	wg.Wait()

	// Redelivery of the same request_id must not reach the graph a second
	// time; respond is simply never invoked for it.
	m.RequestSetState(group.Name, reqID, idhash.Of("Run"), func(code graph.ResponseCode, execErr uint32) {
		atomic.AddInt32(&calls, 1)
	})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestManagerUnknownGroupIsInvalidArguments(t *testing.T) {
	spawner := newFakeSpawner()
	waiter := &fakeWaiter{pids: spawner.exits}
	m := New(spawner, waiter, 1, 4, 50*time.Millisecond, nil)

	var got graph.ResponseCode
	m.RequestSetState(idhash.Of("NoSuchGroup"), uuid.New(), idhash.Of("Run"), func(code graph.ResponseCode, execErr uint32) {
		got = code
	})
	assert.Equal(t, graph.SetStateInvalidArguments, got)
}
