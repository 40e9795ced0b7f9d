// Package osal is the platform package spec.md's Non-goals reserve for
// process creation ("the specific operating-system primitives used for
// process creation and shared-memory creation"): a concrete
// kernel/pgmanager.ProcessSpawner/OSWaiter pair built on os/exec and
// golang.org/x/sys/unix, so cmd/lmd has something real to drive rather
// than a stub. Best-effort only past UID/GID: a scheduling or affinity
// failure is logged and otherwise ignored, never fatal to the spawn.
package osal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/lifecycleclient"
)

type tracked struct {
	cmd      *exec.Cmd
	syncFile *os.File
}

// Spawner implements kernel/pgmanager.ProcessSpawner over os/exec. Every
// spawned process receives its Lifecycle sync region at
// lifecycleclient.SyncFD, backed by a temp file under dir.
type Spawner struct {
	dir    string
	log    *obslog.Logger
	waiter *Waiter

	mu    sync.Mutex
	byPID map[int]*tracked
}

func NewSpawner(dir string, log *obslog.Logger) *Spawner {
	if log == nil {
		log = obslog.New("osal")
	}
	return &Spawner{dir: dir, log: log, byPID: make(map[int]*tracked)}
}

// SetWaiter wires the Waiter that should be notified of every future
// spawn's exit. Call once, before the Spawner is handed to
// kernel/pgmanager.Manager.
func (s *Spawner) SetWaiter(w *Waiter) { s.waiter = w }

// Spawn forks/execs cfg.ExecutablePath with the configured argv/envp,
// credential, and (best-effort) scheduling parameters, wires fd 3 to a
// fresh Lifecycle sync region, and returns the child's pid.
func (s *Spawner) Spawn(cfg *configmodel.OsalConfig) (int, error) {
	syncFile, err := os.CreateTemp(s.dir, "lc-sync-*")
	if err != nil {
		return 0, fmt.Errorf("osal: create sync region: %w", err)
	}

	cmd := exec.Command(cfg.ExecutablePath, cfg.Argv...)
	cmd.Env = cfg.Envp
	cmd.ExtraFiles = []*os.File{syncFile} // lands at fd 3, lifecycleclient.SyncFD
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:     true,
		Credential: &syscall.Credential{Uid: cfg.UID, Gid: cfg.GID, Groups: cfg.SupplementaryGIDs},
	}

	if err := cmd.Start(); err != nil {
		syncFile.Close()
		os.Remove(syncFile.Name())
		return 0, fmt.Errorf("osal: start %s: %w", cfg.ExecutablePath, err)
	}
	pid := cmd.Process.Pid

	clientID := uuid.New()
	if err := lifecycleclient.WriteMetadata(syncFile, int32(pid), cfg.Comms, clientID); err != nil {
		s.log.Warn("failed to stamp lifecycle sync region", obslog.Int("pid", pid), obslog.Err(err))
	}

	s.applySchedulingBestEffort(pid, cfg)

	s.mu.Lock()
	s.byPID[pid] = &tracked{cmd: cmd, syncFile: syncFile}
	s.mu.Unlock()

	if s.waiter != nil {
		s.waiter.watch(pid, cmd)
	}

	return pid, nil
}

func (s *Spawner) applySchedulingBestEffort(pid int, cfg *configmodel.OsalConfig) {
	if cfg.CPUAffinityMask != 0 {
		var set unix.CPUSet
		for i := 0; i < 64; i++ {
			if cfg.CPUAffinityMask&(1<<uint(i)) != 0 {
				set.Set(i)
			}
		}
		if err := unix.SchedSetaffinity(pid, &set); err != nil {
			s.log.Warn("failed to set CPU affinity", obslog.Int("pid", pid), obslog.Err(err))
		}
	}
	if cfg.SchedPolicy != 0 || cfg.SchedPriority != 0 {
		param := &unix.SchedParam{Priority: int32(cfg.SchedPriority)}
		if err := unix.SchedSetscheduler(pid, cfg.SchedPolicy, param); err != nil {
			s.log.Warn("failed to set scheduling policy", obslog.Int("pid", pid), obslog.Err(err))
		}
	}
	for name, limit := range cfg.RLimits {
		res, ok := rlimitResource(name)
		if !ok {
			continue
		}
		rl := unix.Rlimit{Cur: limit, Max: limit}
		if err := unix.Prlimit(pid, res, &rl, nil); err != nil {
			s.log.Warn("failed to set rlimit", obslog.String("limit", name), obslog.Int("pid", pid), obslog.Err(err))
		}
	}
}

func rlimitResource(name string) (int, bool) {
	switch name {
	case "nofile":
		return unix.RLIMIT_NOFILE, true
	case "nproc":
		return unix.RLIMIT_NPROC, true
	case "as":
		return unix.RLIMIT_AS, true
	case "core":
		return unix.RLIMIT_CORE, true
	default:
		return 0, false
	}
}

// SendTerminate delivers SIGTERM.
func (s *Spawner) SendTerminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// ForceKill delivers SIGKILL.
func (s *Spawner) ForceKill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

// release closes and removes the sync-region temp file for a reaped pid.
func (s *Spawner) release(pid int) {
	s.mu.Lock()
	t, ok := s.byPID[pid]
	delete(s.byPID, pid)
	s.mu.Unlock()
	if !ok {
		return
	}
	t.syncFile.Close()
	os.Remove(t.syncFile.Name())
}

// Waiter implements kernel/pgmanager.OSWaiter over os/exec's own Wait,
// fed by a channel Spawner populates as children are reaped by the Go
// runtime's internal SIGCHLD handling (os/exec already reaps for us; we
// just need to learn about it).
type Waiter struct {
	spawner *Spawner
	exits   chan exitEvent
}

type exitEvent struct {
	pid    int
	status int
}

func NewWaiter(s *Spawner) *Waiter {
	return &Waiter{spawner: s, exits: make(chan exitEvent, 64)}
}

// watch starts a goroutine that blocks on cmd.Wait() for a just-spawned
// process and reports its exit on the Waiter's channel. Spawner.Spawn
// invokes this once per successful spawn via SetWaiter's wiring.
func (w *Waiter) watch(pid int, cmd *exec.Cmd) {
	go func() {
		err := cmd.Wait()
		status := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				status = ws.ExitStatus()
			}
		}
		w.spawner.release(pid)
		w.exits <- exitEvent{pid: pid, status: status}
	}()
}

// Wait blocks until a child exits or ctx is cancelled.
func (w *Waiter) Wait(ctx context.Context) (pid int, status int, err error) {
	select {
	case ev := <-w.exits:
		return ev.pid, ev.status, nil
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
}
