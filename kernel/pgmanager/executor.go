package pgmanager

import (
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/graph"
)

// ProcessSpawner abstracts the OS-level half of a node action: fork/exec
// with the configured security/scheduling/rlimit parameters, and signal
// delivery. The core never interposes on syscalls itself (orig §1
// Non-goals); a platform package supplies the concrete implementation.
type ProcessSpawner interface {
	Spawn(cfg *configmodel.OsalConfig) (pid int, err error)
	SendTerminate(pid int) error
	ForceKill(pid int) error
}

// executorAdapter implements graph.Executor atop a ProcessSpawner,
// registering every spawned pid with the Reaper so its eventual exit
// routes back to the right node.
type executorAdapter struct {
	spawner ProcessSpawner
	reaper  *Reaper
	g       *graph.Graph
}

func newExecutorAdapter(spawner ProcessSpawner, reaper *Reaper) *executorAdapter {
	return &executorAdapter{spawner: spawner, reaper: reaper}
}

func (e *executorAdapter) Spawn(n *graph.Node) error {
	pid, err := e.spawner.Spawn(&n.Config.Startup)
	if err != nil {
		return err
	}
	n.SetPID(pid)
	e.reaper.Register(pid, e.g, n.Index)
	return nil
}

func (e *executorAdapter) RequestTerminate(n *graph.Node) error {
	return e.spawner.SendTerminate(n.PID())
}

func (e *executorAdapter) ForceTerminate(n *graph.Node) error {
	return e.spawner.ForceKill(n.PID())
}
