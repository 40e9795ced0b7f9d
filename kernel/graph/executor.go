package graph

// Executor performs the OS-facing half of a node action. The graph never
// touches operating-system primitives itself (orig §1 Non-goals: "does not
// interpose on syscalls"); it only decides ordering and timing. kernel/
// pgmanager supplies the concrete implementation (fork/exec, signals,
// rlimits, scheduling).
type Executor interface {
	// Spawn starts the OS process for n with its configured security,
	// scheduling, and rlimit parameters. It must record n's pid via
	// n.SetPID before returning.
	Spawn(n *Node) error

	// RequestTerminate sends the configured graceful-termination signal.
	RequestTerminate(n *Node) error

	// ForceTerminate is invoked when RequestTerminate's grace period
	// (termination_timeout_ms) elapses without the OS reporting exit.
	ForceTerminate(n *Node) error
}

// SetPID records the OS pid assigned to a freshly-spawned node; called by
// the Executor implementation (kernel/pgmanager) right after Spawn
// succeeds, before it registers the pid with the reaper.
func (n *Node) SetPID(pid int) { n.pid = pid }
