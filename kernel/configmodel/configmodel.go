// Package configmodel is the in-memory, read-only-after-load configuration
// graph described in orig §3: ProcessGroup -> ProcessGroupState -> OsProcess
// -> Dependency, addressed throughout the rest of the module by
// idhash.Hash.
package configmodel

import (
	"fmt"
	"time"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/xerrors"
)

// ProcessState is the lifecycle state of a single OS process, as reported
// by the Lifecycle-Client channel and mirrored in ProcessInfoNode.
type ProcessState int

const (
	StateIdle ProcessState = iota
	StateStarting
	StateRunning
	StateTerminating
	StateTerminated
	StateOff
)

func (s ProcessState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	case StateOff:
		return "off"
	default:
		return "unknown"
	}
}

// CommsType classifies how a process reports back to LM/HM (orig §3).
type CommsType int

const (
	NoComms CommsType = iota
	Reporting
	ControlClient
	LaunchManager
)

// OsalConfig carries the OS-level spawn parameters for one process.
type OsalConfig struct {
	ExecutablePath string
	Argv           []string // <= 20
	Envp           []string // <= 100
	UID            uint32
	GID            uint32
	SupplementaryGIDs []uint32
	CPUAffinityMask   uint64
	SchedPolicy       int
	SchedPriority     int
	RLimits           map[string]uint64
	Comms             CommsType
}

// PgManagerConfig carries the per-process orchestration parameters.
type PgManagerConfig struct {
	IsSelfTerminating   bool
	StartupTimeout      time.Duration
	TerminationTimeout  time.Duration
	RestartAttempts     uint32
	ExecutionErrorCode  uint32
}

// Dependency is an edge in the dependency graph (orig §3). TargetIndex
// indexes into the enclosing ProcessGroup.Processes.
type Dependency struct {
	Trigger       ProcessState // StateRunning or StateTerminated
	TargetProcess idhash.Hash
	TargetIndex   uint32
}

// OsProcess is the immutable per-process configuration record.
type OsProcess struct {
	ProcessID    idhash.Hash
	UniqueIndex  uint32
	Startup      OsalConfig
	Manager      PgManagerConfig
	Dependencies []Dependency
}

// ProcessGroupState names a subset of a group's processes that should be
// active simultaneously. ActiveProcesses indexes into ProcessGroup.Processes.
// The Off state has an empty ActiveProcesses.
type ProcessGroupState struct {
	Name            idhash.Hash
	ActiveProcesses []uint32
}

// ProcessGroup is the top-level configuration unit.
type ProcessGroup struct {
	Name            idhash.Hash
	SoftwareCluster idhash.Hash
	OffState        idhash.Hash
	RecoveryState   idhash.Hash
	States          []ProcessGroupState
	Processes       []OsProcess

	// Monitor interfaces and supervision definitions (orig §3, §4.3–4.8).
	// Populated only for groups a Health Monitor config carries; a
	// Launch-Manager-only deployment may load process groups with these
	// left at their zero value.
	Monitors  []MonitorConfig
	Alives    []AliveSupervisionConfig
	Deadlines []DeadlineSupervisionConfig
	Logicals  []LogicalSupervisionConfig
	Locals    []LocalSupervisionConfig
	Global    GlobalSupervisionConfig
	Recovery  RecoverySupervisionConfig
}

// StateByName looks up a configured state by its IdentifierHash.
func (pg *ProcessGroup) StateByName(name idhash.Hash) (*ProcessGroupState, bool) {
	for i := range pg.States {
		if pg.States[i].Name == name {
			return &pg.States[i], true
		}
	}
	return nil, false
}

// ProcessByIndex returns the process at the given configured index.
func (pg *ProcessGroup) ProcessByIndex(idx uint32) (*OsProcess, bool) {
	if int(idx) >= len(pg.Processes) {
		return nil, false
	}
	return &pg.Processes[idx], true
}

// Validate checks the invariants named in orig §3: every active_processes
// index resolves, off_state/recovery_state resolve to a configured state or
// to the well-known Off/Recovery hashes, and every dependency target index
// resolves within bounds.
func (pg *ProcessGroup) Validate() error {
	n := len(pg.Processes)
	for _, st := range pg.States {
		for _, idx := range st.ActiveProcesses {
			if int(idx) >= n {
				return xerrors.New(xerrors.ErrConfiguration, uint64(pg.Name),
					fmt.Sprintf("state %v references out-of-range process index %d", st.Name, idx))
			}
		}
	}
	if pg.OffState != idhash.Off {
		if _, ok := pg.StateByName(pg.OffState); !ok {
			return xerrors.New(xerrors.ErrConfiguration, uint64(pg.Name), "off_state does not resolve")
		}
	}
	if pg.RecoveryState != idhash.Recovery {
		if _, ok := pg.StateByName(pg.RecoveryState); !ok {
			return xerrors.New(xerrors.ErrConfiguration, uint64(pg.Name), "recovery_state does not resolve")
		}
	}
	for i := range pg.Processes {
		p := &pg.Processes[i]
		for _, dep := range p.Dependencies {
			if int(dep.TargetIndex) >= n {
				return xerrors.New(xerrors.ErrConfiguration, uint64(p.ProcessID),
					fmt.Sprintf("dependency references out-of-range process index %d", dep.TargetIndex))
			}
			if dep.Trigger != StateRunning && dep.Trigger != StateTerminated {
				return xerrors.New(xerrors.ErrConfiguration, uint64(p.ProcessID), "dependency trigger must be Running or Terminated")
			}
		}
		if len(p.Startup.Argv) > 20 {
			return xerrors.New(xerrors.ErrConfiguration, uint64(p.ProcessID), "argv exceeds 20 entries")
		}
		if len(p.Startup.Envp) > 100 {
			return xerrors.New(xerrors.ErrConfiguration, uint64(p.ProcessID), "envp exceeds 100 entries")
		}
	}
	return pg.validateSupervision()
}

// ActiveSet returns the set of process indices active in the named state,
// as a map for O(1) membership tests.
func (pg *ProcessGroup) ActiveSet(state idhash.Hash) (map[uint32]bool, bool) {
	if state == idhash.Off {
		return map[uint32]bool{}, true
	}
	st, ok := pg.StateByName(state)
	if !ok {
		return nil, false
	}
	set := make(map[uint32]bool, len(st.ActiveProcesses))
	for _, idx := range st.ActiveProcesses {
		set[idx] = true
	}
	return set, true
}

// MachineConfig is the other flat binary file (orig §6): machine-level
// settings shared by every process group.
type MachineConfig struct {
	WatchdogDevicePath string
	CycleTime          time.Duration
	CheckpointRingCap  uint32
	ProcessStateRingCap uint32
}
