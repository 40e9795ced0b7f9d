// Command lmd is the Launch Manager daemon (orig §1, §4.9–§4.11): it loads
// the machine and process-group configuration, builds one kernel/graph.Graph
// per process group under kernel/pgmanager.Manager, serves Control-Client
// requests, and relays process-state transitions to the Health Monitor
// daemon over kernel/psnotify.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
	"github.com/qorix-group/inc-lifecycle-sub000/internal/osal"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configload"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/controlclient"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/graph"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/metrics"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/pgmanager"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/psnotify"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/recoveryrelay"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/ring"
)

func main() {
	fx.New(
		fx.Provide(
			loadConfig,
			newLogger,
			newMetricsRegistry,
			newSpawner,
			newWaiter,
			newManager,
			newHandler,
			newProcessStateRing,
			newRecoveryRing,
		),
		fx.Invoke(registerGroups, serveMetrics),
	).Run()
}

// daemonConfig is the loaded, immutable configuration for this daemon's
// lifetime (orig §6: "Configuration is loaded once at daemon start; it is
// immutable thereafter").
type daemonConfig struct {
	Machine *configmodel.MachineConfig
	Groups  []*configmodel.ProcessGroup
}

func configDir() string {
	dir := os.Getenv("LM_CONFIG_DIR")
	if dir == "" {
		dir = "/etc/lmhm/lm"
	}
	return dir
}

func runtimeDir() string {
	dir := os.Getenv("LMHM_RUNTIME_DIR")
	if dir == "" {
		dir = "/run/lmhm"
	}
	return dir
}

func loadConfig() (daemonConfig, error) {
	dir := configDir()
	mc, err := configload.LoadMachineConfig(filepath.Join(dir, "machine.bin"))
	if err != nil {
		return daemonConfig{}, fmt.Errorf("lmd: load machine config: %w", err)
	}
	groups, err := configload.LoadProcessGroups(filepath.Join(dir, "groups.bin"))
	if err != nil {
		return daemonConfig{}, fmt.Errorf("lmd: load process groups: %w", err)
	}
	return daemonConfig{Machine: mc, Groups: groups}, nil
}

func newLogger() *obslog.Logger { return obslog.New("lmd") }

func newMetricsRegistry() *metrics.Registry {
	return metrics.NewRegistry(prometheus.DefaultRegisterer)
}

func newSpawner(log *obslog.Logger) *osal.Spawner {
	dir := filepath.Join(runtimeDir(), "sync")
	os.MkdirAll(dir, 0o755)
	return osal.NewSpawner(dir, log.Named("osal"))
}

func newWaiter(s *osal.Spawner) *osal.Waiter {
	w := osal.NewWaiter(s)
	s.SetWaiter(w)
	return w
}

func newManager(s *osal.Spawner, w *osal.Waiter, log *obslog.Logger) *pgmanager.Manager {
	return pgmanager.New(s, w, 0, 0, 0, log.Named("pgmanager"))
}

func newHandler(m *pgmanager.Manager, log *obslog.Logger) *controlclient.Handler {
	h := controlclient.NewHandler(m, log.Named("controlclient"))
	m.SetAsyncEventHandler(func(group idhash.Hash, execErr uint32, onEnter bool) {
		kind := controlclient.EventFailedUnexpectedTermination
		if onEnter {
			kind = controlclient.EventFailedUnexpectedTerminationOnEnter
		}
		h.BroadcastEvent(controlclient.Event{Kind: kind, Group: group, ExecutionError: execErr})
	})
	return h
}

// newProcessStateRing creates the psnotify ring LM writes every monitored
// process's transitions onto; HM connects to the same path.
func newProcessStateRing(cfg daemonConfig) (*ring.Ring, error) {
	capacity := int(cfg.Machine.ProcessStateRingCap)
	if capacity <= 0 {
		capacity = 4096
	}
	os.MkdirAll(runtimeDir(), 0o755)
	return ring.Create(filepath.Join(runtimeDir(), "psnotify.ring"), psnotify.CellSize, capacity)
}

// newRecoveryRing creates the ring HM's recovery notifiers enqueue SetState
// requests onto; LM drains it on drainRecoveryRequests' fixed 20ms tick.
func newRecoveryRing() (*ring.Ring, error) {
	os.MkdirAll(runtimeDir(), 0o755)
	return ring.Create(filepath.Join(runtimeDir(), "recovery.ring"), recoveryrelay.CellSize, 256)
}

// registerGroups builds every configured process group's Graph, starts the
// worker pool/reaper/Control-Client handler, and relays process-state and
// recovery traffic across the psnotify/recoveryrelay rings for the
// lifetime of the daemon.
func registerGroups(
	lc fx.Lifecycle,
	m *pgmanager.Manager,
	h *controlclient.Handler,
	cfg daemonConfig,
	psRing *ring.Ring,
	recoveryRing *ring.Ring,
	log *obslog.Logger,
) {
	graphs := make(map[idhash.Hash]*graph.Graph, len(cfg.Groups))
	for _, pg := range cfg.Groups {
		graphs[pg.Name] = m.AddGroup(pg)
	}

	if err := createCheckpointRings(cfg); err != nil {
		log.Error("failed to create checkpoint rings", obslog.Err(err))
	}

	writer := psnotify.NewWriter(psRing)
	drainer := recoveryrelay.NewDrainer(recoveryRing)

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			m.Start(ctx)
			go h.Run(ctx)
			go relayProcessState(ctx, cfg, graphs, writer, log)
			go drainRecoveryRequests(ctx, h, drainer)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			if cancel != nil {
				cancel()
			}
			return m.Shutdown(stopCtx)
		},
	})
}

// checkpointCellSize matches kernel/checkpoint's inline (timestamp,
// checkpoint_id) wire record: int64 + uint32, as kernel/checkpoint/monitor_test.go
// creates its rings with.
const checkpointCellSize = 12

// checkpointRingPath is the deterministic path both lmd (ring owner) and
// hmd (ring.Connect reader) derive a process's checkpoint ring from.
func checkpointRingPath(group, process idhash.Hash) string {
	return filepath.Join(runtimeDir(), "checkpoints", group.String()+"_"+process.String()+".ring")
}

// createCheckpointRings creates the per-process checkpoint ring every
// configured application writes its Alive/Deadline/Logical checkpoints
// onto (orig §4.3); the owning application process is out of this
// daemon's scope and is expected to mmap the same path.
func createCheckpointRings(cfg daemonConfig) error {
	os.MkdirAll(filepath.Join(runtimeDir(), "checkpoints"), 0o755)
	for _, pg := range cfg.Groups {
		for _, mc := range pg.Monitors {
			capacity := int(mc.RingSize)
			if capacity <= 0 {
				capacity = int(cfg.Machine.CheckpointRingCap)
			}
			if capacity <= 0 {
				capacity = 256
			}
			if _, err := ring.Create(checkpointRingPath(pg.Name, mc.Process), checkpointCellSize, capacity); err != nil {
				return fmt.Errorf("checkpoint ring for %s/%s: %w", pg.Name, mc.Process, err)
			}
		}
	}
	return nil
}

// relayProcessState polls every configured group's Graph once per cycle
// (orig §4.12's "LM enqueues on every ProcessState transition of a
// reporting process"; Graph exposes no per-transition hook, so a poll-diff
// at the same cadence as the HM tick is the closest analogue) and writes a
// PosixProcess record for every process whose state or process-group state
// changed, restricted to CommsType in {Reporting, ControlClient}.
func relayProcessState(ctx context.Context, cfg daemonConfig, graphs map[idhash.Hash]*graph.Graph, w *psnotify.Writer, log *obslog.Logger) {
	cycle := cfg.Machine.CycleTime
	if cycle <= 0 {
		cycle = 10 * time.Millisecond
	}
	ticker := time.NewTicker(cycle)
	defer ticker.Stop()

	type lastSeen struct {
		state   configmodel.ProcessState
		pgState idhash.Hash
		execErr uint32
	}
	seen := make(map[idhash.Hash]lastSeen)

	for {
		select {
		case <-ticker.C:
			now := time.Now().UnixNano()
			for _, pg := range cfg.Groups {
				g, ok := graphs[pg.Name]
				if !ok {
					continue
				}
				snapshot := g.Snapshot()
				pgState := g.CurrentState()
				execErr, _ := g.LastExecutionError()
				for i, proc := range pg.Processes {
					if proc.Startup.Comms != configmodel.Reporting && proc.Startup.Comms != configmodel.ControlClient {
						continue
					}
					if i >= len(snapshot) {
						continue
					}
					cur := lastSeen{state: snapshot[i], pgState: pgState, execErr: execErr}
					if prev, ok := seen[proc.ProcessID]; ok && prev == cur {
						continue
					}
					seen[proc.ProcessID] = cur
					w.Notify(psnotify.PosixProcess{
						ID: proc.ProcessID, State: cur.state, PGState: cur.pgState, Timestamp: now, ExecutionError: cur.execErr,
					})
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// drainRecoveryRequests feeds every recovery-notifier SetState request HM
// enqueued since the last drain onto the Handler's same ordered dispatch
// queue a Control-Client SetStateRequest would use (orig §9's single
// nudge-consuming dispatch thread), fire-and-forget.
func drainRecoveryRequests(ctx context.Context, h *controlclient.Handler, d *recoveryrelay.Drainer) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.Drain(func(req recoveryrelay.Request) {
				h.Nudge(controlclient.Request{
					ID:     uuid.New(),
					Opcode: controlclient.OpSetState,
					Group:  req.Group,
					State:  req.State,
				})
			})
		case <-ctx.Done():
			return
		}
	}
}

// serveMetrics exposes the Prometheus registry over HTTP for the lifetime
// of the daemon (orig Non-goals put CLI/daemon entry points out of scope
// for the core; this is the ambient observability surface SPEC_FULL adds).
func serveMetrics(lc fx.Lifecycle, log *obslog.Logger) {
	addr := os.Getenv("LMHM_METRICS_ADDR")
	if addr == "" {
		addr = ":9100"
	}
	srv := &http.Server{Addr: addr, Handler: promhttp.Handler()}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server failed", obslog.Err(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
