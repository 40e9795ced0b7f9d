// Command hmd is the Health Monitor daemon (orig §1, §4.3–§4.8, §5): it
// loads its own supervision configuration independently of lmd, mirrors
// every configured process group's process state over kernel/psnotify,
// connects each application's checkpoint ring, and drives the periodic
// Monitor -> elementary -> Local -> Global -> Recovery tick chain under
// kernel/healthmonitor.Orchestrator.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configload"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/healthmonitor"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/metrics"
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
			newProcessStateReader,
			newRecoveryRequester,
			newOrchestrator,
		),
		fx.Invoke(registerGroups, serveMetrics),
	).Run()
}

type daemonConfig struct {
	Machine *configmodel.MachineConfig
	Groups  []*configmodel.ProcessGroup
}

func configDir() string {
	dir := os.Getenv("HM_CONFIG_DIR")
	if dir == "" {
		dir = "/etc/lmhm/hm"
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

// checkpointCellSize and checkpointRingPath mirror cmd/lmd's ring-naming
// convention exactly: hmd only ever connects to rings lmd already created.
const checkpointCellSize = 12

func checkpointRingPath(group, process idhash.Hash) string {
	return filepath.Join(runtimeDir(), "checkpoints", group.String()+"_"+process.String()+".ring")
}

// connectCheckpointRings connects to every MonitorConfig-named ring for
// one process group, keyed by process id as kernel/healthmonitor.NewGroupMonitor
// expects. Capacity must be derived exactly as cmd/lmd derives it when it
// creates these rings, since Connect maps a fixed headerSize+cellSize*capacity
// region rather than reading capacity back from the file.
func connectCheckpointRings(pg *configmodel.ProcessGroup, machine *configmodel.MachineConfig) (map[idhash.Hash]*ring.Ring, error) {
	out := make(map[idhash.Hash]*ring.Ring, len(pg.Monitors))
	for _, mc := range pg.Monitors {
		capacity := int(mc.RingSize)
		if capacity <= 0 {
			capacity = int(machine.CheckpointRingCap)
		}
		if capacity <= 0 {
			capacity = 256
		}
		r, err := ring.Connect(checkpointRingPath(pg.Name, mc.Process), checkpointCellSize, capacity)
		if err != nil {
			return nil, fmt.Errorf("checkpoint ring for %s/%s: %w", pg.Name, mc.Process, err)
		}
		out[mc.Process] = r
	}
	return out, nil
}

func loadConfig() (daemonConfig, error) {
	dir := configDir()
	mc, err := configload.LoadMachineConfig(filepath.Join(dir, "machine.bin"))
	if err != nil {
		return daemonConfig{}, fmt.Errorf("hmd: load machine config: %w", err)
	}
	groups, err := configload.LoadProcessGroups(filepath.Join(dir, "groups.bin"))
	if err != nil {
		return daemonConfig{}, fmt.Errorf("hmd: load process groups: %w", err)
	}
	return daemonConfig{Machine: mc, Groups: groups}, nil
}

func newLogger() *obslog.Logger { return obslog.New("hmd") }

func newMetricsRegistry() *metrics.Registry {
	return metrics.NewRegistry(prometheus.DefaultRegisterer)
}

// newProcessStateReader connects to the shared process-state ring lmd
// writes onto; capacity must match the writer side exactly, so it is also
// sourced from the machine config both daemons load independently.
func newProcessStateReader(cfg daemonConfig) (*psnotify.Reader, error) {
	capacity := int(cfg.Machine.ProcessStateRingCap)
	if capacity <= 0 {
		capacity = 4096
	}
	r, err := ring.Connect(filepath.Join(runtimeDir(), "psnotify.ring"), psnotify.CellSize, capacity)
	if err != nil {
		return nil, fmt.Errorf("hmd: connect process-state ring: %w", err)
	}
	return psnotify.NewReader(r), nil
}

// newRecoveryRequester connects to the ring lmd drains recovery-notifier
// SetState requests from.
func newRecoveryRequester() (*recoveryrelay.Requester, error) {
	r, err := ring.Connect(filepath.Join(runtimeDir(), "recovery.ring"), recoveryrelay.CellSize, 256)
	if err != nil {
		return nil, fmt.Errorf("hmd: connect recovery ring: %w", err)
	}
	return recoveryrelay.NewRequester(r), nil
}

func newOrchestrator(cfg daemonConfig, mreg *metrics.Registry, log *obslog.Logger) *healthmonitor.Orchestrator {
	cycle := cfg.Machine.CycleTime
	return healthmonitor.New(cycle, mreg, nil, log.Named("orchestrator"))
}

// registerGroups builds one ProcessStateMirror and one checkpoint-ring set
// per configured group, registers each with the Orchestrator, attaches the
// mirrors to the shared process-state reader, and starts the tick loop and
// the reader's own drain loop for the daemon's lifetime.
func registerGroups(
	lc fx.Lifecycle,
	orch *healthmonitor.Orchestrator,
	reader *psnotify.Reader,
	requester *recoveryrelay.Requester,
	cfg daemonConfig,
	log *obslog.Logger,
) error {
	for _, pg := range cfg.Groups {
		mirror := healthmonitor.NewProcessStateMirror(pg)
		mirror.Attach(reader)

		connected, err := connectCheckpointRings(pg, cfg.Machine)
		if err != nil {
			return fmt.Errorf("hmd: group %s: %w", pg.Name, err)
		}

		orch.AddGroup(pg, mirror, connected, requester)
		log.Info("registered process group", obslog.String("group", pg.Name.String()))
	}

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go orch.Run(ctx)
			go drainProcessState(ctx, reader, cfg.Machine.CycleTime)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
	return nil
}

func drainProcessState(ctx context.Context, r *psnotify.Reader, cycle time.Duration) {
	if cycle <= 0 {
		cycle = 10 * time.Millisecond
	}
	ticker := time.NewTicker(cycle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Drain()
		case <-ctx.Done():
			return
		}
	}
}

func serveMetrics(lc fx.Lifecycle, log *obslog.Logger) {
	addr := os.Getenv("LMHM_METRICS_ADDR")
	if addr == "" {
		addr = ":9101"
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
