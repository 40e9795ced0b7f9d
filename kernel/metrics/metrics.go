// Package metrics exposes the supervision counters the teacher tracked as
// ad-hoc SupervisorStats/QueueStats structs (kernel/threads/supervisor.go,
// kernel/threads/foundation/message_queue.go) as real Prometheus
// collectors instead, so a scrape target can see live process-group and
// job-queue state rather than a value only visible through a getter call.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the set of collectors both daemons register against their
// own prometheus.Registerer. One Registry is shared by every process
// group and the job queue within a daemon.
type Registry struct {
	GraphState        *prometheus.GaugeVec
	NodeState         *prometheus.GaugeVec
	RestartsTotal     *prometheus.CounterVec
	AbortsTotal       *prometheus.CounterVec
	SetStateTotal     *prometheus.CounterVec
	QueueDepth        prometheus.Gauge
	QueueEnqueued     prometheus.Counter
	QueueDropped      prometheus.Counter
	WorkerBusy        prometheus.Gauge
	SupervisionTickNS prometheus.Histogram
}

// NewRegistry builds a Registry and registers every collector against reg.
// Pass prometheus.NewRegistry() in tests to avoid polluting the default
// global registry; production daemons pass prometheus.DefaultRegisterer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		GraphState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lmhm",
			Subsystem: "graph",
			Name:      "state",
			Help:      "Current GraphState of a process group (0=Success,1=InTransition,2=Aborting,3=Cancelled,4=Undefined).",
		}, []string{"group"}),
		NodeState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lmhm",
			Subsystem: "graph",
			Name:      "node_state",
			Help:      "Current per-node lifecycle state within a process group's graph.",
		}, []string{"group", "process"}),
		RestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lmhm",
			Subsystem: "graph",
			Name:      "restarts_total",
			Help:      "Restarts performed after unexpected termination, per process group.",
		}, []string{"group"}),
		AbortsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lmhm",
			Subsystem: "graph",
			Name:      "aborts_total",
			Help:      "Graph aborts, per process group and execution error code.",
		}, []string{"group", "error_code"}),
		SetStateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lmhm",
			Subsystem: "controlclient",
			Name:      "set_state_total",
			Help:      "SetState requests handled, per process group and response code.",
		}, []string{"group", "response"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lmhm",
			Subsystem: "jobqueue",
			Name:      "depth",
			Help:      "Current job queue depth across all worker dispatch.",
		}),
		QueueEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lmhm",
			Subsystem: "jobqueue",
			Name:      "enqueued_total",
			Help:      "Jobs accepted onto the dispatch queue.",
		}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lmhm",
			Subsystem: "jobqueue",
			Name:      "dropped_total",
			Help:      "Jobs dropped because the dispatch queue timed out accepting them.",
		}),
		WorkerBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lmhm",
			Subsystem: "jobqueue",
			Name:      "workers_busy",
			Help:      "Worker goroutines currently executing a spawn/terminate job.",
		}),
		SupervisionTickNS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lmhm",
			Subsystem: "health",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one Health Monitor supervision tick (Alive/Deadline/Logical -> Local -> Global -> Recovery).",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	reg.MustRegister(
		r.GraphState,
		r.NodeState,
		r.RestartsTotal,
		r.AbortsTotal,
		r.SetStateTotal,
		r.QueueDepth,
		r.QueueEnqueued,
		r.QueueDropped,
		r.WorkerBusy,
		r.SupervisionTickNS,
	)
	return r
}

// ObserveGraphState sets group's GraphState gauge to state. The graph does
// not call it itself; the gauge holds the value last passed in.
func (r *Registry) ObserveGraphState(group string, state int) {
	r.GraphState.WithLabelValues(group).Set(float64(state))
}

// ObserveNodeState records one node's current state within group.
func (r *Registry) ObserveNodeState(group, process string, state int) {
	r.NodeState.WithLabelValues(group, process).Set(float64(state))
}

// IncRestart records one node restart after unexpected termination.
func (r *Registry) IncRestart(group string) {
	r.RestartsTotal.WithLabelValues(group).Inc()
}

// IncAbort records one graph abort carrying execErr.
func (r *Registry) IncAbort(group string, execErr uint32) {
	r.AbortsTotal.WithLabelValues(group, formatErrorCode(execErr)).Inc()
}

// IncSetState records one SetState response, keyed by its response code
// name so a scrape can distinguish success from cancellation from failure.
func (r *Registry) IncSetState(group, response string) {
	r.SetStateTotal.WithLabelValues(group, response).Inc()
}

func formatErrorCode(code uint32) string {
	return strconv.FormatUint(uint64(code), 16)
}
