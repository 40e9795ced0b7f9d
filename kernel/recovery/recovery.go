// Package recovery implements the Recovery notifier of orig §4.8: a small
// state machine {Idle, Sending, WaitingForResponse, Timeout} that turns a
// Global supervision's Stopped event into a control-plane request back to
// the orchestrator, with a per-request timeout. Grounded on
// kernel/threads/supervisor/protocol.go's AckManager/PendingAck
// retry-timeout bookkeeping (pendingAck + deadline + timeout-counter),
// generalised from a message ack to a recovery-state-change request.
package recovery

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/supervision"
	"github.com/sony/gobreaker"
)

// State is the recovery notifier's own lifecycle (orig §4.8), distinct from
// the supervision statuses.
type State int

const (
	Idle State = iota
	Sending
	WaitingForResponse
	Timeout
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case WaitingForResponse:
		return "waiting_for_response"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Config is a RecoveryNotification configuration (orig §4.8).
type Config struct {
	ConfigName       string
	ServiceInstance  string
	PgMetaModelID    idhash.Hash
	ProcessGroup     idhash.Hash
	ProcessGroupState idhash.Hash
	Timeout          time.Duration
}

// Requester issues the recovery request towards LM; cmd/hmd uses
// kernel/recoveryrelay.Requester, which forwards it over a ring.
type Requester interface {
	RequestStateChange(group, state idhash.Hash) error
}

// Notifier drives one RecoveryNotification's state machine. A Notifier
// constructed without a Config (Dummy) collapses to the "fire watchdog"
// notifier: Send drives it directly to Timeout (orig §4.8).
type Notifier struct {
	cfg       Config
	dummy     bool
	requester Requester
	clock     clock.Clock
	breaker   *gobreaker.CircuitBreaker[any]

	state   State
	startTS time.Time
	errInfo supervision.SupervisionErrorInfo
}

// New constructs a configured recovery notifier.
func New(cfg Config, requester Requester, clk clock.Clock) *Notifier {
	if clk == nil {
		clk = clock.New()
	}
	n := &Notifier{cfg: cfg, requester: requester, clock: clk, state: Idle}
	n.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "recovery-" + cfg.ConfigName,
		Timeout: cfg.Timeout * 10,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return n
}

// NewDummy constructs the unconfigured "fire watchdog" notifier.
func NewDummy(clk clock.Clock) *Notifier {
	if clk == nil {
		clk = clock.New()
	}
	return &Notifier{dummy: true, clock: clk, state: Idle}
}

func (n *Notifier) State() State { return n.state }

// OnNotify implements observer.Observer[SupervisionErrorInfo], so a
// Notifier can be attached directly to a Global supervision's
// recovery-notifier registry (orig §4.7's "dispatches it to every
// registered recovery notifier").
func (n *Notifier) OnNotify(info supervision.SupervisionErrorInfo) {
	n.Send(info)
}

// Send implements Idle -> Sending on a Stopped notification from Global.
func (n *Notifier) Send(info supervision.SupervisionErrorInfo) {
	n.errInfo = info
	if n.dummy {
		n.state = Timeout
		return
	}
	n.state = Sending
}

// CyclicTrigger implements Sending -> WaitingForResponse: parses
// PgMetaModelID into (process_group, process_group_state) — already
// resolved at Config construction time here — issues the recovery request,
// and records the start timestamp.
func (n *Notifier) CyclicTrigger() {
	if n.state != Sending {
		n.checkTimeout()
		return
	}
	if n.breaker != nil && n.breaker.State() == gobreaker.StateOpen {
		// An open breaker is itself a stronger signal than one more
		// timeout (SPEC_FULL §4 addition).
		n.state = Timeout
		return
	}
	_, err := n.breaker.Execute(func() (any, error) {
		return nil, n.requester.RequestStateChange(n.cfg.ProcessGroup, n.cfg.ProcessGroupState)
	})
	if err != nil {
		n.state = Timeout
		return
	}
	n.startTS = n.clock.Now()
	n.state = WaitingForResponse
}

// OnResponse implements WaitingForResponse -> Idle on a successful
// response, or -> Timeout on an error response.
func (n *Notifier) OnResponse(ok bool) {
	if n.state != WaitingForResponse {
		return
	}
	if ok {
		n.state = Idle
	} else {
		n.state = Timeout
	}
}

func (n *Notifier) checkTimeout() {
	if n.state != WaitingForResponse {
		return
	}
	if n.clock.Now().Sub(n.startTS) > n.cfg.Timeout {
		n.state = Timeout
	}
}

// Poll is called once per HM tick; it advances the timeout check for a
// notifier currently WaitingForResponse.
func (n *Notifier) Poll() {
	n.checkTimeout()
}

// IsFinalTimeoutReached reports whether this notifier requires the
// watchdog reaction (orig §4.8).
func (n *Notifier) IsFinalTimeoutReached() bool {
	return n.state == Timeout
}

func (n *Notifier) String() string {
	return fmt.Sprintf("recovery.Notifier{name=%s, state=%s}", n.cfg.ConfigName, n.state)
}
