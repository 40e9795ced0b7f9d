package controlclient

import (
	"context"
	"sync"

	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/graph"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/pgmanager"
)

// job is one unit of work for the handler loop: a request plus the
// continuation that delivers its response. respond is nil for nudge-only
// sources (recovery notifier, OS reaper) that issue a SetState without a
// client awaiting a reply.
type job struct {
	client  *Channel
	req     Request
	respond func(Response)
}

// Handler is the single Control-Client handler thread of orig §4.11/§5: it
// fans in every registered Channel's requests plus out-of-band nudges
// (recovery notifier, reaped processes) into one ordered queue and
// dispatches each to the named group's Graph via the Manager.
type Handler struct {
	manager *pgmanager.Manager

	mu       sync.RWMutex
	channels map[string]*Channel // keyed by Channel.ID().String()

	queue chan job
	log   *obslog.Logger
}

// DefaultQueueCapacity bounds how many in-flight requests/nudges the
// handler will buffer before a nudge is dropped (orig §9: "producers never
// block waiting to nudge").
const DefaultQueueCapacity = 256

func NewHandler(manager *pgmanager.Manager, log *obslog.Logger) *Handler {
	if log == nil {
		log = obslog.New("controlclient")
	}
	return &Handler{
		manager:  manager,
		channels: make(map[string]*Channel),
		queue:    make(chan job, DefaultQueueCapacity),
		log:      log,
	}
}

// Connect registers a new client channel.
func (h *Handler) Connect() *Channel {
	ch := newChannel(h)
	h.mu.Lock()
	h.channels[ch.id.String()] = ch
	h.mu.Unlock()
	return ch
}

// Disconnect drops a client channel; no further events are delivered to it.
func (h *Handler) Disconnect(ch *Channel) {
	h.mu.Lock()
	delete(h.channels, ch.id.String())
	h.mu.Unlock()
}

func (h *Handler) enqueue(j job) {
	h.queue <- j
}

// Nudge lets a non-client source (recovery notifier, OS reaper) push a
// fire-and-forget request onto the same queue the client channels feed,
// without blocking the producer (orig §9's "Global nudge semaphore ...
// producers never block"): the request is dropped with a log warning if
// the queue is saturated.
func (h *Handler) Nudge(req Request) {
	select {
	case h.queue <- job{req: req}:
	default:
		h.log.Warn("control-client queue saturated; nudge dropped",
			obslog.String("group", req.Group.String()))
	}
}

// Run is the handler thread: it drains the queue and dispatches each job
// until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) {
	for {
		select {
		case j := <-h.queue:
			h.dispatch(j)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) dispatch(j job) {
	switch j.req.Opcode {
	case OpSetState:
		h.dispatchSetState(j)
	case OpGetInitialMachineState:
		h.dispatchGetInitialMachineState(j)
	case OpGetExecutionError:
		h.dispatchGetExecutionError(j)
	case OpValidateProcessGroupState:
		h.dispatchValidate(j)
	}
}

func (h *Handler) dispatchSetState(j job) {
	h.manager.RequestSetState(j.req.Group, j.req.ID, j.req.State, func(code graph.ResponseCode, execErr uint32) {
		if j.respond == nil {
			return
		}
		j.respond(Response{SetState: translateSetStateCode(code), ExecutionError: execErr})
	})
}

func (h *Handler) dispatchGetInitialMachineState(j job) {
	if j.respond == nil {
		return
	}
	g, ok := h.manager.Graph(j.req.Group)
	if !ok {
		j.respond(Response{InitialMachine: InitialMachineStateFailed})
		return
	}
	if !g.HasReachedState() {
		j.respond(Response{InitialMachine: InitialMachineStateNotSet})
		return
	}
	j.respond(Response{InitialMachine: InitialMachineStateSuccess})
}

func (h *Handler) dispatchGetExecutionError(j job) {
	if j.respond == nil {
		return
	}
	g, ok := h.manager.Graph(j.req.Group)
	if !ok {
		j.respond(Response{ExecutionResult: ExecutionErrorInvalidArguments})
		return
	}
	code, hasErr := g.LastExecutionError()
	if !hasErr {
		j.respond(Response{ExecutionResult: ExecutionErrorRequestFailed})
		return
	}
	j.respond(Response{ExecutionResult: ExecutionErrorRequestSuccess, ExecutionError: code})
}

func (h *Handler) dispatchValidate(j job) {
	if j.respond == nil {
		return
	}
	g, ok := h.manager.Graph(j.req.Group)
	if !ok {
		j.respond(Response{Validate: ValidateProcessGroupStateFailed})
		return
	}
	if !g.HasConfiguredState(j.req.State) {
		j.respond(Response{Validate: ValidateProcessGroupStateFailed})
		return
	}
	j.respond(Response{Validate: ValidateProcessGroupStateSuccess})
}

func translateSetStateCode(code graph.ResponseCode) SetStateCode {
	switch code {
	case graph.SetStateSuccess:
		return SetStateSuccess
	case graph.SetStateFailed:
		return SetStateFailed
	case graph.SetStateCancelled:
		return SetStateCancelled
	case graph.SetStateAlreadyInState:
		return SetStateAlreadyInState
	case graph.SetStateTransitionToSameState:
		return SetStateTransitionToSameState
	default:
		return SetStateInvalidArguments
	}
}

// BroadcastEvent delivers ev to every channel subscribed to ev.Group, for
// the async FailedUnexpectedTermination(OnEnter) events of orig §6. Install
// it via manager.SetAsyncEventHandler(func(group idhash.Hash, execErr
// uint32, onEnter bool) { handler.BroadcastEvent(...) }) before adding
// groups.
func (h *Handler) BroadcastEvent(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.channels {
		if ch.subscribed(ev.Group) {
			ch.deliver(ev)
		}
	}
}

