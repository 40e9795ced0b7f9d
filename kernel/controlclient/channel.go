package controlclient

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
)

// Channel is one state-manager client's connection to the handler,
// standing in for the shared-memory ControlClientComms pair of orig §4.11.
// Send blocks the caller "on the per-channel semaphore with no timeout"
// (orig §5) — modelled here as a one-slot buffered done channel the handler
// fills exactly once per request.
type Channel struct {
	id      uuid.UUID
	handler *Handler

	mu     sync.Mutex
	topics map[idhash.Hash]bool

	events chan Event
}

func newChannel(handler *Handler) *Channel {
	return &Channel{
		id:      uuid.New(),
		handler: handler,
		topics:  make(map[idhash.Hash]bool),
		events:  make(chan Event, 16), // best-effort: a slow client misses events rather than stalling LM
	}
}

// ID returns the client id the handler correlates requests and event
// subscriptions by.
func (c *Channel) ID() uuid.UUID { return c.id }

// Subscribe registers interest in async events for group, matching orig
// §6's "Asynchronous events LM->SM" being broadcast per process group
// rather than per requester.
func (c *Channel) Subscribe(group idhash.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[group] = true
}

func (c *Channel) subscribed(group idhash.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[group]
}

// Send issues req and blocks until the handler responds or ctx is
// cancelled. The source has no timeout on this call (LM is assumed live);
// passing context.Background() reproduces that.
func (c *Channel) Send(ctx context.Context, req Request) (Response, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	done := make(chan Response, 1)
	c.handler.enqueue(job{client: c, req: req, respond: func(r Response) { done <- r }})
	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Events returns the channel on which async FailedUnexpectedTermination(OnEnter)
// notifications for subscribed groups arrive.
func (c *Channel) Events() <-chan Event { return c.events }

func (c *Channel) deliver(ev Event) {
	select {
	case c.events <- ev:
	default:
		// event buffer full: dropped, matching the lossy-by-design posture
		// the rest of the module takes toward best-effort notification
		// channels (orig §4.12's process-state ring overflow).
	}
}
