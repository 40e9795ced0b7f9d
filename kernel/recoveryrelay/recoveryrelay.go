// Package recoveryrelay carries a Health Monitor daemon's recovery-notifier
// SetState requests to the Launch Manager daemon that owns the process
// groups, over the same lossy SPSC ring primitive kernel/psnotify uses for
// process-state fan-out the other direction. spec.md's SPSC-ring module
// names the ring as serving "as a control channel between the lifecycle
// CLI and the LM control daemon" (orig §2.1) — this is that same channel
// role for a second, daemon-side client, grounded directly on
// kernel/psnotify's encode/Writer/Reader shape.
package recoveryrelay

import (
	"encoding/binary"
	"fmt"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/ring"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/xerrors"
)

// CellSize is the fixed wire-record size: group(8) + target state(8).
const CellSize = 8 + 8

// Request is one recovery-notifier SetState request, HM->LM.
type Request struct {
	Group idhash.Hash
	State idhash.Hash
}

func encode(r Request) []byte {
	b := make([]byte, CellSize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(r.Group))
	binary.LittleEndian.PutUint64(b[8:16], uint64(r.State))
	return b
}

func decode(b []byte) Request {
	return Request{
		Group: idhash.Hash(binary.LittleEndian.Uint64(b[0:8])),
		State: idhash.Hash(binary.LittleEndian.Uint64(b[8:16])),
	}
}

// Requester is HM's side: it implements kernel/recovery.Requester by
// enqueuing onto the ring. A full ring drops the request and returns an
// error wrapping xerrors.ErrCommunication; the recovery notifier then moves
// to Timeout and does not resend it.
type Requester struct {
	r *ring.Ring
}

func NewRequester(r *ring.Ring) *Requester { return &Requester{r: r} }

// RequestStateChange satisfies kernel/recovery.Requester.
func (w *Requester) RequestStateChange(group, state idhash.Hash) error {
	if !w.r.TryEnqueue(encode(Request{Group: group, State: state})) {
		return fmt.Errorf("recoveryrelay: ring full: %w", xerrors.ErrCommunication)
	}
	return nil
}

// Drainer is LM's side: it dequeues every pending request once per cycle
// and hands it to apply, typically kernel/pgmanager.Manager.RequestSetState.
type Drainer struct {
	r *ring.Ring
}

func NewDrainer(r *ring.Ring) *Drainer { return &Drainer{r: r} }

// Drain dequeues every pending request and calls apply for each, in order.
func (d *Drainer) Drain(apply func(Request)) {
	cell := make([]byte, CellSize)
	for d.r.TryDequeue(cell) {
		apply(decode(cell))
	}
}
