// Package psnotify implements the process-state notifier of orig §4.12: a
// single lossy SPSC ring from LM to HM carrying PosixProcess records. LM
// enqueues on every ProcessState transition of a reporting process; HM's
// reader drains and dispatches by process id. Built directly atop
// kernel/ring, the same way kernel/checkpoint wraps it for checkpoint
// cells (orig §3's "PosixProcess wire record ... fixed size, carried over
// the SPSC ring").
package psnotify

import (
	"encoding/binary"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/ring"
)

// CellSize is the fixed PosixProcess wire-record size: id(8) + state(4) +
// pg_state(8) + timestamp(8) + execution_error(4).
const CellSize = 8 + 4 + 8 + 8 + 4

// PosixProcess is the fixed-size, trivially-copyable wire record of orig §3.
type PosixProcess struct {
	ID             idhash.Hash
	State          configmodel.ProcessState
	PGState        idhash.Hash
	Timestamp      int64 // system clock, nanoseconds
	ExecutionError uint32
}

func encode(p PosixProcess) []byte {
	b := make([]byte, CellSize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(p.ID))
	binary.LittleEndian.PutUint32(b[8:12], uint32(p.State))
	binary.LittleEndian.PutUint64(b[12:20], uint64(p.PGState))
	binary.LittleEndian.PutUint64(b[20:28], uint64(p.Timestamp))
	binary.LittleEndian.PutUint32(b[28:32], p.ExecutionError)
	return b
}

func decode(b []byte) PosixProcess {
	return PosixProcess{
		ID:             idhash.Hash(binary.LittleEndian.Uint64(b[0:8])),
		State:          configmodel.ProcessState(binary.LittleEndian.Uint32(b[8:12])),
		PGState:        idhash.Hash(binary.LittleEndian.Uint64(b[12:20])),
		Timestamp:      int64(binary.LittleEndian.Uint64(b[20:28])),
		ExecutionError: binary.LittleEndian.Uint32(b[28:32]),
	}
}

// Writer is LM's side: it enqueues a PosixProcess record on every
// ProcessState transition of a reporting process. CommsType filtering is
// the caller's responsibility (orig §4.12: "Reporting process").
type Writer struct {
	r *ring.Ring
}

func NewWriter(r *ring.Ring) *Writer { return &Writer{r: r} }

// Notify enqueues one transition. Overflow is silent by design (orig
// §4.12); the caller may inspect r.Overflow() for metrics.
func (w *Writer) Notify(p PosixProcess) {
	w.r.TryEnqueue(encode(p))
}

// Reader is HM's side: it drains the ring and dispatches by process id.
type Reader struct {
	r         *ring.Ring
	observers map[idhash.Hash][]func(PosixProcess)
}

func NewReader(r *ring.Ring) *Reader {
	return &Reader{r: r, observers: make(map[idhash.Hash][]func(PosixProcess))}
}

// Register attaches a callback for a specific process id (orig §4.12:
// "registered ProcessState objects keyed by process_id").
func (r *Reader) Register(id idhash.Hash, cb func(PosixProcess)) {
	r.observers[id] = append(r.observers[id], cb)
}

// Drain dequeues every pending record and dispatches it to registered
// callbacks. Overflow is silent by design; HM supervisions absorb loss via
// their own data-loss reaction.
func (r *Reader) Drain() {
	cell := make([]byte, CellSize)
	for r.r.TryDequeue(cell) {
		p := decode(cell)
		for _, cb := range r.observers[p.ID] {
			cb(p)
		}
	}
}

// Overflow reports whether the ring has ever dropped a record.
func (r *Reader) Overflow() bool { return r.r.Overflow() }
