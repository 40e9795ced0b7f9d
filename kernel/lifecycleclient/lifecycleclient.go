// Package lifecycleclient implements the small library linked into every
// supervised process (orig §2.16, §6): it maps the per-process Lifecycle
// sync region LM hands it at spawn on a fixed file descriptor, posts
// kRunning exactly once, and — for state-manager processes — exposes the
// Control-Client id stored in that same mapping (ControlClientID).
//
// Grounded on kernel/ring's in-place mmap'd header idiom (atomic
// "initialized" flag, fixed-offset fields addressed via unsafe.Pointer)
// rather than introducing a second shared-memory primitive: the sync
// region is the same shape of thing as a ring header, just without cell
// storage.
package lifecycleclient

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/qorix-group/inc-lifecycle-sub000/kernel/configmodel"
)

// SyncFD is the fixed file descriptor LM passes every spawned process
// carrying its Lifecycle sync region (orig §6: "fixed file descriptor
// sync_fd = 3").
const SyncFD = 3

// regionSize: pid(4) + commsType(4) + sent(4, atomic "kRunning posted"
// flag) + clientID(16, only meaningful when commsType == ControlClient).
const regionSize = 4 + 4 + 4 + 16

// Client is one supervised process's handle onto its Lifecycle sync
// region.
type Client struct {
	data []byte
	once sync.Once
}

// Open maps the sync region from fd (pass lifecycleclient.SyncFD in
// production; tests may pass any *os.File sized regionSize so the
// metadata the test wrote is visible).
func Open(f *os.File) (*Client, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, regionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("lifecycleclient: mmap fd %d: %w", f.Fd(), err)
	}
	return &Client{data: data}, nil
}

// PID returns the pid LM recorded for this process.
func (c *Client) PID() int32 {
	return int32(binary.LittleEndian.Uint32(c.data[0:4]))
}

// CommsType returns how this process is expected to report back.
func (c *Client) CommsType() configmodel.CommsType {
	return configmodel.CommsType(binary.LittleEndian.Uint32(c.data[4:8]))
}

// ControlClientID returns the uuid a ControlClient-comms process should
// present to kernel/controlclient.Handler.Connect's channel to correlate
// with the one LM is expecting to hear from. Only meaningful when
// CommsType() == configmodel.ControlClient.
func (c *Client) ControlClientID() uuid.UUID {
	var id uuid.UUID
	copy(id[:], c.data[12:28])
	return id
}

// ReportRunning posts kRunning exactly once (orig §6: "posts a single
// kRunning via the send semaphore"); subsequent calls are no-ops.
func (c *Client) ReportRunning() {
	c.once.Do(func() {
		atomic.StoreUint32((*uint32)(unsafe.Pointer(&c.data[8])), 1)
	})
}

// HasReportedRunning reports whether ReportRunning has posted, for LM's
// own test harnesses that drive this library in-process rather than
// across a real fork/exec boundary.
func (c *Client) HasReportedRunning() bool {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&c.data[8]))) != 0
}

// Close unmaps the sync region. It does not close the underlying fd; the
// process's normal fd-3 lifetime owns that.
func (c *Client) Close() error {
	return unix.Munmap(c.data)
}

// WriteMetadata is LM's side: called right after spawn, before the child
// observes fd 3, to stamp pid/comms-type/client-id into the region a
// freshly-created sync file backs.
func WriteMetadata(f *os.File, pid int32, comms configmodel.CommsType, clientID uuid.UUID) error {
	if err := f.Truncate(regionSize); err != nil {
		return fmt.Errorf("lifecycleclient: truncate: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, regionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("lifecycleclient: mmap for write: %w", err)
	}
	defer unix.Munmap(data)
	binary.LittleEndian.PutUint32(data[0:4], uint32(pid))
	binary.LittleEndian.PutUint32(data[4:8], uint32(comms))
	copy(data[12:28], clientID[:])
	return nil
}
