package ring

import "unsafe"

// unsafePointer casts a byte-slice element to an unsafe.Pointer so the
// fixed-offset header fields (cursors, flags) can be addressed atomically
// in place, matching the in-place shared-memory construction discipline
// described in orig §9 ("cells, ring headers ... constructed in mapped
// memory").
func unsafePointer(p *byte) unsafe.Pointer {
	return unsafe.Pointer(p)
}
