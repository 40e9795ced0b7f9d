// Package idhash implements the IdentifierHash fingerprint used throughout
// the configuration model and wire records to refer to processes, process
// groups and states without carrying their textual paths at runtime.
package idhash

import "github.com/cespare/xxhash/v2"

// Hash is the opaque u64 fingerprint of a textual identifier. Equality and
// ordering derive entirely from the underlying hash; two identifiers that
// hash equal are considered the same identifier for every purpose in this
// module.
type Hash uint64

// Zero is the all-zero Hash value, used as an explicit "unset" sentinel
// in configuration records that predate dependency resolution.
const Zero Hash = 0

// Of computes the IdentifierHash of a textual identifier (process path,
// process-group path, or state path).
func Of(identifier string) Hash {
	return Hash(xxhash.Sum64String(identifier))
}

// Off and Recovery are the two well-known pseudo-state identifiers every
// process group carries regardless of its configured states (orig §3).
var (
	Off      = Of("Off")
	Recovery = Of("Recovery")
)

func (h Hash) String() string {
	return formatHex(uint64(h))
}

func formatHex(v uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 18)
	buf[0], buf[1] = '0', 'x'
	for i := 0; i < 16; i++ {
		shift := uint(60 - 4*i)
		buf[2+i] = hexDigits[(v>>shift)&0xf]
	}
	return string(buf)
}
