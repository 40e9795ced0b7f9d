// Package xerrors defines the error-kind sentinels used across the Launch
// Manager and Health Monitor core (orig §7). Components wrap these with
// fmt.Errorf("...: %w", ErrX) and callers inspect with errors.Is/errors.As.
package xerrors

import "errors"

// Kind enumerates the error kinds from orig §7. It is not a type hierarchy:
// concrete errors are plain wrapped sentinels, inspected with errors.Is.
var (
	// ErrInvalidArgument covers unknown process-group/state identifiers,
	// mis-sized payloads, and disallowed transitions.
	ErrInvalidArgument = errors.New("lifecycle: invalid argument")

	// ErrCommunication covers ring-mapping failure and full-ring data loss.
	ErrCommunication = errors.New("lifecycle: communication failure")

	// ErrTimeout covers startup/termination/recovery-notification timeouts.
	ErrTimeout = errors.New("lifecycle: timeout")

	// ErrUnexpectedTermination covers a process exiting while not in
	// kTerminating.
	ErrUnexpectedTermination = errors.New("lifecycle: unexpected termination")

	// ErrConfiguration covers non-existent executables, counter overflow,
	// and zero cycle parameters where non-zero is required.
	ErrConfiguration = errors.New("lifecycle: configuration error")

	// ErrFatal covers supervision-buffer data corruption, timestamp
	// arithmetic overflow, and inability to set scheduling/security —
	// surfaces as graph undefined and a watchdog fire.
	ErrFatal = errors.New("lifecycle: fatal error")
)

// RecordError pairs a Kind sentinel with the IdentifierHash of the offending
// entity and an optional execution-error code, matching the shape every
// component uses to report failures up the stack.
type RecordError struct {
	Kind       error
	Identifier uint64
	ExecCode   uint32
	Detail     string
}

func (e *RecordError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *RecordError) Unwrap() error { return e.Kind }

// New constructs a RecordError rooted at kind.
func New(kind error, identifier uint64, detail string) *RecordError {
	return &RecordError{Kind: kind, Identifier: identifier, Detail: detail}
}
