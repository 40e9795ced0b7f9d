// Package controlclient implements the Control-Client channel of orig
// §4.11/§6: the bidirectional request/response path between state-manager
// client processes and LM, carrying SetState/GetInitialMachineState/
// GetExecutionError/ValidateProcessGroupState, plus the asynchronous
// FailedUnexpectedTermination(OnEnter) events pushed the other way.
//
// The source models this as a shared-memory block with a request slot, a
// response slot, and two semaphores per client. Per orig §9's design note
// ("Control-Client as an RPC ... fixed-schema message queue with typed
// requests and responses; no dynamic dispatch required"), this package
// instead models each client as a Channel backed by Go channels, and the
// handler goroutine as a fan-in consumer — the request/response
// correlation discipline is grounded on the teacher's
// kernel/threads/supervisor/protocol.go Protocol/AckManager (message id,
// pending-response bookkeeping), generalised from an ack-with-retry scheme
// to a blocking-call-with-no-timeout scheme (orig §5: "Control-Client
// request blocks the caller ... with no timeout").
package controlclient

import (
	"github.com/google/uuid"
	"github.com/qorix-group/inc-lifecycle-sub000/kernel/idhash"
)

// Opcode is the Control-Client protocol's request vocabulary (orig §6).
type Opcode uint8

const (
	OpSetState Opcode = iota
	OpGetInitialMachineState
	OpGetExecutionError
	OpValidateProcessGroupState
)

// InitialMachineStateCode answers GetInitialMachineStateRequest.
type InitialMachineStateCode int

const (
	InitialMachineStateNotSet InitialMachineStateCode = iota
	InitialMachineStateFailed
	InitialMachineStateSuccess
)

// ExecutionErrorResult answers GetExecutionErrorRequest.
type ExecutionErrorResult int

const (
	ExecutionErrorRequestFailed ExecutionErrorResult = iota
	ExecutionErrorRequestSuccess
	ExecutionErrorInvalidArguments
)

// ValidateResult answers ValidateProcessGroupState.
type ValidateResult int

const (
	ValidateProcessGroupStateFailed ValidateResult = iota
	ValidateProcessGroupStateSuccess
)

// Request is one Control-Client message, SM->LM. ID is caller-assigned and
// echoed back by the Manager's dedup filter on retransmission, letting a
// state manager safely resend a SetStateRequest it never got a response
// for without risking a second transition.
type Request struct {
	ID     uuid.UUID
	Opcode Opcode
	Group  idhash.Hash
	State  idhash.Hash // SetState target / ValidateProcessGroupState candidate
}

// Response is the reply to a Request, LM->SM. Only the fields relevant to
// the request's Opcode are meaningful.
type Response struct {
	SetState        SetStateCode
	ExecutionError  uint32
	InitialMachine  InitialMachineStateCode
	ExecutionResult ExecutionErrorResult
	Validate        ValidateResult
}

// SetStateCode mirrors kernel/graph.ResponseCode's values; duplicated here
// (rather than importing kernel/graph) so the protocol package stays the
// stable external vocabulary of orig §6 independent of the orchestrator's
// internal type. translateSetStateCode in handler.go is the single place
// that translates between the two.
type SetStateCode int

const (
	SetStateSuccess SetStateCode = iota
	SetStateFailed
	SetStateCancelled
	SetStateAlreadyInState
	SetStateTransitionToSameState
	SetStateInvalidArguments
)

// EventKind distinguishes the two asynchronous LM->SM events of orig §6.
type EventKind int

const (
	EventFailedUnexpectedTermination EventKind = iota
	EventFailedUnexpectedTerminationOnEnter
)

// Event is an unsolicited LM->SM push, not a response to any Request.
type Event struct {
	Kind           EventKind
	Group          idhash.Hash
	ExecutionError uint32
}
