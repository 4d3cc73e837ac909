package mcberr

import "sync/atomic"

// last holds the most recent diagnostic message set by any component.
// It is shared process-wide and can be clobbered by a concurrent
// caller; callers that need a per-caller view should prefer the Kind
// on the returned *Error and treat LastError as best-effort: the
// string is a diagnostic convenience, the Kind is the contract.
var last atomic.Value

func init() {
	last.Store("")
}

// Set records err's message as the most recent diagnostic. Called internally
// by New/Wrap/NewIO/NewNACK so every failing public operation updates it.
func Set(err *Error) {
	last.Store(err.Error())
}

// LastError returns the most recently recorded diagnostic message.
func LastError() string {
	return last.Load().(string)
}
