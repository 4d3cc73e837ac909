// Package mcberr defines the MCB error taxonomy and the process-wide
// last-error diagnostic string.
package mcberr

import "fmt"

// Kind discriminates the class of failure of an MCB operation.
// Callers should switch on Kind, not on the formatted message.
type Kind int

const (
	KindInvalid Kind = iota
	KindState
	KindAlready
	KindNoMem
	KindIO
	KindTimeout
	KindNotSupported
	KindParse
	KindUnknownLang
	KindFault
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindState:
		return "state"
	case KindAlready:
		return "already"
	case KindNoMem:
		return "no_mem"
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindNotSupported:
		return "not_supported"
	case KindParse:
		return "parse"
	case KindUnknownLang:
		return "unknown_lang"
	case KindFault:
		return "fault"
	default:
		return "unknown"
	}
}

// IOSubkind further classifies a KindIO error.
type IOSubkind int

const (
	IOSubkindNone IOSubkind = iota
	IOSubkindCRC
	IOSubkindNACK
	IOSubkindShortRead
	IOSubkindTransport
)

func (s IOSubkind) String() string {
	switch s {
	case IOSubkindCRC:
		return "crc"
	case IOSubkindNACK:
		return "nack"
	case IOSubkindShortRead:
		return "short_read"
	case IOSubkindTransport:
		return "transport"
	default:
		return "none"
	}
}

// Error is the concrete error type returned by every public MCB operation.
// It wraps an optional underlying cause so callers can still use
// errors.Is/errors.As against transport-level errors.
type Error struct {
	Kind    Kind
	IO      IOSubkind
	Code    uint32 // device NACK error code, only meaningful when IO == IOSubkindNACK
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.IO != IOSubkindNone {
		return fmt.Sprintf("mcb: %s/%s", e.Kind, e.IO)
	}
	return fmt.Sprintf("mcb: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &mcberr.Error{Kind: mcberr.KindTimeout}) style
// comparisons work: an *Error target matches on Kind, and also on IO
// when the target sets an IO subkind. The target's Message and Cause
// are not compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.IO == IOSubkindNone || t.IO == e.IO)
}

// New builds an *Error of the given kind, formatting Message as a
// short tag followed by an interpolated cause.
func New(kind Kind, format string, args ...any) *Error {
	e := &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
	Set(e)
	return e
}

// Wrap builds an *Error of the given kind around a lower-level cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	e := &Error{Kind: kind, Cause: cause, Message: fmt.Sprintf(format, args...)}
	Set(e)
	return e
}

// NewIO builds a KindIO error with a subkind.
func NewIO(sub IOSubkind, format string, args ...any) *Error {
	e := &Error{Kind: KindIO, IO: sub, Message: fmt.Sprintf(format, args...)}
	Set(e)
	return e
}

// NewNACK builds the NACK subkind of KindIO, carrying the device's
// reported error code.
func NewNACK(code uint32) *Error {
	e := &Error{Kind: KindIO, IO: IOSubkindNACK, Code: code, Message: fmt.Sprintf("mcb: nack, device code 0x%08X", code)}
	Set(e)
	return e
}
