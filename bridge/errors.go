package bridge

import (
	"errors"
	"fmt"
)

// FaultKind classifies a dispatch fault.
type FaultKind int

const (
	// FaultMalformedMessage means an inbound message could not be decoded.
	FaultMalformedMessage FaultKind = iota
	// FaultUnknownHandler means an inbound call named no registered handler.
	FaultUnknownHandler
	// FaultUnknownResponse means a reply named no pending callback.
	FaultUnknownResponse
	// FaultHandlerFault means a handler or response callback panicked.
	FaultHandlerFault
	// FaultCallbackExpired means a pending callback outlived Config.CallbackTTL.
	FaultCallbackExpired
)

func (k FaultKind) String() string {
	switch k {
	case FaultMalformedMessage:
		return "malformed_message"
	case FaultUnknownHandler:
		return "unknown_handler"
	case FaultUnknownResponse:
		return "unknown_response"
	case FaultHandlerFault:
		return "handler_fault"
	case FaultCallbackExpired:
		return "callback_expired"
	default:
		return "unknown"
	}
}

// Fault describes a message the bridge dropped or a handler that failed.
// Faults never reach the caller of a public operation; they are logged,
// counted, and passed to Config.OnFault.
type Fault struct {
	Kind FaultKind
	// Handler is the handler name involved, if any.
	Handler string
	// ID is the callback or response id involved, if any.
	ID string
	// Err is the underlying cause, if any.
	Err error
}

func (f *Fault) Error() string {
	msg := "bridge: " + f.Kind.String()
	if f.Handler != "" {
		msg += fmt.Sprintf(" handler=%q", f.Handler)
	}
	if f.ID != "" {
		msg += fmt.Sprintf(" id=%q", f.ID)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// IsFault reports whether err is a *Fault of the given kind.
func IsFault(err error, kind FaultKind) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}

// PanicError carries a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
