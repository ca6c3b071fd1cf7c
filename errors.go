// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package orb

import (
	"errors"
	"fmt"

	"github.com/creachadair/orb/codec"
)

var (
	// ErrInvalidMethod is reported for a call to a method the target object
	// does not define.
	ErrInvalidMethod = errors.New("invalid method")

	// ErrNoObject is reported when a name or object ID is not registered.
	ErrNoObject = errors.New("no such object")

	// ErrAlreadyRegistered is reported when a registration conflicts with an
	// existing name.
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrTimeout is reported when a call does not complete before its deadline.
	ErrTimeout = errors.New("call timed out")

	// ErrConnectionLost is reported for calls pending or issued on a
	// connection that has closed.
	ErrConnectionLost = errors.New("connection lost")

	// ErrRemote is reported for an undeclared error from a remote method.
	ErrRemote = errors.New("remote method failed")

	// ErrBusy is reported when the remote broker cannot accept more work.
	ErrBusy = errors.New("broker busy")

	// ErrProtocol is reported when a peer violates the frame protocol.
	ErrProtocol = errors.New("protocol error")

	// ErrUnknownScheme is reported for a reference whose scheme has no
	// registered transport.
	ErrUnknownScheme = errors.New("unknown scheme")

	// ErrStopped is reported for operations on a stopped broker.
	ErrStopped = errors.New("broker stopped")

	errIdle = errors.New("idle timeout")
)

// ExceptionCode classifies the error carried by an EXCEPTION frame.
type ExceptionCode byte

const (
	CodeInvalidMethod ExceptionCode = 1 // The method ID is not defined
	CodeDecode        ExceptionCode = 2 // The parameters could not be decoded
	CodeNoObject      ExceptionCode = 3 // The object ID or name is not registered
	CodeUser          ExceptionCode = 4 // A declared error of the interface
	CodeFailure       ExceptionCode = 5 // Any other method failure
	CodeBusy          ExceptionCode = 6 // The job queue is full
	CodeNegotiation   ExceptionCode = 7 // No common encoding
)

func (c ExceptionCode) String() string {
	switch c {
	case CodeInvalidMethod:
		return "INVALID_METHOD"
	case CodeDecode:
		return "DECODE"
	case CodeNoObject:
		return "NO_OBJECT"
	case CodeUser:
		return "USER"
	case CodeFailure:
		return "FAILURE"
	case CodeBusy:
		return "BUSY"
	case CodeNegotiation:
		return "NEGOTIATION"
	default:
		return fmt.Sprintf("exception code %d", byte(c))
	}
}

// sentinel returns the error value reported locally for c.
func (c ExceptionCode) sentinel() error {
	switch c {
	case CodeInvalidMethod:
		return ErrInvalidMethod
	case CodeDecode:
		return codec.ErrDecode
	case CodeNoObject:
		return ErrNoObject
	case CodeBusy:
		return ErrBusy
	case CodeNegotiation:
		return codec.ErrNoCommonEncoding
	default:
		return ErrRemote
	}
}

// classify reports the exception code and declared name for an error
// returned by a method of iface.
func classify(err error, iface *Interface) (ExceptionCode, string) {
	var re *RemoteError
	switch {
	case errors.Is(err, ErrInvalidMethod):
		return CodeInvalidMethod, ""
	case errors.Is(err, codec.ErrDecode):
		return CodeDecode, ""
	case errors.Is(err, ErrNoObject):
		return CodeNoObject, ""
	case errors.Is(err, ErrBusy):
		return CodeBusy, ""
	}
	if iface != nil {
		if name := iface.errorName(err); name != "" {
			return CodeUser, name
		}
	}
	if errors.As(err, &re) && re.Code == CodeUser {
		return CodeUser, re.Name // forwarded from a nested call
	}
	return CodeFailure, ""
}

// RemoteError is the concrete type of errors reported by a remote object.
// Err is the local error matching the exception: a sentinel of this package,
// a declared error of the interface, or ErrRemote.
type RemoteError struct {
	Code    ExceptionCode
	Name    string // declared error name, for CodeUser
	Message string // error text reported by the remote broker
	Err     error
}

// Unwrap reports the underlying error of e.
func (e *RemoteError) Unwrap() error { return e.Err }

// Error satisfies the error interface.
func (e *RemoteError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("remote error %s: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("remote error [%v]: %s", e.Code, e.Message)
}
