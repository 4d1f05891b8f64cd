package zxmit

import (
	"errors"
	"fmt"
)

// Error represents a zxmit transfer error
type Error struct {
	// Type is the error type
	Type ErrorType

	// Message is a human-readable error message
	Message string

	// Err is the underlying cause, if any
	Err error
}

// ErrorType categorizes zxmit errors
type ErrorType int

const (
	// ErrSourceRead indicates the input file could not be read
	ErrSourceRead ErrorType = iota

	// ErrConnection indicates a connect, write or read failure
	ErrConnection

	// ErrNameTooLong indicates the short name does not fit the name field
	ErrNameTooLong

	// ErrPeerStatus indicates the peer acknowledged a frame with an error
	ErrPeerStatus

	// ErrProtocol indicates the peer acknowledged more bytes than were sent
	// or a frame could not be built
	ErrProtocol

	// ErrCancelled indicates the transfer context was cancelled
	ErrCancelled

	// ErrBusy indicates a transfer was started while another was running
	ErrBusy

	// ErrConsumed indicates a progress sequence was ranged over twice
	ErrConsumed
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("zxmit %s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("zxmit %s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same type. This lets callers
// write errors.Is(err, zxmit.NewError(zxmit.ErrConnection, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

func (t ErrorType) String() string {
	switch t {
	case ErrSourceRead:
		return "source read error"
	case ErrConnection:
		return "connection error"
	case ErrNameTooLong:
		return "name too long"
	case ErrPeerStatus:
		return "peer error"
	case ErrProtocol:
		return "protocol error"
	case ErrCancelled:
		return "cancelled"
	case ErrBusy:
		return "busy"
	case ErrConsumed:
		return "already consumed"
	default:
		return "unknown error"
	}
}

// NewError creates a new zxmit error
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// WrapError creates a new zxmit error around an underlying cause
func WrapError(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the ErrorType of err, and false if err is not a zxmit error.
func TypeOf(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

// IsConnection checks if an error is a connection error
func IsConnection(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrConnection
}

// IsCancelled checks if an error indicates cancellation
func IsCancelled(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrCancelled
}

// IsNameTooLong checks if an error was caused by an oversized short name
func IsNameTooLong(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrNameTooLong
}
