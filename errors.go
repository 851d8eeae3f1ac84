package kaio

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Error represents a structured engine error with context and errno mapping
type Error struct {
	Op    string        // Operation that failed (e.g., "commit", "getevents")
	Index int           // Request index (-1 if not applicable)
	Code  ErrorCode     // High-level error category
	Errno syscall.Errno // Kernel errno (0 if not applicable)
	Msg   string        // Human-readable message
	Inner error         // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	s := "kaio: "
	if e.Op != "" {
		s += e.Op + ": "
	}
	s += msg

	switch {
	case e.Index >= 0 && e.Errno != 0:
		s += fmt.Sprintf(" (index=%d errno=%d)", e.Index, int(e.Errno))
	case e.Index >= 0:
		s += fmt.Sprintf(" (index=%d)", e.Index)
	case e.Errno != 0:
		s += fmt.Sprintf(" (errno=%d)", int(e.Errno))
	}
	return s
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches sentinel errors and other structured errors by code
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if se, ok := target.(sentinel); ok {
		return e.Code == ErrorCode(se)
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeCapacityExceeded      ErrorCode = "ring capacity exceeded"
	ErrCodeTransientSubmission   ErrorCode = "transient submission failure"
	ErrCodeStallTimeout          ErrorCode = "aio appears to be stalled"
	ErrCodeResourceExhaustion    ErrorCode = "resource exhaustion"
	ErrCodeShortTransfer         ErrorCode = "short transfer"
	ErrCodeIOError               ErrorCode = "I/O error"
	ErrCodeCapabilityUnsupported ErrorCode = "capability unsupported"
	ErrCodeInterrupted           ErrorCode = "interrupted"
	ErrCodeInvalidParameters     ErrorCode = "invalid parameters"
	ErrCodeEngineClosed          ErrorCode = "engine closed"
	ErrCodeNotReady              ErrorCode = "engine not ready"
)

// sentinel lets package-level errors match structured errors by code
type sentinel string

func (e sentinel) Error() string {
	return string(e)
}

// Sentinel errors for errors.Is
const (
	ErrBusy              sentinel = sentinel(ErrCodeCapacityExceeded)
	ErrStalled           sentinel = sentinel(ErrCodeStallTimeout)
	ErrUnsupported       sentinel = sentinel(ErrCodeCapabilityUnsupported)
	ErrClosed            sentinel = sentinel(ErrCodeEngineClosed)
	ErrNotReady          sentinel = sentinel(ErrCodeNotReady)
	ErrInvalidParameters sentinel = sentinel(ErrCodeInvalidParameters)
	ErrResources         sentinel = sentinel(ErrCodeResourceExhaustion)
	ErrIO                sentinel = sentinel(ErrCodeIOError)
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:    op,
		Index: -1,
		Code:  code,
		Msg:   msg,
	}
}

// NewErrorWithErrno creates a new structured error with errno
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return &Error{
		Op:    op,
		Index: -1,
		Code:  code,
		Errno: errno,
		Msg:   errno.Error(),
		Inner: errno,
	}
}

// NewRequestError creates a per-request error
func NewRequestError(op string, index int, code ErrorCode, errno syscall.Errno) *Error {
	e := &Error{
		Op:    op,
		Index: index,
		Code:  code,
		Errno: errno,
	}
	if errno != 0 {
		e.Msg = errno.Error()
		e.Inner = errno
	}
	return e
}

// WrapError wraps an existing error with engine context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	var ke *Error
	if errors.As(inner, &ke) {
		return &Error{
			Op:    op,
			Index: ke.Index,
			Code:  ke.Code,
			Errno: ke.Errno,
			Msg:   ke.Msg,
			Inner: ke.Inner,
		}
	}

	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{
			Op:    op,
			Index: -1,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   errno.Error(),
			Inner: inner,
		}
	}

	return &Error{
		Op:    op,
		Index: -1,
		Code:  ErrCodeIOError,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// mapErrnoToCode maps syscall errno to engine error codes
func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case unix.EAGAIN:
		return ErrCodeTransientSubmission
	case unix.EINTR:
		return ErrCodeInterrupted
	case unix.ENOMEM:
		return ErrCodeResourceExhaustion
	case unix.EINVAL, unix.EBADF, unix.EFAULT:
		return ErrCodeInvalidParameters
	case unix.ENOSYS, unix.EOPNOTSUPP:
		return ErrCodeCapabilityUnsupported
	default:
		return ErrCodeIOError
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Code == code
	}
	return false
}

// IsErrno checks if an error carries a specific errno
func IsErrno(err error, errno syscall.Errno) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Errno == errno
	}
	return false
}
