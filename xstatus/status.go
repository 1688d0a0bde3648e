// File: xstatus/status.go
//
// Package xstatus implements the canonical error taxonomy shared by every
// component of the reactor core: a small closed set of status kinds plus a
// status type that carries a human message and implements error.
package xstatus

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind enumerates the canonical status categories surfaced by the core.
type Kind int

const (
	OK Kind = iota
	InvalidArgument
	NotFound
	AlreadyExists
	ResourceExhausted
	FailedPrecondition
	Unavailable
	Cancelled
	Unimplemented
	Aborted
	PermissionDenied
	OutOfRange
	Internal
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case ResourceExhausted:
		return "resource_exhausted"
	case FailedPrecondition:
		return "failed_precondition"
	case Unavailable:
		return "unavailable"
	case Cancelled:
		return "cancelled"
	case Unimplemented:
		return "unimplemented"
	case Aborted:
		return "aborted"
	case PermissionDenied:
		return "permission_denied"
	case OutOfRange:
		return "out_of_range"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Status is a (kind, message) pair. The zero value is OK.
type Status struct {
	kind Kind
	msg  string
}

// New builds a Status of the given kind with a formatted message.
func New(k Kind, format string, args ...any) Status {
	return Status{kind: k, msg: fmt.Sprintf(format, args...)}
}

// Ok reports whether the status represents success.
func (s Status) Ok() bool { return s.kind == OK }

// Kind returns the status's category.
func (s Status) Kind() Kind { return s.kind }

// Error implements the error interface so Status can be returned/compared
// like any other Go error while still carrying a structured Kind.
func (s Status) Error() string {
	if s.kind == OK {
		return "ok"
	}
	if s.msg == "" {
		return s.kind.String()
	}
	return fmt.Sprintf("%s: %s", s.kind.String(), s.msg)
}

// OkStatus is the canonical success value.
var OkStatus = Status{kind: OK}

// FromError wraps a plain error as an Internal status, passing through
// Status values (and nil) unchanged.
func FromError(err error) Status {
	if err == nil {
		return OkStatus
	}
	if s, ok := err.(Status); ok {
		return s
	}
	return New(Internal, "%v", err)
}

// ErrnoToStatus maps a POSIX errno to a Status kind, per the core's errno
// translation table. EAGAIN/EWOULDBLOCK are intentionally absent: callers
// are expected to treat those as a retryable zero-byte result before ever
// reaching this table.
func ErrnoToStatus(errno unix.Errno) Status {
	switch errno {
	case unix.EINVAL:
		return New(InvalidArgument, "%s", errno.Error())
	case unix.ENOENT, unix.EHOSTUNREACH, unix.ENETUNREACH:
		return New(NotFound, "%s", errno.Error())
	case unix.EADDRINUSE, unix.EEXIST:
		return New(AlreadyExists, "%s", errno.Error())
	case unix.ENOMEM, unix.EMFILE, unix.ENFILE:
		return New(ResourceExhausted, "%s", errno.Error())
	case unix.EACCES, unix.EPERM:
		return New(PermissionDenied, "%s", errno.Error())
	case unix.ECONNREFUSED, unix.ETIMEDOUT, unix.ENETDOWN:
		return New(Unavailable, "%s", errno.Error())
	case unix.ECANCELED:
		return New(Cancelled, "%s", errno.Error())
	case unix.ENOSYS, unix.EOPNOTSUPP:
		return New(Unimplemented, "%s", errno.Error())
	case unix.ECONNABORTED, unix.ECONNRESET, unix.EPIPE:
		return New(Aborted, "%s", errno.Error())
	case unix.ERANGE:
		return New(OutOfRange, "%s", errno.Error())
	default:
		return New(Internal, "%s", errno.Error())
	}
}

// IsWouldBlock reports whether err is the EAGAIN/EWOULDBLOCK retryable
// condition that every non-blocking read/write helper must absorb.
func IsWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
