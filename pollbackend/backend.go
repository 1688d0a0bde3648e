// File: pollbackend/backend.go
//
// Package pollbackend provides the OS-specific readiness multiplexer
// abstraction behind the reactor: an edge epoll(7) implementation on Linux
// and a portable poll(2) fallback, behind one add/update/delete/step
// interface.
package pollbackend

import (
	"time"

	"github.com/momentics/reactorcore/xstatus"
)

// Desire is a bitset over {read, write, error} readiness interest.
type Desire uint8

const (
	WantRead  Desire = 1 << 0
	WantWrite Desire = 1 << 1
	WantError Desire = 1 << 2
)

func (d Desire) Has(bit Desire) bool { return d&bit != 0 }

// EventData is the triple returned by Step: which registration fired (by
// its caller-assigned user data key), the readiness normalized into a
// Desire mask, and the backend-specific raw event bits for predicate use.
type EventData struct {
	UserData uintptr
	Desire   Desire
	Raw      uint32
}

// Backend is the common interface satisfied by the epoll and poll
// implementations.
type Backend interface {
	// Add registers fd once with the given user data key and desire mask.
	Add(fd int, userData uintptr, desire Desire) error
	// Update replaces the desire mask and user data key for a registered fd.
	Update(fd int, userData uintptr, desire Desire) error
	// Delete removes fd from the backend.
	Delete(fd int) error
	// Step blocks up to timeout (negative means block indefinitely, zero
	// means do not block) and returns the ready events.
	Step(timeout time.Duration) ([]EventData, error)

	IsHangUp(raw uint32) bool
	IsRemoteHangUp(raw uint32) bool
	IsAnyHangUp(raw uint32) bool
	IsError(raw uint32) bool
	IsInput(raw uint32) bool

	// Close releases the backend's own OS resources (epoll fd, etc).
	Close() error
}

// ErrBackendFull is the sentinel resource-exhausted status returned by Add
// when a fixed-capacity backend (the poll backend) has no free slot.
var ErrBackendFull error = xstatus.New(xstatus.ResourceExhausted, "pollbackend: at capacity")
