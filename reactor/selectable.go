// File: reactor/selectable.go
//
// Selectable is the contract every fd-owning object implements to receive
// readiness dispatch from a Selector. The selector()/setSelector()/
// desire()/setDesire() methods are unexported so that only types embedding
// Base — this package's non-owning reactor-handle-plus-desire-mask helper —
// can satisfy the interface, mirroring the original's "friend class
// Selector" access restriction.
package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/reactorcore/cord"
	"github.com/momentics/reactorcore/xstatus"
)

// InvalidFd is the sentinel fd value for a closed or not-yet-opened
// Selectable.
const InvalidFd = -1

// Selectable is implemented by every fd-owning object dispatched by a
// Selector.
type Selectable interface {
	// HandleReadEvent/HandleWriteEvent/HandleErrorEvent perform the I/O for
	// the given event and report whether dispatch should continue for this
	// Selectable.
	HandleReadEvent(ev EventData) bool
	HandleWriteEvent(ev EventData) bool
	HandleErrorEvent(ev EventData) bool

	// GetFd returns the raw fd, or InvalidFd once closed.
	GetFd() int
	// Close unregisters from the reactor (if any) and closes the OS fd.
	// Must be idempotent.
	Close()

	selector() *Selector
	setSelector(*Selector)
	desire() Desire
	setDesire(Desire)
}

// Base is embedded by every concrete Selectable. It holds the non-owning
// back pointer to the owning reactor and the current desire mask, and
// provides the buffer-aware read/write helpers the spec requires every
// Selectable implementation to have available.
type Base struct {
	sel *Selector
	d   Desire
}

// NewBase returns a Base with the default desire mask (read|error).
func NewBase() Base { return Base{d: WantRead | WantError} }

// Selector returns the reactor this Selectable is currently registered
// with, or nil.
func (b *Base) Selector() *Selector { return b.sel }

func (b *Base) selector() *Selector   { return b.sel }
func (b *Base) setSelector(s *Selector) { b.sel = s }
func (b *Base) desire() Desire        { return b.d }
func (b *Base) setDesire(d Desire)    { b.d = d }

// Read calls the OS read(2) on fd. EAGAIN/EWOULDBLOCK is reported as
// (0, ok); other errno values are mapped to a Status.
func (b *Base) Read(fd int, buf []byte) (int, xstatus.Status) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		if xstatus.IsWouldBlock(err) {
			return 0, xstatus.OkStatus
		}
		return 0, xstatus.ErrnoToStatus(err.(unix.Errno))
	}
	return n, xstatus.OkStatus
}

// Write calls the OS write(2) on fd, with the same would-block convention
// as Read.
func (b *Base) Write(fd int, buf []byte) (int, xstatus.Status) {
	n, err := unix.Write(fd, buf)
	if err != nil {
		if xstatus.IsWouldBlock(err) {
			return 0, xstatus.OkStatus
		}
		return 0, xstatus.ErrnoToStatus(err.(unix.Errno))
	}
	return n, xstatus.OkStatus
}

// ReadToCord reads up to n bytes from fd directly into a new chunk
// appended to c.
func (b *Base) ReadToCord(fd int, c *cord.Cord, n int) (int, xstatus.Status) {
	buf := make([]byte, n)
	got, st := b.Read(fd, buf)
	if !st.Ok() || got == 0 {
		return got, st
	}
	c.AppendChunkWithDrop(buf[:got], nil)
	return got, xstatus.OkStatus
}

// WriteCord writes up to capBytes bytes of c to fd using successive
// write(2) calls over the cord's chunks, removing the written prefix.
func (b *Base) WriteCord(fd int, c *cord.Cord, capBytes int) (int, xstatus.Status) {
	chunks, _ := cord.ToIovec(c, capBytes)
	written := 0
	for _, chunk := range chunks {
		n, st := b.Write(fd, chunk)
		if !st.Ok() {
			if written > 0 {
				c.RemovePrefix(written)
			}
			return written, st
		}
		written += n
		if n < len(chunk) {
			break
		}
	}
	c.RemovePrefix(written)
	return written, xstatus.OkStatus
}

// WriteCordVec is WriteCord using a single vectored writev(2) call instead
// of one write(2) per chunk.
func (b *Base) WriteCordVec(fd int, c *cord.Cord, capBytes int) (int, xstatus.Status) {
	chunks, _ := cord.ToIovec(c, capBytes)
	if len(chunks) == 0 {
		return 0, xstatus.OkStatus
	}
	n, err := unix.Writev(fd, chunks)
	if err != nil {
		if xstatus.IsWouldBlock(err) {
			return 0, xstatus.OkStatus
		}
		return 0, xstatus.ErrnoToStatus(err.(unix.Errno))
	}
	c.RemovePrefix(n)
	return n, xstatus.OkStatus
}
