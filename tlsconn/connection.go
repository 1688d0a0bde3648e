// File: tlsconn/connection.go
//
// Package tlsconn layers crypto/tls over a tcp.Connection. crypto/tls's
// blocking Handshake/Read/Write API is driven from two dedicated pump
// goroutines per connection (grounded on the translation strategy the other
// example repos use for TLS-over-async-transport, e.g.
// nanomsg-mangos-v1/transport/tlstcp and vlourme-rio/tls); all application
// callbacks are hopped back onto the owning reactor.Selector's loop thread
// via RunInSelectLoop before being invoked, preserving the core's
// single-threaded-per-connection contract.
package tlsconn

import (
	"crypto/tls"
	"sync"

	"github.com/momentics/reactorcore/cord"
	"github.com/momentics/reactorcore/reactor"
	"github.com/momentics/reactorcore/tcp"
	"github.com/momentics/reactorcore/xstatus"
)

// State is a TLS connection's lifecycle state, layered on top of its
// underlying tcp.Connection's state.
type State int32

const (
	Handshaking State = iota
	Established
	Closed
)

// HandshakeHandler fires once, on the reactor thread, when Handshake()
// returns (success or failure).
type HandshakeHandler func(xstatus.Status)

// ReadHandler fires on the reactor thread whenever new plaintext has landed
// in InBuffer().
type ReadHandler func() xstatus.Status

// CloseHandler fires once the connection (TLS or underlying TCP) has gone
// away.
type CloseHandler func(xstatus.Status)

// Connection is a TLS connection: a tcp.Connection carrying ciphertext, plus
// a crypto/tls.Conn doing the handshake and record framing over an
// in-process bridge.
type Connection struct {
	raw  *tcp.Connection
	sel  *reactor.Selector
	br   *bridge
	tls  *tls.Conn

	state State

	inBuf *cord.Cord

	writeMu   sync.Mutex
	writeCond *sync.Cond
	pending   *cord.Cord
	closed    bool

	handshakeHandler HandshakeHandler
	readHandler      ReadHandler
	closeHandler     CloseHandler
}

func newConnection(raw *tcp.Connection, buildTLS func(rawConn *bridge) *tls.Conn) *Connection {
	c := &Connection{
		raw:   raw,
		sel:   raw.Selector(),
		inBuf: cord.New(),
	}
	c.writeCond = sync.NewCond(&c.writeMu)
	c.pending = cord.New()

	c.br = newBridge(func(ciphertext []byte) {
		c.sel.RunInSelectLoop(func() {
			c.raw.OutBuffer().Append(ciphertext)
			c.sel.EnableWriteCallback(c.raw, true)
		})
	}, hostPortAddr(raw.LocalAddress()), hostPortAddr(raw.RemoteAddress()))

	c.tls = buildTLS(c.br)

	raw.SetReadHandler(func() xstatus.Status {
		for _, chunk := range c.raw.InBuffer().Chunks() {
			c.br.PushCiphertext(chunk)
		}
		c.raw.InBuffer().RemovePrefix(c.raw.InBuffer().Size())
		return xstatus.OkStatus
	})
	raw.SetCloseHandler(func(st xstatus.Status, dir tcp.CloseDirective) {
		c.br.Close()
		if dir == tcp.CloseReadWrite {
			c.teardown(st)
		}
	})

	go c.handshakeAndPump()
	go c.writePump()
	return c
}

// NewServer wraps an already-Connected tcp.Connection (normally one handed
// to a tcp.Acceptor's accept handler) as the server side of a TLS handshake.
func NewServer(raw *tcp.Connection, cfg *tls.Config) *Connection {
	return newConnection(raw, func(b *bridge) *tls.Conn { return tls.Server(b, cfg) })
}

// NewClient wraps an already-Connected tcp.Connection as the client side of
// a TLS handshake. Call this from the tcp.Connection's connect handler, once
// the underlying TCP connect has completed.
func NewClient(raw *tcp.Connection, cfg *tls.Config) *Connection {
	return newConnection(raw, func(b *bridge) *tls.Conn { return tls.Client(b, cfg) })
}

func (c *Connection) SetHandshakeHandler(h HandshakeHandler) { c.handshakeHandler = h }
func (c *Connection) SetReadHandler(h ReadHandler)             { c.readHandler = h }
func (c *Connection) SetCloseHandler(h CloseHandler)           { c.closeHandler = h }

// InBuffer exposes the decrypted plaintext cord for the read handler to
// drain.
func (c *Connection) InBuffer() *cord.Cord { return c.inBuf }

// RawConnection returns the underlying ciphertext-carrying tcp.Connection.
func (c *Connection) RawConnection() *tcp.Connection { return c.raw }

// ConnectionState exposes crypto/tls's negotiated session details.
func (c *Connection) ConnectionState() tls.ConnectionState { return c.tls.ConnectionState() }

func (c *Connection) handshakeAndPump() {
	err := c.tls.Handshake()
	st := xstatus.FromError(err)
	c.sel.RunInSelectLoop(func() {
		if err == nil {
			c.state = Established
		}
		if c.handshakeHandler != nil {
			c.handshakeHandler(st)
		}
	})
	if err != nil {
		return
	}

	buf := make([]byte, 16*1024)
	for {
		n, rerr := c.tls.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.sel.RunInSelectLoop(func() {
				c.inBuf.AppendChunkWithDrop(data, nil)
				if c.readHandler != nil {
					if st := c.readHandler(); !st.Ok() {
						c.teardown(st)
					}
				}
			})
		}
		if rerr != nil {
			c.sel.RunInSelectLoop(func() { c.teardown(xstatus.FromError(rerr)) })
			return
		}
	}
}

// writePump is the sole writer of c.tls: it drains already-enqueued
// plaintext strictly in order, and only once FlushAndClose has closed the
// queue and every prior chunk has actually been handed to tls.Write does it
// send close_notify and shut the underlying connection down. Running both
// the drain and the close on this one goroutine, in sequence, is what
// prevents close_notify from racing ahead of queued application data.
func (c *Connection) writePump() {
	for {
		c.writeMu.Lock()
		for c.pending.IsEmpty() && !c.closed {
			c.writeCond.Wait()
		}
		if c.pending.IsEmpty() && c.closed {
			c.writeMu.Unlock()
			if err := c.tls.CloseWrite(); err != nil {
				c.sel.RunInSelectLoop(func() { c.teardown(xstatus.FromError(err)) })
				return
			}
			c.sel.RunInSelectLoop(func() { c.raw.FlushAndClose() })
			return
		}
		chunks, n := cord.ToIovec(c.pending, -1)
		buf := make([]byte, 0, n)
		for _, chunk := range chunks {
			buf = append(buf, chunk...)
		}
		c.pending.RemovePrefix(n)
		c.writeMu.Unlock()

		if _, err := c.tls.Write(buf); err != nil {
			c.sel.RunInSelectLoop(func() { c.teardown(xstatus.FromError(err)) })
			return
		}
	}
}

// Write enqueues plaintext for encryption and transmission. Safe to call
// from any goroutine; returns immediately.
func (c *Connection) Write(data []byte) xstatus.Status {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return xstatus.New(xstatus.FailedPrecondition, "tls connection is closed")
	}
	c.pending.Append(data)
	c.writeCond.Broadcast()
	c.writeMu.Unlock()
	return xstatus.OkStatus
}

// FlushAndClose stops accepting new writes and wakes writePump, which drains
// any plaintext enqueued before this call, then sends close_notify and
// shuts the underlying TCP connection down once the drain is complete.
func (c *Connection) FlushAndClose() {
	c.writeMu.Lock()
	c.closed = true
	c.writeCond.Broadcast()
	c.writeMu.Unlock()
}

// ForceClose tears the connection down immediately.
func (c *Connection) ForceClose() {
	c.writeMu.Lock()
	c.closed = true
	c.writeCond.Broadcast()
	c.writeMu.Unlock()
	c.br.Close()
	c.raw.ForceClose()
}

func (c *Connection) teardown(st xstatus.Status) {
	if c.state == Closed {
		return
	}
	c.state = Closed
	c.writeMu.Lock()
	c.closed = true
	c.writeCond.Broadcast()
	c.writeMu.Unlock()
	c.br.Close()
	c.raw.ForceClose()
	if c.closeHandler != nil {
		c.closeHandler(st)
	}
}
