// File: tcp/connection.go
//
// TcpConnection's state machine: Disconnected -> Resolving -> Connecting ->
// Connected -> Flushing -> Disconnected, grounded on
// original_source/whisperlib/net/connection.h's TcpConnection and on the
// teacher's reactor/connection.go read/write/error event handling idiom.
package tcp

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/reactorcore/cord"
	"github.com/momentics/reactorcore/dns"
	"github.com/momentics/reactorcore/netaddr"
	"github.com/momentics/reactorcore/reactor"
	"github.com/momentics/reactorcore/timeouter"
	"github.com/momentics/reactorcore/xstatus"
)

// ConnectHandler is called once, on the reactor thread, when an outbound
// Connect succeeds.
type ConnectHandler func()

// ReadHandler is called after new bytes have landed in InBuffer. Returning a
// non-ok status forces the connection closed with that status.
type ReadHandler func() xstatus.Status

// WriteHandler is called whenever the output cord has drained and the
// connection wants more to send. Returning non-ok closes the connection.
type WriteHandler func() xstatus.Status

// CloseHandler is called once a read half, write half, or the whole
// connection has gone away.
type CloseHandler func(xstatus.Status, CloseDirective)

const shutdownLingerTimeoutID timeouter.TimeoutId = -1

// Connection is a non-blocking TCP connection driven by one reactor.Selector.
// All of its state except the atomics below is only ever touched on that
// selector's loop goroutine.
type Connection struct {
	reactor.Base

	sel    *reactor.Selector
	params ConnectionParams

	fd    int
	state atomic.Int32

	localAddr  netaddr.HostPort
	remoteAddr netaddr.HostPort
	addrMu     sync.RWMutex

	readClosed  atomic.Bool
	writeClosed atomic.Bool
	lastReadNs  atomic.Int64
	lastWriteNs atomic.Int64
	bytesRead   atomic.Uint64
	bytesWrite  atomic.Uint64

	inBuf  *cord.Cord
	outBuf *cord.Cord

	timeouts *timeouter.Timeouter

	connectHandler ConnectHandler
	readHandler    ReadHandler
	writeHandler   WriteHandler
	closeHandler   CloseHandler

	resolver *dns.Resolver

	pendingPort  uint16
	pendingScope uint32
	pendingHost  string

	closePending    bool
	closePendingSt  xstatus.Status
}

// NewConnection builds an unbound Connection (state Disconnected) on sel.
// resolver is used by Connect when given an unresolved host; nil selects the
// package-wide default resolver.
func NewConnection(sel *reactor.Selector, params ConnectionParams, resolver *dns.Resolver) *Connection {
	if resolver == nil {
		resolver = dns.Default()
	}
	c := &Connection{
		Base:     reactor.NewBase(),
		sel:      sel,
		params:   params,
		fd:       reactor.InvalidFd,
		inBuf:    cord.New(),
		outBuf:   cord.New(),
		resolver: resolver,
	}
	c.timeouts = timeouter.New(sel, c.handleTimeout)
	return c
}

func (c *Connection) SetConnectHandler(h ConnectHandler) { c.connectHandler = h }
func (c *Connection) SetReadHandler(h ReadHandler)        { c.readHandler = h }
func (c *Connection) SetWriteHandler(h WriteHandler)      { c.writeHandler = h }
func (c *Connection) SetCloseHandler(h CloseHandler)      { c.closeHandler = h }

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }

// GetFd implements reactor.Selectable.
func (c *Connection) GetFd() int { return c.fd }

// LocalAddress returns the locally bound endpoint, if known.
func (c *Connection) LocalAddress() netaddr.HostPort {
	c.addrMu.RLock()
	defer c.addrMu.RUnlock()
	return c.localAddr
}

// RemoteAddress returns the peer endpoint, if known.
func (c *Connection) RemoteAddress() netaddr.HostPort {
	c.addrMu.RLock()
	defer c.addrMu.RUnlock()
	return c.remoteAddr
}

// InBuffer exposes the connection's input cord for the read handler to drain.
func (c *Connection) InBuffer() *cord.Cord { return c.inBuf }

// OutBuffer exposes the connection's output cord for handlers to append to.
func (c *Connection) OutBuffer() *cord.Cord { return c.outBuf }

// BytesRead and BytesWritten report lifetime transfer counters.
func (c *Connection) BytesRead() uint64    { return c.bytesRead.Load() }
func (c *Connection) BytesWritten() uint64 { return c.bytesWrite.Load() }

// Wrap adopts an already-connected, already-non-blocking fd (normally one
// handed over by an Acceptor) and transitions straight to Connected.
func (c *Connection) Wrap(fd int) xstatus.Status {
	if c.State() != Disconnected || c.fd != reactor.InvalidFd {
		return xstatus.New(xstatus.FailedPrecondition, "connection already bound")
	}
	if st := setTCPNoDelay(fd); !st.Ok() {
		unix.Close(fd)
		return st
	}
	if n := c.params.sendBufferSize; n != nil {
		setSendBufferSize(fd, *n)
	}
	if n := c.params.recvBufferSize; n != nil {
		setRecvBufferSize(fd, *n)
	}
	c.fd = fd
	c.readAddresses()
	if err := c.sel.Register(c, reactor.WantRead|reactor.WantError); err != nil {
		c.fd = reactor.InvalidFd
		unix.Close(fd)
		return xstatus.FromError(err)
	}
	c.state.Store(int32(Connected))
	return xstatus.OkStatus
}

func (c *Connection) readAddresses() {
	if sa, err := unix.Getsockname(c.fd); err == nil {
		if hp, st := netaddr.ParseHostPortFromSockAddr(sa); st.Ok() {
			c.addrMu.Lock()
			c.localAddr = hp
			c.addrMu.Unlock()
		}
	}
	if sa, err := unix.Getpeername(c.fd); err == nil {
		if hp, st := netaddr.ParseHostPortFromSockAddr(sa); st.Ok() {
			c.addrMu.Lock()
			c.remoteAddr = hp
			c.addrMu.Unlock()
		}
	}
}

// Connect begins an outbound connection to remote. Must be called on the
// owning selector's loop thread (it is not a cross-thread entry point: a
// freshly constructed Connection is normally driven to Connect immediately
// after creation, on the thread that created it).
func (c *Connection) Connect(remote netaddr.HostPort) xstatus.Status {
	if c.State() != Disconnected {
		return xstatus.New(xstatus.FailedPrecondition, "connection is %s, not disconnected", c.State())
	}
	port, ok := remote.Port()
	if !ok || port == 0 {
		return xstatus.New(xstatus.InvalidArgument, "remote host-port has no port: %v", remote)
	}
	c.pendingPort = port
	if scope, ok := remote.ScopeID(); ok {
		c.pendingScope = scope
	}

	if ip, ok := remote.Ip(); ok {
		return c.startConnect(ip, port, c.pendingScope)
	}

	host, ok := remote.Host()
	if !ok || host == "" {
		return xstatus.New(xstatus.InvalidArgument, "remote host-port has neither host nor ip: %v", remote)
	}
	c.pendingHost = host
	c.state.Store(int32(Resolving))
	c.resolver.ResolveAsync(host, func(info *dns.HostInfo, st xstatus.Status) {
		c.sel.RunInSelectLoop(func() { c.handleDnsResult(info, st) })
	})
	return xstatus.OkStatus
}

func (c *Connection) handleDnsResult(info *dns.HostInfo, st xstatus.Status) {
	if c.closePending {
		c.closePending = false
		c.internalClose(c.closePendingSt, true)
		return
	}
	if !st.Ok() || info == nil || !info.IsValid() {
		if !st.Ok() {
			c.state.Store(int32(Disconnected))
			c.notifyClose(st, CloseReadWrite)
			return
		}
		c.state.Store(int32(Disconnected))
		c.notifyClose(xstatus.New(xstatus.NotFound, "no address resolved for %q", c.pendingHost), CloseReadWrite)
		return
	}
	ip, _ := info.PickFirstAddress()
	c.state.Store(int32(Disconnected))
	if st := c.startConnect(ip, c.pendingPort, c.pendingScope); !st.Ok() {
		c.notifyClose(st, CloseReadWrite)
	}
}

func (c *Connection) startConnect(ip netaddr.IpAddress, port uint16, scope uint32) xstatus.Status {
	fd, st := newNonBlockingSocket(domainFor(ip))
	if !st.Ok() {
		return st
	}
	if st := setTCPNoDelay(fd); !st.Ok() {
		unix.Close(fd)
		return st
	}
	if n := c.params.sendBufferSize; n != nil {
		setSendBufferSize(fd, *n)
	}
	if n := c.params.recvBufferSize; n != nil {
		setRecvBufferSize(fd, *n)
	}

	sa := netaddr.ToSockaddr(ip, port, scope)
	err := unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return xstatus.ErrnoToStatus(err.(unix.Errno))
	}

	c.fd = fd
	c.addrMu.Lock()
	c.remoteAddr = netaddr.HostPort{}.SetIp(ip).SetPort(port)
	c.addrMu.Unlock()
	if regErr := c.sel.Register(c, reactor.WantRead|reactor.WantWrite|reactor.WantError); regErr != nil {
		c.fd = reactor.InvalidFd
		unix.Close(fd)
		return xstatus.FromError(regErr)
	}
	c.state.Store(int32(Connecting))
	return xstatus.OkStatus
}

// promoteFromConnecting finishes an in-flight connect on first read/write
// readiness: immediate connect success is deliberately deferred to here too,
// so the connect handler always fires from the event loop, never from
// Connect itself.
func (c *Connection) promoteFromConnecting() bool {
	errno := getSocketError(c.fd)
	if errno != 0 {
		c.internalClose(xstatus.ErrnoToStatus(errno), true)
		return false
	}
	c.readAddresses()
	c.state.Store(int32(Connected))
	c.sel.EnableWriteCallback(c, !c.outBuf.IsEmpty())
	if c.connectHandler != nil {
		c.connectHandler()
	}
	return true
}

// HandleReadEvent implements reactor.Selectable.
func (c *Connection) HandleReadEvent(ev reactor.EventData) bool {
	if c.State() == Connecting {
		return c.promoteFromConnecting()
	}

	avail, st := bytesAvailable(c.fd)
	if !st.Ok() {
		c.internalClose(st, true)
		return false
	}
	avail = clampToLimit(avail, c.params.readLimit)

	eof := false
	if avail > 0 {
		buf := make([]byte, avail)
		n, st := c.Read(c.fd, buf)
		if !st.Ok() {
			c.internalClose(st, true)
			return false
		}
		if n == 0 {
			eof = true
		} else {
			c.inBuf.AppendChunkWithDrop(buf[:n], nil)
			c.bytesRead.Add(uint64(n))
			c.lastReadNs.Store(time.Now().UnixNano())
			if c.readHandler != nil {
				if st := c.readHandler(); !st.Ok() {
					c.internalClose(st, true)
					return false
				}
			}
		}
	} else {
		var probe [1]byte
		n, err := unix.Read(c.fd, probe[:])
		switch {
		case err == nil && n == 0:
			eof = true
		case err != nil && !xstatus.IsWouldBlock(err):
			c.internalClose(xstatus.ErrnoToStatus(err.(unix.Errno)), true)
			return false
		}
	}

	if c.writeClosed.Load() || c.State() == Flushing || eof {
		c.readClosed.Store(true)
	}
	if c.readClosed.Load() {
		c.sel.EnableReadCallback(c, false)
		c.notifyClose(xstatus.OkStatus, CloseRead)
	}
	return true
}

// HandleWriteEvent implements reactor.Selectable.
func (c *Connection) HandleWriteEvent(ev reactor.EventData) bool {
	if c.State() == Connecting {
		return c.promoteFromConnecting()
	}

	if !c.outBuf.IsEmpty() {
		n, st := c.WriteCordVec(c.fd, c.outBuf, clampWriteCap(c.params.writeLimit))
		if !st.Ok() {
			c.internalClose(st, true)
			return false
		}
		if n > 0 {
			c.bytesWrite.Add(uint64(n))
			c.lastWriteNs.Store(time.Now().UnixNano())
		}
	}

	if c.outBuf.IsEmpty() && c.State() != Flushing && c.writeHandler != nil {
		if st := c.writeHandler(); !st.Ok() {
			c.internalClose(st, true)
			return false
		}
	}

	if !c.outBuf.IsEmpty() {
		c.sel.EnableWriteCallback(c, true)
		return true
	}

	c.sel.EnableWriteCallback(c, false)
	if c.State() == Flushing {
		unix.Shutdown(c.fd, unix.SHUT_WR)
		c.writeClosed.Store(true)
		c.timeouts.SetTimeout(shutdownLingerTimeoutID, c.params.ShutdownLingerTimeout)
	}
	return true
}

// HandleErrorEvent implements reactor.Selectable.
func (c *Connection) HandleErrorEvent(ev reactor.EventData) bool {
	if c.sel.IsError(ev.Raw) {
		c.internalClose(xstatus.ErrnoToStatus(getSocketError(c.fd)), true)
		return false
	}
	if c.sel.IsHangUp(ev.Raw) {
		c.writeClosed.Store(true)
		if c.sel.IsInput(ev.Raw) && c.State() != Connecting {
			return true
		}
		c.internalClose(xstatus.OkStatus, true)
		return false
	}
	if c.sel.IsRemoteHangUp(ev.Raw) {
		if c.State() == Connected {
			c.state.Store(int32(Flushing))
		}
		if c.sel.IsInput(ev.Raw) && c.State() != Connecting {
			return true
		}
		c.internalClose(xstatus.OkStatus, true)
		return false
	}
	return true
}

func (c *Connection) handleTimeout(id timeouter.TimeoutId) {
	if id == shutdownLingerTimeoutID {
		c.internalClose(xstatus.OkStatus, true)
	}
}

// FlushAndClose requests a graceful shutdown: no more writes are accepted,
// pending output drains, then the write half shuts down and a linger alarm
// forces full close if the peer never acks. Safe to call from any goroutine.
func (c *Connection) FlushAndClose() {
	if !c.sel.IsInSelectThread() {
		c.sel.RunInSelectLoop(c.FlushAndClose)
		return
	}
	switch c.State() {
	case Disconnected:
		return
	case Resolving:
		c.closePending = true
		c.closePendingSt = xstatus.OkStatus
		return
	}
	c.state.Store(int32(Flushing))
	c.sel.EnableWriteCallback(c, true)
}

// ForceClose tears the connection down immediately, discarding any buffered
// output. Safe to call from any goroutine.
func (c *Connection) ForceClose() {
	if !c.sel.IsInSelectThread() {
		c.sel.RunInSelectLoop(c.ForceClose)
		return
	}
	if c.State() == Resolving {
		c.closePending = true
		c.closePendingSt = xstatus.OkStatus
		return
	}
	c.internalClose(xstatus.OkStatus, true)
}

// CloseCommunication closes the given half of the connection. CloseRead
// only drops read interest and keeps the fd open; CloseWrite is
// FlushAndClose; CloseReadWrite is ForceClose, which closes the fd. Safe to
// call from any goroutine.
func (c *Connection) CloseCommunication(dir CloseDirective) {
	if !c.sel.IsInSelectThread() {
		c.sel.RunInSelectLoop(func() { c.CloseCommunication(dir) })
		return
	}
	switch dir {
	case CloseRead:
		c.readClosed.Store(true)
		c.sel.EnableReadCallback(c, false)
	case CloseWrite:
		c.FlushAndClose()
	case CloseReadWrite:
		c.ForceClose()
	}
}

// Close implements reactor.Selectable; it is equivalent to ForceClose.
func (c *Connection) Close() { c.ForceClose() }

func (c *Connection) notifyClose(st xstatus.Status, dir CloseDirective) {
	if c.closeHandler != nil {
		c.closeHandler(st, dir)
	}
}

func (c *Connection) internalClose(st xstatus.Status, callHandler bool) {
	if c.State() == Disconnected && c.fd == reactor.InvalidFd {
		return
	}
	c.timeouts.ClearAllTimeouts()
	if c.fd != reactor.InvalidFd {
		c.sel.Unregister(c)
		unix.Shutdown(c.fd, unix.SHUT_RDWR)
		unix.Close(c.fd)
		c.fd = reactor.InvalidFd
	}
	c.inBuf.Clear()
	c.outBuf.Clear()
	c.readClosed.Store(true)
	c.writeClosed.Store(true)
	c.state.Store(int32(Disconnected))
	if callHandler {
		c.notifyClose(st, CloseReadWrite)
	}
}

func clampWriteCap(limit *int) int {
	if limit == nil {
		return -1
	}
	return *limit
}
