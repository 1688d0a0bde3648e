// File: tcp/acceptor.go
//
// TcpAcceptor: a listening socket that, on each read-ready event, accepts
// exactly one pending connection, optionally filters it by peer address, and
// hands it to a worker reactor for Wrap()ing. Grounded on
// original_source/whisperlib/net/connection.h's Acceptor/TcpAcceptor and its
// Statistics struct.
package tcp

import (
	"log"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/reactorcore/netaddr"
	"github.com/momentics/reactorcore/reactor"
	"github.com/momentics/reactorcore/xstatus"
)

// FilterHandler decides whether an accepted peer should be kept. Returning
// false drops the connection before it is ever wrapped.
type FilterHandler func(peer netaddr.HostPort) bool

// AcceptHandler receives a freshly Wrap()ed Connection, already registered
// with its target reactor and in state Connected.
type AcceptHandler func(*Connection)

// AcceptorCloseHandler is called once when the listening socket itself goes
// away.
type AcceptorCloseHandler func(xstatus.Status)

// Statistics are the acceptor's lifetime atomic counters.
type Statistics struct {
	HangUps                    atomic.Uint64
	Errors                     atomic.Uint64
	PeerParseErrors            atomic.Uint64
	FilteredConnections        atomic.Uint64
	ConnectionsAcceptScheduled atomic.Uint64
	ConnectionsAccepted        atomic.Uint64
	ConnectionWrapErrors       atomic.Uint64
	ConnectionsInitialized     atomic.Uint64
}

// Acceptor is a listening TCP socket dispatched by one reactor.Selector.
type Acceptor struct {
	reactor.Base

	sel    *reactor.Selector
	params AcceptorParams

	fd    int
	state atomic.Int32

	localAddr netaddr.HostPort

	filterHandler FilterHandler
	acceptHandler AcceptHandler
	closeHandler  AcceptorCloseHandler

	Stats Statistics
}

// NewAcceptor builds an unbound Acceptor (state AcceptorDisconnected) on sel.
func NewAcceptor(sel *reactor.Selector, params AcceptorParams) *Acceptor {
	return &Acceptor{
		Base:   reactor.NewBase(),
		sel:    sel,
		params: params,
		fd:     reactor.InvalidFd,
	}
}

func (a *Acceptor) SetFilterHandler(h FilterHandler)       { a.filterHandler = h }
func (a *Acceptor) SetAcceptHandler(h AcceptHandler)       { a.acceptHandler = h }
func (a *Acceptor) SetCloseHandler(h AcceptorCloseHandler) { a.closeHandler = h }

// GetFd implements reactor.Selectable.
func (a *Acceptor) GetFd() int { return a.fd }

// State returns the acceptor's current lifecycle state.
func (a *Acceptor) State() AcceptorState { return AcceptorState(a.state.Load()) }

// LocalAddress returns the bound local endpoint.
func (a *Acceptor) LocalAddress() netaddr.HostPort { return a.localAddr }

// Listen binds and listens on local, then registers with the owning
// reactor. local's Ip (if present) selects the address family; an empty Ip
// binds to the IPv4 wildcard address.
func (a *Acceptor) Listen(local netaddr.HostPort) xstatus.Status {
	if a.State() != AcceptorDisconnected {
		return xstatus.New(xstatus.FailedPrecondition, "acceptor already listening")
	}
	domain := unix.AF_INET
	ip, hasIP := local.Ip()
	if hasIP && ip.IsIPv6() {
		domain = unix.AF_INET6
	}
	port, _ := local.Port()

	fd, st := newNonBlockingSocket(domain)
	if !st.Ok() {
		return st
	}
	if st := setReuseAddr(fd); !st.Ok() {
		unix.Close(fd)
		return st
	}

	var sa unix.Sockaddr
	if hasIP {
		sa = netaddr.ToSockaddr(ip, port, 0)
	} else if domain == unix.AF_INET {
		sa = &unix.SockaddrInet4{Port: int(port)}
	} else {
		sa = &unix.SockaddrInet6{Port: int(port)}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return xstatus.ErrnoToStatus(err.(unix.Errno))
	}
	backlog := a.params.MaxBacklog
	if backlog <= 0 {
		backlog = 100
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return xstatus.ErrnoToStatus(err.(unix.Errno))
	}

	a.fd = fd
	if boundSa, err := unix.Getsockname(fd); err == nil {
		if hp, st := netaddr.ParseHostPortFromSockAddr(boundSa); st.Ok() {
			a.localAddr = hp
		}
	}
	if err := a.sel.Register(a, reactor.WantRead|reactor.WantError); err != nil {
		a.fd = reactor.InvalidFd
		unix.Close(fd)
		return xstatus.FromError(err)
	}
	a.state.Store(int32(AcceptorListening))
	return xstatus.OkStatus
}

// HandleReadEvent accepts exactly one pending connection per call, letting
// the reactor loop revisit this fd if more are queued.
func (a *Acceptor) HandleReadEvent(ev reactor.EventData) bool {
	nfd, sa, err := unix.Accept4(a.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if xstatus.IsWouldBlock(err) {
			return true
		}
		a.logDetail("accept4 error: %v", err)
		return true
	}
	a.Stats.ConnectionsAcceptScheduled.Add(1)

	peer, st := netaddr.ParseHostPortFromSockAddr(sa)
	if !st.Ok() {
		unix.Close(nfd)
		a.Stats.PeerParseErrors.Add(1)
		return true
	}
	if a.filterHandler != nil && !a.filterHandler(peer) {
		unix.Close(nfd)
		a.Stats.FilteredConnections.Add(1)
		return true
	}

	target := a.params.AcceptorThreads.Next()
	if target == nil {
		target = a.sel
	}
	target.RunInSelectLoop(func() { a.finishAccept(nfd, target) })
	return true
}

func (a *Acceptor) finishAccept(fd int, target *reactor.Selector) {
	conn := NewConnection(target, a.params.ConnectionParams, nil)
	if st := conn.Wrap(fd); !st.Ok() {
		unix.Close(fd)
		a.Stats.ConnectionWrapErrors.Add(1)
		return
	}
	a.Stats.ConnectionsAccepted.Add(1)
	if a.acceptHandler == nil {
		log.Printf("tcp: accepted connection with no accept handler set, closing")
		conn.ForceClose()
		return
	}
	a.acceptHandler(conn)
	a.Stats.ConnectionsInitialized.Add(1)
}

// HandleWriteEvent is never exercised: an Acceptor never registers interest
// in write readiness.
func (a *Acceptor) HandleWriteEvent(ev reactor.EventData) bool { return true }

// HandleErrorEvent implements reactor.Selectable.
func (a *Acceptor) HandleErrorEvent(ev reactor.EventData) bool {
	if a.sel.IsRemoteHangUp(ev.Raw) {
		a.Stats.HangUps.Add(1)
		return true
	}
	a.Stats.Errors.Add(1)
	errno := getSocketError(a.fd)
	a.internalClose(xstatus.ErrnoToStatus(errno))
	return false
}

// Close implements reactor.Selectable.
func (a *Acceptor) Close() { a.internalClose(xstatus.OkStatus) }

func (a *Acceptor) internalClose(st xstatus.Status) {
	if a.State() == AcceptorDisconnected && a.fd == reactor.InvalidFd {
		return
	}
	if a.fd != reactor.InvalidFd {
		a.sel.Unregister(a)
		unix.Close(a.fd)
		a.fd = reactor.InvalidFd
	}
	a.state.Store(int32(AcceptorDisconnected))
	if a.closeHandler != nil {
		a.closeHandler(st)
	}
}

func (a *Acceptor) logDetail(format string, args ...any) {
	if a.params.DetailLog {
		log.Printf(format, args...)
	}
}
