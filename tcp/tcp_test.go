package tcp

import (
	"testing"
	"time"

	"github.com/momentics/reactorcore/netaddr"
	"github.com/momentics/reactorcore/reactor"
	"github.com/momentics/reactorcore/xstatus"
)

func newTestSelector(t *testing.T) *reactor.Selector {
	t.Helper()
	sel, err := reactor.NewSelector(reactor.DefaultParams())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	return sel
}

func runSelector(sel *reactor.Selector) chan error {
	done := make(chan error, 1)
	go func() { done <- sel.Loop() }()
	return done
}

// TestBindAcceptEcho exercises the "bind and accept, then echo one message"
// concrete scenario: a client connects, sends a line, and the server echoes
// it back before either side closes.
func TestBindAcceptEcho(t *testing.T) {
	sel := newTestSelector(t)
	defer sel.Close()

	acceptor := NewAcceptor(sel, DefaultAcceptorParams())
	accepted := make(chan *Connection, 1)
	acceptor.SetAcceptHandler(func(c *Connection) {
		c.SetReadHandler(func() xstatus.Status {
			data := c.InBuffer().Chunks()
			for _, chunk := range data {
				c.OutBuffer().Append(chunk)
			}
			c.InBuffer().RemovePrefix(c.InBuffer().Size())
			sel.EnableWriteCallback(c, true)
			return xstatus.OkStatus
		})
		accepted <- c
	})

	local := netaddr.HostPort{}.SetIp(netaddr.IPv4Localhost).SetPort(0)
	if st := acceptor.Listen(local); !st.Ok() {
		t.Fatalf("listen: %v", st)
	}

	done := runSelector(sel)
	defer func() {
		sel.MakeLoopExit()
		<-done
	}()

	clientDone := make(chan struct{})
	var clientErr error
	var clientEcho []byte

	sel.RunInSelectLoop(func() {
		client := NewConnection(sel, DefaultConnectionParams(), nil)
		client.SetConnectHandler(func() {
			client.OutBuffer().Append([]byte("hello"))
			sel.EnableWriteCallback(client, true)
		})
		client.SetReadHandler(func() xstatus.Status {
			for _, chunk := range client.InBuffer().Chunks() {
				clientEcho = append(clientEcho, chunk...)
			}
			client.InBuffer().RemovePrefix(client.InBuffer().Size())
			if len(clientEcho) >= len("hello") {
				close(clientDone)
			}
			return xstatus.OkStatus
		})
		if st := client.Connect(acceptor.LocalAddress()); !st.Ok() {
			clientErr = st
			close(clientDone)
		}
	})

	select {
	case <-clientDone:
	case <-time.After(2 * time.Second):
		t.Fatal("echo round trip never completed")
	}
	if clientErr != nil {
		t.Fatalf("connect: %v", clientErr)
	}
	if string(clientEcho) != "hello" {
		t.Fatalf("echo = %q, want %q", clientEcho, "hello")
	}
}

// TestGracefulShutdownDrainsOutput exercises FlushAndClose: queued output
// must reach the peer before the write half shuts down.
func TestGracefulShutdownDrainsOutput(t *testing.T) {
	sel := newTestSelector(t)
	defer sel.Close()

	acceptor := NewAcceptor(sel, DefaultAcceptorParams())
	acceptor.SetAcceptHandler(func(c *Connection) {
		c.OutBuffer().Append([]byte("bye"))
		sel.EnableWriteCallback(c, true)
		c.FlushAndClose()
	})
	local := netaddr.HostPort{}.SetIp(netaddr.IPv4Localhost).SetPort(0)
	if st := acceptor.Listen(local); !st.Ok() {
		t.Fatalf("listen: %v", st)
	}

	done := runSelector(sel)
	defer func() {
		sel.MakeLoopExit()
		<-done
	}()

	received := make(chan []byte, 1)
	closedDirectives := make(chan CloseDirective, 2)

	sel.RunInSelectLoop(func() {
		client := NewConnection(sel, DefaultConnectionParams(), nil)
		var buf []byte
		client.SetReadHandler(func() xstatus.Status {
			for _, chunk := range client.InBuffer().Chunks() {
				buf = append(buf, chunk...)
			}
			client.InBuffer().RemovePrefix(client.InBuffer().Size())
			return xstatus.OkStatus
		})
		client.SetCloseHandler(func(st xstatus.Status, dir CloseDirective) {
			if dir == CloseRead {
				received <- buf
			}
			closedDirectives <- dir
		})
		client.Connect(acceptor.LocalAddress())
	})

	select {
	case got := <-received:
		if string(got) != "bye" {
			t.Fatalf("received = %q, want %q", got, "bye")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never flushed output before closing")
	}
}
