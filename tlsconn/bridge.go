// File: tlsconn/bridge.go
//
// bridge is the in-process net.Conn crypto/tls drives as its raw transport.
// Ciphertext arriving from the network is pushed in (non-blocking, from the
// reactor thread); crypto/tls's blocking Read drains it. Ciphertext crypto/tls
// writes out is forwarded immediately via a callback, rather than buffered
// here, so Write never blocks the pump goroutine that calls it.
package tlsconn

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/momentics/reactorcore/cord"
)

type bridge struct {
	mu     sync.Mutex
	cond   *sync.Cond
	toTLS  *cord.Cord
	closed bool

	onCiphertext func([]byte)
	localAddr    net.Addr
	remoteAddr   net.Addr
}

func newBridge(onCiphertext func([]byte), local, remote net.Addr) *bridge {
	b := &bridge{
		toTLS:        cord.New(),
		onCiphertext: onCiphertext,
		localAddr:    local,
		remoteAddr:   remote,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// PushCiphertext hands network-received ciphertext to the TLS layer's Read
// loop. Never blocks; safe to call from the reactor thread.
func (b *bridge) PushCiphertext(data []byte) {
	if len(data) == 0 {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.mu.Lock()
	b.toTLS.Append(cp)
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Read implements net.Conn for crypto/tls's benefit: blocks until ciphertext
// is available or the bridge is closed.
func (b *bridge) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.toTLS.IsEmpty() && !b.closed {
		b.cond.Wait()
	}
	if b.toTLS.IsEmpty() {
		return 0, io.EOF
	}
	chunks, n := cord.ToIovec(b.toTLS, len(p))
	copied := 0
	for _, c := range chunks {
		copied += copy(p[copied:], c)
	}
	b.toTLS.RemovePrefix(n)
	return copied, nil
}

// Write implements net.Conn: hands ciphertext straight to the reactor-side
// callback, which enqueues it on the underlying tcp.Connection's output cord.
func (b *bridge) Write(p []byte) (int, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	b.onCiphertext(p)
	return len(p), nil
}

// Close unblocks any pending Read with io.EOF.
func (b *bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
	return nil
}

func (b *bridge) LocalAddr() net.Addr  { return b.localAddr }
func (b *bridge) RemoteAddr() net.Addr { return b.remoteAddr }

func (b *bridge) SetDeadline(time.Time) error      { return nil }
func (b *bridge) SetReadDeadline(time.Time) error  { return nil }
func (b *bridge) SetWriteDeadline(time.Time) error { return nil }
