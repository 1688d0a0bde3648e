package tlsconn

import (
	"crypto/tls"

	"github.com/momentics/reactorcore/tcp"
	"github.com/momentics/reactorcore/xstatus"
)

// AcceptHandler receives a server-side Connection only after its TLS
// handshake has already completed successfully; a connection that fails to
// handshake is force-closed before this handler is ever called.
type AcceptHandler func(*Connection)

// Acceptor wraps a tcp.Acceptor, promoting every accepted tcp.Connection to
// a TLS server Connection under cfg before handing it to the application.
type Acceptor struct {
	inner *tcp.Acceptor
	cfg   *tls.Config
	onAccept AcceptHandler
}

// NewAcceptor builds a TLS acceptor around a freshly constructed tcp.Acceptor.
func NewAcceptor(inner *tcp.Acceptor, cfg *tls.Config) *Acceptor {
	a := &Acceptor{inner: inner, cfg: cfg}
	inner.SetAcceptHandler(func(raw *tcp.Connection) {
		conn := NewServer(raw, a.cfg)
		conn.SetHandshakeHandler(func(st xstatus.Status) {
			if !st.Ok() {
				conn.ForceClose()
				return
			}
			if a.onAccept != nil {
				a.onAccept(conn)
			}
		})
	})
	return a
}

// SetAcceptHandler installs the callback invoked for every accepted TLS
// connection.
func (a *Acceptor) SetAcceptHandler(h AcceptHandler) { a.onAccept = h }

// Underlying exposes the wrapped tcp.Acceptor (for Listen, Stats, etc).
func (a *Acceptor) Underlying() *tcp.Acceptor { return a.inner }
