package tlsconn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/momentics/reactorcore/netaddr"
	"github.com/momentics/reactorcore/reactor"
	"github.com/momentics/reactorcore/tcp"
	"github.com/momentics/reactorcore/xstatus"
)

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("x509 key pair: %v", err)
	}
	return cert
}

// TestTLSLoopbackHandshakeAndEcho exercises the TLS loopback concrete
// scenario: a client TLS-connects to a server, both handshakes complete, and
// a plaintext message survives an encrypt/decrypt round trip.
func TestTLSLoopbackHandshakeAndEcho(t *testing.T) {
	sel, err := reactor.NewSelector(reactor.DefaultParams())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	defer sel.Close()

	cert := selfSignedCert(t)
	serverCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	clientCfg := &tls.Config{InsecureSkipVerify: true}

	rawAcceptor := tcp.NewAcceptor(sel, tcp.DefaultAcceptorParams())
	tlsAcceptor := NewAcceptor(rawAcceptor, serverCfg)

	serverGotEcho := make(chan struct{})
	tlsAcceptor.SetAcceptHandler(func(sc *Connection) {
		sc.SetReadHandler(func() xstatus.Status {
			for _, chunk := range sc.InBuffer().Chunks() {
				sc.Write(chunk)
			}
			sc.InBuffer().RemovePrefix(sc.InBuffer().Size())
			close(serverGotEcho)
			return xstatus.OkStatus
		})
	})

	local := netaddr.HostPort{}.SetIp(netaddr.IPv4Localhost).SetPort(0)
	if st := rawAcceptor.Listen(local); !st.Ok() {
		t.Fatalf("listen: %v", st)
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- sel.Loop() }()
	defer func() {
		sel.MakeLoopExit()
		<-loopDone
	}()

	clientEcho := make(chan []byte, 1)
	handshakeErr := make(chan xstatus.Status, 1)

	sel.RunInSelectLoop(func() {
		rawClient := tcp.NewConnection(sel, tcp.DefaultConnectionParams(), nil)
		var tlsClient *Connection
		rawClient.SetConnectHandler(func() {
			tlsClient = NewClient(rawClient, clientCfg)
			tlsClient.SetHandshakeHandler(func(st xstatus.Status) {
				handshakeErr <- st
				if st.Ok() {
					tlsClient.Write([]byte("ping"))
				}
			})
			tlsClient.SetReadHandler(func() xstatus.Status {
				var got []byte
				for _, chunk := range tlsClient.InBuffer().Chunks() {
					got = append(got, chunk...)
				}
				tlsClient.InBuffer().RemovePrefix(tlsClient.InBuffer().Size())
				clientEcho <- got
				return xstatus.OkStatus
			})
		})
		if st := rawClient.Connect(rawAcceptor.LocalAddress()); !st.Ok() {
			handshakeErr <- st
		}
	})

	select {
	case st := <-handshakeErr:
		if !st.Ok() {
			t.Fatalf("handshake: %v", st)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handshake never completed")
	}

	select {
	case <-serverGotEcho:
	case <-time.After(3 * time.Second):
		t.Fatal("server never received plaintext")
	}

	select {
	case got := <-clientEcho:
		if string(got) != "ping" {
			t.Fatalf("echo = %q, want %q", got, "ping")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("client never received echo")
	}
}

// TestTLSAcceptorGatesOnHandshake exercises the "handshake fails before the
// accept handler fires" concrete scenario: a server requiring a client
// certificate the client never presents must never invoke the accept
// handler, and must tear the half-built connection down instead.
func TestTLSAcceptorGatesOnHandshake(t *testing.T) {
	sel, err := reactor.NewSelector(reactor.DefaultParams())
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	defer sel.Close()

	cert := selfSignedCert(t)
	serverCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAnyClientCert,
	}
	// Under TLS 1.3 the client finishes its handshake before the server has
	// checked the client certificate, so the client is held to TLS 1.2,
	// where the server's rejection arrives during the client's handshake.
	clientCfg := &tls.Config{InsecureSkipVerify: true, MaxVersion: tls.VersionTLS12}

	rawAcceptor := tcp.NewAcceptor(sel, tcp.DefaultAcceptorParams())
	tlsAcceptor := NewAcceptor(rawAcceptor, serverCfg)

	acceptHandlerCalled := make(chan struct{}, 1)
	tlsAcceptor.SetAcceptHandler(func(sc *Connection) {
		acceptHandlerCalled <- struct{}{}
	})

	local := netaddr.HostPort{}.SetIp(netaddr.IPv4Localhost).SetPort(0)
	if st := rawAcceptor.Listen(local); !st.Ok() {
		t.Fatalf("listen: %v", st)
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- sel.Loop() }()
	defer func() {
		sel.MakeLoopExit()
		<-loopDone
	}()

	clientHandshakeErr := make(chan xstatus.Status, 1)

	sel.RunInSelectLoop(func() {
		rawClient := tcp.NewConnection(sel, tcp.DefaultConnectionParams(), nil)
		rawClient.SetConnectHandler(func() {
			tlsClient := NewClient(rawClient, clientCfg)
			tlsClient.SetHandshakeHandler(func(st xstatus.Status) {
				clientHandshakeErr <- st
			})
		})
		if st := rawClient.Connect(rawAcceptor.LocalAddress()); !st.Ok() {
			clientHandshakeErr <- st
		}
	})

	select {
	case st := <-clientHandshakeErr:
		if st.Ok() {
			t.Fatalf("expected client handshake to fail without a client certificate")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("client handshake never completed")
	}

	select {
	case <-acceptHandlerCalled:
		t.Fatal("accept handler must not fire for a connection that failed its handshake")
	case <-time.After(200 * time.Millisecond):
	}
}
