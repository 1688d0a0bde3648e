// File: cmd/reactorctl/main.go
//
// reactorctl is a small demonstration binary exercising the reactor core
// end to end: a TCP echo server, and optionally a TLS echo server sharing
// the same reactor loop.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/reactorcore/netaddr"
	"github.com/momentics/reactorcore/reactor"
	"github.com/momentics/reactorcore/tcp"
	"github.com/momentics/reactorcore/tlsconn"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9700", "TCP echo listen address")
	tlsAddr := flag.String("tls-addr", "", "TLS echo listen address (empty disables TLS)")
	certFile := flag.String("cert", "", "TLS certificate PEM file (required with -tls-addr)")
	keyFile := flag.String("key", "", "TLS private key PEM file (required with -tls-addr)")
	detailLog := flag.Bool("v", false, "enable detailed reactor logging")
	flag.Parse()

	params := reactor.DefaultParams()
	params.DetailLog = *detailLog
	sel, err := reactor.NewSelector(params)
	if err != nil {
		log.Fatalf("new selector: %v", err)
	}
	defer sel.Close()

	local, st := netaddr.ParseHostPort(*addr)
	if !st.Ok() {
		log.Fatalf("parse -addr: %v", st)
	}
	acceptor := tcp.NewAcceptor(sel, tcp.DefaultAcceptorParams())
	acceptor.SetAcceptHandler(echoAcceptHandler)
	if st := acceptor.Listen(local); !st.Ok() {
		log.Fatalf("listen %s: %v", *addr, st)
	}
	fmt.Printf("tcp echo listening on %s\n", acceptor.LocalAddress())

	var tlsAcceptor *tlsconn.Acceptor
	if *tlsAddr != "" {
		if *certFile == "" || *keyFile == "" {
			log.Fatalf("-tls-addr requires -cert and -key")
		}
		cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
		if err != nil {
			log.Fatalf("load tls key pair: %v", err)
		}
		tlsLocal, st := netaddr.ParseHostPort(*tlsAddr)
		if !st.Ok() {
			log.Fatalf("parse -tls-addr: %v", st)
		}
		rawAcceptor := tcp.NewAcceptor(sel, tcp.DefaultAcceptorParams())
		tlsAcceptor = tlsconn.NewAcceptor(rawAcceptor, &tls.Config{Certificates: []tls.Certificate{cert}})
		tlsAcceptor.SetAcceptHandler(tlsEchoAcceptHandler)
		if st := rawAcceptor.Listen(tlsLocal); !st.Ok() {
			log.Fatalf("listen %s: %v", *tlsAddr, st)
		}
		fmt.Printf("tls echo listening on %s\n", rawAcceptor.LocalAddress())
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			log.Printf("accepted=%d wrap_errors=%d",
				acceptor.Stats.ConnectionsAccepted.Load(),
				acceptor.Stats.ConnectionWrapErrors.Load())
		}
	}()

	loopDone := make(chan error, 1)
	go func() { loopDone <- sel.Loop() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("shutting down")
	sel.MakeLoopExit()
	if err := <-loopDone; err != nil {
		log.Fatalf("loop: %v", err)
	}
}
