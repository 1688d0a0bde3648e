// File: tcp/params.go
//
// Package tcp implements the TCP acceptor and TCP connection state
// machines: non-blocking connect/read/write with half-close and flush
// discipline, grounded on original_source/whisperlib/net/connection.h and
// on the teacher's raw-syscall style in internal/transport/transport_linux.go.
package tcp

import "time"

// ConnectionParams enumerates a TcpConnection's tunables. The zero value is
// not directly usable; build with DefaultConnectionParams and the fluent
// setters below.
type ConnectionParams struct {
	sendBufferSize *int
	recvBufferSize *int
	readLimit      *int
	writeLimit     *int
	BlockSize      int
	ShutdownLingerTimeout time.Duration
	DetailLog      bool
}

// DefaultConnectionParams returns the spec's documented defaults.
func DefaultConnectionParams() ConnectionParams {
	return ConnectionParams{
		BlockSize:             16 * 1024,
		ShutdownLingerTimeout: 5 * time.Second,
	}
}

func (p ConnectionParams) SetSendBufferSize(n int) ConnectionParams { p.sendBufferSize = &n; return p }
func (p ConnectionParams) SetRecvBufferSize(n int) ConnectionParams { p.recvBufferSize = &n; return p }
func (p ConnectionParams) SetReadLimit(n int) ConnectionParams      { p.readLimit = &n; return p }
func (p ConnectionParams) SetWriteLimit(n int) ConnectionParams     { p.writeLimit = &n; return p }
func (p ConnectionParams) SetBlockSize(n int) ConnectionParams {
	p.BlockSize = n
	return p
}
func (p ConnectionParams) SetShutdownLingerTimeout(d time.Duration) ConnectionParams {
	p.ShutdownLingerTimeout = d
	return p
}
func (p ConnectionParams) SetDetailLog(v bool) ConnectionParams { p.DetailLog = v; return p }

func clampToLimit(n int, limit *int) int {
	if limit != nil && n > *limit {
		return *limit
	}
	return n
}

// AcceptorParams enumerates a TcpAcceptor's tunables.
type AcceptorParams struct {
	AcceptorThreads  *AcceptorThreads
	ConnectionParams ConnectionParams
	MaxBacklog       int
	DetailLog        bool
}

// DefaultAcceptorParams returns the spec's documented defaults.
func DefaultAcceptorParams() AcceptorParams {
	return AcceptorParams{
		ConnectionParams: DefaultConnectionParams(),
		MaxBacklog:       100,
	}
}

func (p AcceptorParams) SetAcceptorThreads(t *AcceptorThreads) AcceptorParams {
	p.AcceptorThreads = t
	return p
}
func (p AcceptorParams) SetConnectionParams(cp ConnectionParams) AcceptorParams {
	p.ConnectionParams = cp
	return p
}
func (p AcceptorParams) SetMaxBacklog(n int) AcceptorParams { p.MaxBacklog = n; return p }
func (p AcceptorParams) SetDetailLog(v bool) AcceptorParams { p.DetailLog = v; return p }
