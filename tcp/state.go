package tcp

// ConnState is a TcpConnection's lifecycle state.
type ConnState int32

const (
	Disconnected ConnState = iota
	Resolving
	Connecting
	Connected
	Flushing
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Resolving:
		return "resolving"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Flushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// AcceptorState is a TcpAcceptor's lifecycle state.
type AcceptorState int32

const (
	AcceptorDisconnected AcceptorState = iota
	AcceptorListening
)

// CloseDirective tells a connection's close handler which half (or both) of
// the connection just went away.
type CloseDirective int

const (
	CloseRead CloseDirective = iota
	CloseWrite
	CloseReadWrite
)

func (d CloseDirective) String() string {
	switch d {
	case CloseRead:
		return "read"
	case CloseWrite:
		return "write"
	case CloseReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}
