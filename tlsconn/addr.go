package tlsconn

import "github.com/momentics/reactorcore/netaddr"

// hostPortAddr adapts a netaddr.HostPort to net.Addr, purely so crypto/tls's
// net.Conn contract has something to return from LocalAddr/RemoteAddr.
type hostPortAddr netaddr.HostPort

func (a hostPortAddr) Network() string { return "tcp" }
func (a hostPortAddr) String() string  { return netaddr.HostPort(a).String() }
