// File: netaddr/ipaddress.go
//
// Package netaddr implements the address model: a fixed-size IpAddress
// (IPv4 stored in IPv4-mapped-IPv6 form) and the HostPort endpoint triple.
package netaddr

import (
	"net"

	"github.com/momentics/reactorcore/xstatus"
	"golang.org/x/sys/unix"
)

// IpAddress is a 16-byte address in network order. IPv4 addresses are held
// in IPv4-mapped-IPv6 form (10 zero bytes, 0xFF 0xFF, then the 4 IPv4
// bytes); IPv6 addresses are held as their own 16 bytes.
type IpAddress struct {
	addr [16]byte
}

const ipv4Index = 12

var v4MappedPrefix = [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

// IPv4Localhost is 127.0.0.1.
var IPv4Localhost = MustIpAddressFromIPv4(127, 0, 0, 1)

// IPv6Localhost is ::1.
var IPv6Localhost = IpAddress{addr: [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}}

// IpAddressFromIPv4 builds an IpAddress from four host-order octets.
func IpAddressFromIPv4(a, b, c, d byte) IpAddress {
	var ip IpAddress
	copy(ip.addr[:12], v4MappedPrefix[:])
	ip.addr[12], ip.addr[13], ip.addr[14], ip.addr[15] = a, b, c, d
	return ip
}

// MustIpAddressFromIPv4 is IpAddressFromIPv4 for constant construction.
func MustIpAddressFromIPv4(a, b, c, d byte) IpAddress { return IpAddressFromIPv4(a, b, c, d) }

// IpAddressFromBytes builds an IpAddress from a 16-byte buffer, copying it.
func IpAddressFromBytes(b [16]byte) IpAddress { return IpAddress{addr: b} }

// IsIPv4 reports whether the address carries the IPv4-mapped-IPv6 prefix.
func (ip IpAddress) IsIPv4() bool {
	for i := 0; i < 12; i++ {
		if ip.addr[i] != v4MappedPrefix[i] {
			return false
		}
	}
	return true
}

// IsIPv6 is the negation of IsIPv4.
func (ip IpAddress) IsIPv6() bool { return !ip.IsIPv4() }

// IsLocalLink reports whether ip falls in 169.254.0.0/16 (v4) or exactly
// fe80:0000:0000:0000::/64 (v6).
func (ip IpAddress) IsLocalLink() bool {
	if ip.IsIPv4() {
		return ip.addr[12] == 169 && ip.addr[13] == 254
	}
	if ip.addr[0] != 0xfe || ip.addr[1] != 0x80 {
		return false
	}
	for i := 2; i < 8; i++ {
		if ip.addr[i] != 0 {
			return false
		}
	}
	return true
}

// IPv4 returns the IPv4 octets in host-visible order; only meaningful when
// IsIPv4() is true.
func (ip IpAddress) IPv4() [4]byte {
	var out [4]byte
	copy(out[:], ip.addr[ipv4Index:])
	return out
}

// IPv6 returns the full 16-byte representation.
func (ip IpAddress) IPv6() [16]byte { return ip.addr }

// Bytes returns the raw 16-byte network-order representation.
func (ip IpAddress) Bytes() [16]byte { return ip.addr }

// Equal reports byte-wise equality.
func (ip IpAddress) Equal(other IpAddress) bool { return ip.addr == other.addr }

// Less defines a total lexicographic order over the 16 bytes, so IpAddress
// can be used as a deterministic sort/map key.
func (ip IpAddress) Less(other IpAddress) bool {
	for i := 0; i < 16; i++ {
		if ip.addr[i] != other.addr[i] {
			return ip.addr[i] < other.addr[i]
		}
	}
	return false
}

// String renders the canonical textual form (dotted-quad for v4, net.IP's
// textual form for v6).
func (ip IpAddress) String() string {
	return ip.toNetIP().String()
}

func (ip IpAddress) toNetIP() net.IP {
	b := ip.addr
	return net.IP(b[:])
}

// ParseIpAddress parses an IPv4 dotted quad or an IPv6 textual form.
func ParseIpAddress(s string) (IpAddress, xstatus.Status) {
	parsed := net.ParseIP(s)
	if parsed == nil {
		return IpAddress{}, xstatus.New(xstatus.InvalidArgument, "not an ip address: %q", s)
	}
	v4 := parsed.To4()
	if v4 != nil {
		return IpAddressFromIPv4(v4[0], v4[1], v4[2], v4[3]), xstatus.OkStatus
	}
	v6 := parsed.To16()
	if v6 == nil {
		return IpAddress{}, xstatus.New(xstatus.InvalidArgument, "not an ip address: %q", s)
	}
	var raw [16]byte
	copy(raw[:], v6)
	return IpAddressFromBytes(raw), xstatus.OkStatus
}

// ParseIpAddressFromSockaddr extracts an IpAddress from a unix.Sockaddr,
// requiring AF_INET or AF_INET6.
func ParseIpAddressFromSockaddr(sa unix.Sockaddr) (IpAddress, xstatus.Status) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return IpAddressFromIPv4(v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3]), xstatus.OkStatus
	case *unix.SockaddrInet6:
		var raw [16]byte
		copy(raw[:], v.Addr[:])
		return IpAddressFromBytes(raw), xstatus.OkStatus
	default:
		return IpAddress{}, xstatus.New(xstatus.InvalidArgument, "unsupported sockaddr family")
	}
}

// ToSockaddr builds a unix.Sockaddr for this address with the given port
// (host order) and, for IPv6, scope id.
func ToSockaddr(ip IpAddress, port uint16, scopeID uint32) unix.Sockaddr {
	if ip.IsIPv4() {
		v4 := ip.IPv4()
		return &unix.SockaddrInet4{Port: int(port), Addr: v4}
	}
	return &unix.SockaddrInet6{Port: int(port), ZoneId: scopeID, Addr: ip.IPv6()}
}
