// File: netaddr/hostport.go

package netaddr

import (
	"strconv"
	"strings"

	"github.com/momentics/reactorcore/xstatus"
	"golang.org/x/sys/unix"
)

// HostPort is the host/ip/port/scope endpoint tuple. Host and Ip are
// mutually optional (either, both, or neither may be present); Port and
// ScopeID follow the "ok, value" optional idiom instead of pointers so the
// zero value is always a valid, empty HostPort.
type HostPort struct {
	host     string
	hasHost  bool
	ip       IpAddress
	hasIP    bool
	port     uint16
	hasPort  bool
	scope    uint32
	hasScope bool
}

// Host returns the host name and whether it is set.
func (hp HostPort) Host() (string, bool) { return hp.host, hp.hasHost }

// Ip returns the IP address and whether it is set.
func (hp HostPort) Ip() (IpAddress, bool) { return hp.ip, hp.hasIP }

// Port returns the port and whether it is set.
func (hp HostPort) Port() (uint16, bool) { return hp.port, hp.hasPort }

// ScopeID returns the IPv6 scope id and whether it is set.
func (hp HostPort) ScopeID() (uint32, bool) { return hp.scope, hp.hasScope }

// SetHost returns a copy of hp with the host name set.
func (hp HostPort) SetHost(h string) HostPort { hp.host, hp.hasHost = h, true; return hp }

// SetIp returns a copy of hp with the IP set.
func (hp HostPort) SetIp(ip IpAddress) HostPort { hp.ip, hp.hasIP = ip, true; return hp }

// SetPort returns a copy of hp with the port set.
func (hp HostPort) SetPort(p uint16) HostPort { hp.port, hp.hasPort = p, true; return hp }

// SetScopeID returns a copy of hp with the IPv6 scope id set.
func (hp HostPort) SetScopeID(s uint32) HostPort { hp.scope, hp.hasScope = s, true; return hp }

// IsValid reports whether the port is set and non-zero and at least one of
// host or ip is set.
func (hp HostPort) IsValid() bool {
	return hp.hasPort && hp.port != 0 && (hp.hasHost || hp.hasIP)
}

// IsResolved reports whether both ip and a non-zero port are set.
func (hp HostPort) IsResolved() bool {
	return hp.hasPort && hp.port != 0 && hp.hasIP
}

// Update overlays non-empty fields of other onto hp, returning the result.
func (hp HostPort) Update(other HostPort) HostPort {
	if other.hasHost {
		hp.host, hp.hasHost = other.host, true
	}
	if other.hasIP {
		hp.ip, hp.hasIP = other.ip, true
	}
	if other.hasPort {
		hp.port, hp.hasPort = other.port, true
	}
	if other.hasScope {
		hp.scope, hp.hasScope = other.scope, true
	}
	return hp
}

// ParseHostPort implements the <host|ip>:[port] grammar: empty input yields
// an empty HostPort; a bracketed [addr] with no trailing port yields a bare
// IPv6 literal; otherwise the string is split on the LAST colon unless it
// ends in ']', the left side is host-or-IP and the right side a decimal port
// in 1..65535.
func ParseHostPort(s string) (HostPort, xstatus.Status) {
	if s == "" {
		return HostPort{}, xstatus.OkStatus
	}
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return HostPort{}, xstatus.New(xstatus.InvalidArgument, "unterminated ipv6 literal: %q", s)
		}
		ipPart := s[1:end]
		rest := s[end+1:]
		ip, st := ParseIpAddress(ipPart)
		if !st.Ok() {
			return HostPort{}, st
		}
		hp := HostPort{}.SetIp(ip)
		if rest == "" {
			return hp, xstatus.OkStatus
		}
		if !strings.HasPrefix(rest, ":") {
			return HostPort{}, xstatus.New(xstatus.InvalidArgument, "garbage after ipv6 literal: %q", s)
		}
		port, st := parsePort(rest[1:])
		if !st.Ok() {
			return HostPort{}, st
		}
		return hp.SetPort(port), xstatus.OkStatus
	}

	if strings.HasSuffix(s, "]") {
		return HostPort{}, xstatus.New(xstatus.InvalidArgument, "malformed host-port: %q", s)
	}

	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return buildHostOrIP(s)
	}
	left, right := s[:idx], s[idx+1:]
	// A bare (unbracketed) IPv6 literal contains multiple colons; reject it
	// if it looks like an IPv6 address rather than host:port.
	if strings.Count(left, ":") > 0 {
		if _, st := ParseIpAddress(s); st.Ok() {
			return HostPort{}, xstatus.New(xstatus.InvalidArgument, "bare ipv6 literal with port requires brackets: %q", s)
		}
	}
	port, st := parsePort(right)
	if !st.Ok() {
		return HostPort{}, st
	}
	hp, st := buildHostOrIP(left)
	if !st.Ok() {
		return HostPort{}, st
	}
	return hp.SetPort(port), xstatus.OkStatus
}

func buildHostOrIP(s string) (HostPort, xstatus.Status) {
	if s == "" {
		return HostPort{}, xstatus.OkStatus
	}
	if ip, st := ParseIpAddress(s); st.Ok() {
		return HostPort{}.SetIp(ip), xstatus.OkStatus
	}
	return HostPort{}.SetHost(s), xstatus.OkStatus
}

func parsePort(s string) (uint16, xstatus.Status) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n < 1 || n > 65535 {
		return 0, xstatus.New(xstatus.InvalidArgument, "invalid port: %q", s)
	}
	return uint16(n), xstatus.OkStatus
}

// String renders the canonical textual form: bracket-wraps the IP when a
// host is also present, or when the IP is IPv6.
func (hp HostPort) String() string {
	var b strings.Builder
	if hp.hasIP {
		if hp.ip.IsIPv6() || hp.hasHost {
			b.WriteByte('[')
			b.WriteString(hp.ip.String())
			b.WriteByte(']')
		} else {
			b.WriteString(hp.ip.String())
		}
	} else if hp.hasHost {
		b.WriteString(hp.host)
	}
	if hp.hasPort {
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(hp.port), 10))
	}
	return b.String()
}

// ToHostportString returns "ip:port" when the IP is known (bracketing
// IPv6), else "host:port". It fails if !IsValid().
func (hp HostPort) ToHostportString() (string, xstatus.Status) {
	if !hp.IsValid() {
		return "", xstatus.New(xstatus.FailedPrecondition, "host-port is not valid: %v", hp)
	}
	var host string
	if hp.hasIP {
		if hp.ip.IsIPv6() {
			host = "[" + hp.ip.String() + "]"
		} else {
			host = hp.ip.String()
		}
	} else {
		host = hp.host
	}
	return host + ":" + strconv.FormatUint(uint64(hp.port), 10), xstatus.OkStatus
}

// ParseHostPortFromSockAddr sets just ip/port/scope from a unix.Sockaddr.
func ParseHostPortFromSockAddr(sa unix.Sockaddr) (HostPort, xstatus.Status) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := IpAddressFromIPv4(v.Addr[0], v.Addr[1], v.Addr[2], v.Addr[3])
		return HostPort{}.SetIp(ip).SetPort(uint16(v.Port)), xstatus.OkStatus
	case *unix.SockaddrInet6:
		var raw [16]byte
		copy(raw[:], v.Addr[:])
		ip := IpAddressFromBytes(raw)
		hp := HostPort{}.SetIp(ip).SetPort(uint16(v.Port))
		if v.ZoneId != 0 {
			hp = hp.SetScopeID(v.ZoneId)
		}
		return hp, xstatus.OkStatus
	default:
		return HostPort{}, xstatus.New(xstatus.InvalidArgument, "unsupported sockaddr family")
	}
}

// ToSockAddr builds a unix.Sockaddr from the resolved ip/port/scope.
// Fails with failed-precondition if !IsResolved().
func (hp HostPort) ToSockAddr() (unix.Sockaddr, xstatus.Status) {
	if !hp.IsResolved() {
		return nil, xstatus.New(xstatus.FailedPrecondition, "host-port is not resolved: %v", hp)
	}
	return ToSockaddr(hp.ip, hp.port, hp.scope), xstatus.OkStatus
}
