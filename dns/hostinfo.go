// File: dns/hostinfo.go
//
// Package dns implements the worker-pool DNS resolver: IDNA-aware hostname
// resolution into deduplicated address sets with round-robin picking.
package dns

import (
	"fmt"
	"sort"
	"sync/atomic"
	"unicode"

	"github.com/momentics/reactorcore/netaddr"
	"github.com/momentics/reactorcore/xstatus"
	"golang.org/x/net/idna"
)

// HostInfo is the resolve result for one hostname: the original name plus
// deduplicated, sorted IPv4 and IPv6 address sets, and three round-robin
// cursors for address picking.
type HostInfo struct {
	hostname string
	ipv4     []netaddr.IpAddress
	ipv6     []netaddr.IpAddress

	nextIP   atomic.Uint64
	nextIPv4 atomic.Uint64
	nextIPv6 atomic.Uint64
}

// NewHostInfo builds an (as yet unresolved) HostInfo for hostname.
func NewHostInfo(hostname string) *HostInfo {
	return &HostInfo{hostname: hostname}
}

// Hostname returns the original, UTF-8 host name.
func (h *HostInfo) Hostname() string { return h.hostname }

// IPv4 returns the resolved IPv4 addresses.
func (h *HostInfo) IPv4() []netaddr.IpAddress { return h.ipv4 }

// IPv6 returns the resolved IPv6 addresses.
func (h *HostInfo) IPv6() []netaddr.IpAddress { return h.ipv6 }

// IsValid reports whether any address has been resolved.
func (h *HostInfo) IsValid() bool { return len(h.ipv4) > 0 || len(h.ipv6) > 0 }

// SetIpAddress installs the resolved address sets, deduplicating and
// sorting each for deterministic iteration.
func (h *HostInfo) SetIpAddress(ipv4, ipv6 []netaddr.IpAddress) {
	h.ipv4 = dedupSorted(ipv4)
	h.ipv6 = dedupSorted(ipv6)
}

func dedupSorted(in []netaddr.IpAddress) []netaddr.IpAddress {
	seen := make(map[[16]byte]struct{}, len(in))
	out := make([]netaddr.IpAddress, 0, len(in))
	for _, ip := range in {
		key := ip.Bytes()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ip)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// GetDnsResolveName returns the name to actually hand to the resolver:
// ASCII-only hosts pass through unchanged; others are converted to ASCII
// via IDNA UTS-46 nontransitional processing.
func (h *HostInfo) GetDnsResolveName() (string, xstatus.Status) {
	return ToDnsResolveName(h.hostname)
}

// ToDnsResolveName applies the same ASCII-passthrough/IDNA rule to an
// arbitrary host string.
func ToDnsResolveName(host string) (string, xstatus.Status) {
	if isASCII(host) {
		return host, xstatus.OkStatus
	}
	ascii, err := idnaProfile.ToASCII(host)
	if err != nil {
		return "", xstatus.New(xstatus.InvalidArgument, "idna conversion of %q failed: %v", host, err)
	}
	return ascii, xstatus.OkStatus
}

var idnaProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.Transitional(false),
)

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// PickFirstAddress returns the first address, preferring IPv4.
func (h *HostInfo) PickFirstAddress() (netaddr.IpAddress, bool) {
	if ip, ok := h.PickFirstIpv4Address(); ok {
		return ip, true
	}
	return h.PickFirstIpv6Address()
}

// PickFirstIpv4Address returns the first resolved IPv4 address.
func (h *HostInfo) PickFirstIpv4Address() (netaddr.IpAddress, bool) {
	if len(h.ipv4) == 0 {
		return netaddr.IpAddress{}, false
	}
	return h.ipv4[0], true
}

// PickFirstIpv6Address returns the first resolved IPv6 address.
func (h *HostInfo) PickFirstIpv6Address() (netaddr.IpAddress, bool) {
	if len(h.ipv6) == 0 {
		return netaddr.IpAddress{}, false
	}
	return h.ipv6[0], true
}

// PickNextAddress round-robins across IPv4 addresses then IPv6 addresses
// using one combined counter.
func (h *HostInfo) PickNextAddress() (netaddr.IpAddress, bool) {
	n := len(h.ipv4) + len(h.ipv6)
	if n == 0 {
		return netaddr.IpAddress{}, false
	}
	idx := h.nextIP.Add(1) - 1
	idx %= uint64(n)
	if int(idx) < len(h.ipv4) {
		return h.ipv4[idx], true
	}
	return h.ipv6[int(idx)-len(h.ipv4)], true
}

// PickNextIpv4Address round-robins across just the IPv4 addresses.
func (h *HostInfo) PickNextIpv4Address() (netaddr.IpAddress, bool) {
	if len(h.ipv4) == 0 {
		return netaddr.IpAddress{}, false
	}
	idx := (h.nextIPv4.Add(1) - 1) % uint64(len(h.ipv4))
	return h.ipv4[idx], true
}

// PickNextIpv6Address round-robins across just the IPv6 addresses.
func (h *HostInfo) PickNextIpv6Address() (netaddr.IpAddress, bool) {
	if len(h.ipv6) == 0 {
		return netaddr.IpAddress{}, false
	}
	idx := (h.nextIPv6.Add(1) - 1) % uint64(len(h.ipv6))
	return h.ipv6[idx], true
}

// String renders a human-readable summary for debugging/logging.
func (h *HostInfo) String() string {
	return fmt.Sprintf("HostInfo{%s: %d ipv4, %d ipv6}", h.hostname, len(h.ipv4), len(h.ipv6))
}
