package dns

import (
	"testing"

	"github.com/momentics/reactorcore/netaddr"
	"github.com/momentics/reactorcore/xstatus"
)

func ipv4(n byte) netaddr.IpAddress {
	return netaddr.IpAddressFromIPv4(10, 0, 0, n)
}

func TestPickNextAddressRoundRobin(t *testing.T) {
	h := NewHostInfo("example.com")
	var v4 []netaddr.IpAddress
	for i := byte(0); i < 20; i++ {
		v4 = append(v4, ipv4(i))
	}
	var v6 []netaddr.IpAddress
	for i := 0; i < 10; i++ {
		ip, _ := netaddr.ParseIpAddress("2001:db8::" + string(rune('0'+i)))
		v6 = append(v6, ip)
	}
	h.SetIpAddress(v4, v6)

	n := len(h.IPv4()) + len(h.IPv6())
	if n != 30 {
		t.Fatalf("n = %d, want 30", n)
	}

	seen := make(map[[16]byte]int)
	for i := 0; i < 30; i++ {
		ip, ok := h.PickNextAddress()
		if !ok {
			t.Fatalf("pick %d failed", i)
		}
		seen[ip.Bytes()]++
	}
	for k, v := range seen {
		if v != 1 {
			t.Fatalf("address %v visited %d times, want 1", k, v)
		}
	}
	if len(seen) != 30 {
		t.Fatalf("distinct addresses = %d, want 30", len(seen))
	}

	seen2 := make(map[[16]byte]int)
	for i := 0; i < 60; i++ {
		ip, _ := h.PickNextAddress()
		seen2[ip.Bytes()]++
	}
	for k, v := range seen2 {
		if v != 2 {
			t.Fatalf("address %v visited %d times over 60 calls, want 2", k, v)
		}
	}
}

func TestPickFirstPrefersIPv4(t *testing.T) {
	h := NewHostInfo("example.com")
	ip6, _ := netaddr.ParseIpAddress("::1")
	h.SetIpAddress([]netaddr.IpAddress{ipv4(1)}, []netaddr.IpAddress{ip6})
	ip, ok := h.PickFirstAddress()
	if !ok || !ip.IsIPv4() {
		t.Fatalf("expected first address to be ipv4, got %v ok=%v", ip, ok)
	}
}

func TestDedupAddresses(t *testing.T) {
	h := NewHostInfo("example.com")
	h.SetIpAddress([]netaddr.IpAddress{ipv4(1), ipv4(1), ipv4(2)}, nil)
	if len(h.IPv4()) != 2 {
		t.Fatalf("ipv4 count = %d, want 2", len(h.IPv4()))
	}
}

func TestGetDnsResolveNameASCIIPassthrough(t *testing.T) {
	name, st := ToDnsResolveName("example.com")
	if !st.Ok() {
		t.Fatal(st)
	}
	if name != "example.com" {
		t.Fatalf("name = %q, want example.com", name)
	}
}

func TestGetDnsResolveNameIDNA(t *testing.T) {
	name, st := ToDnsResolveName("президент.рф")
	if !st.Ok() {
		t.Fatal(st)
	}
	if name != "xn--d1abbgf6aiiy.xn--p1ai" {
		t.Fatalf("name = %q, want xn--d1abbgf6aiiy.xn--p1ai", name)
	}
}

func TestGetDnsResolveNameIDNAChinese(t *testing.T) {
	name, st := ToDnsResolveName("www.google.中国")
	if !st.Ok() {
		t.Fatal(st)
	}
	if name != "www.google.xn--fiqs8s" {
		t.Fatalf("name = %q, want www.google.xn--fiqs8s", name)
	}
}

func TestResolveAsyncRoundTrip(t *testing.T) {
	r := New(DefaultOptions().SetNumThreads(1))
	defer r.Close()

	done := make(chan struct{})
	r.ResolveAsync("localhost", func(info *HostInfo, st xstatus.Status) {
		if !st.Ok() {
			t.Errorf("resolve localhost failed: %v", st)
		} else if info == nil || !info.IsValid() {
			t.Errorf("expected a valid result for localhost")
		}
		close(done)
	})
	<-done
}
