package discovery

import (
	"net"
	"testing"
)

func TestBroadcastAddress(t *testing.T) {
	ip := net.ParseIP("192.168.1.42").To4()
	mask := net.CIDRMask(24, 32)

	got := broadcastAddress(ip, mask)
	want := net.ParseIP("192.168.1.255").To4()
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestBroadcastAddressSlash16(t *testing.T) {
	ip := net.ParseIP("10.20.0.5").To4()
	mask := net.CIDRMask(16, 32)

	got := broadcastAddress(ip, mask)
	want := net.ParseIP("10.20.255.255").To4()
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestFilterIPv4AndIPv6(t *testing.T) {
	ips := []net.IP{
		net.ParseIP("192.168.1.1"),
		net.ParseIP("::1"),
		net.ParseIP("fe80::1"),
	}

	v4 := FilterIPv4(ips)
	if len(v4) != 1 || !v4[0].Equal(net.ParseIP("192.168.1.1")) {
		t.Fatalf("got v4 %v", v4)
	}

	v6 := FilterIPv6(ips)
	if len(v6) != 2 {
		t.Fatalf("got v6 %v", v6)
	}
}
