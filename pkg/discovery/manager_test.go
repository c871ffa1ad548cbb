package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/identity"
	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
)

func selfInfoFunc(deviceID string) func() identity.Info {
	return func() identity.Info {
		return identity.Info{DeviceID: deviceID, DeviceName: "self", DeviceType: identity.DeviceTypeDesktop}
	}
}

func newTestManager(t *testing.T, selfID string) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{
		Port:        0,
		PeerTimeout: 50 * time.Millisecond,
		SelfInfo:    selfInfoFunc(selfID),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func peerDatagram(t *testing.T, deviceID string) []byte {
	t.Helper()
	info := identity.Info{DeviceID: deviceID, DeviceName: "peer", DeviceType: identity.DeviceTypePhone, TCPPort: 1716}
	p, err := packet.New(1, identity.PacketType(), info)
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	wire, err := packet.Encode(p)
	if err != nil {
		t.Fatalf("packet.Encode: %v", err)
	}
	return wire
}

func TestNewManagerRequiresSelfInfo(t *testing.T) {
	if _, err := NewManager(ManagerConfig{}); err == nil {
		t.Fatalf("expected error without SelfInfo")
	}
}

func TestNewManagerRejectsInvalidPort(t *testing.T) {
	_, err := NewManager(ManagerConfig{Port: 70000, SelfInfo: selfInfoFunc("self")})
	if err != ErrInvalidPort {
		t.Fatalf("got %v, want ErrInvalidPort", err)
	}
}

func TestHandleDatagramIgnoresSelf(t *testing.T) {
	m := newTestManager(t, "self-id")
	m.handleDatagram(peerDatagram(t, "self-id"), net.ParseIP("10.0.0.1"))

	select {
	case ev := <-m.events:
		t.Fatalf("expected no event for self identity, got %+v", ev)
	default:
	}
}

func TestHandleDatagramDiscoveredThenUpdated(t *testing.T) {
	m := newTestManager(t, "self-id")

	m.handleDatagram(peerDatagram(t, "peer-1"), net.ParseIP("10.0.0.2"))
	ev := <-m.events
	if ev.Kind != EventDeviceDiscovered {
		t.Fatalf("got kind %v, want EventDeviceDiscovered", ev.Kind)
	}
	if ev.Info.DeviceID != "peer-1" {
		t.Fatalf("got device id %q", ev.Info.DeviceID)
	}

	m.handleDatagram(peerDatagram(t, "peer-1"), net.ParseIP("10.0.0.2"))
	ev2 := <-m.events
	if ev2.Kind != EventDeviceUpdated {
		t.Fatalf("got kind %v, want EventDeviceUpdated", ev2.Kind)
	}
}

func TestHandleDatagramMalformedEmitsError(t *testing.T) {
	m := newTestManager(t, "self-id")
	m.handleDatagram([]byte("not a packet"), net.ParseIP("10.0.0.3"))

	ev := <-m.events
	if ev.Kind != EventError {
		t.Fatalf("got kind %v, want EventError", ev.Kind)
	}
}

func TestSweepTimeoutsEvictsStalePeers(t *testing.T) {
	m := newTestManager(t, "self-id")
	m.handleDatagram(peerDatagram(t, "peer-1"), net.ParseIP("10.0.0.2"))
	<-m.events // Discovered

	time.Sleep(2 * m.config.PeerTimeout)
	m.sweepTimeouts()

	ev := <-m.events
	if ev.Kind != EventDeviceTimeout || ev.DeviceID != "peer-1" {
		t.Fatalf("got %+v", ev)
	}

	if m.Snapshot()["peer-1"].DeviceID != "" {
		t.Fatalf("expected peer-1 to be evicted from snapshot")
	}
}

func TestSnapshotReturnsCopy(t *testing.T) {
	m := newTestManager(t, "self-id")
	m.handleDatagram(peerDatagram(t, "peer-1"), net.ParseIP("10.0.0.2"))
	<-m.events

	snap := m.Snapshot()
	if len(snap) != 1 || snap["peer-1"].DeviceID != "peer-1" {
		t.Fatalf("got %+v", snap)
	}
}
