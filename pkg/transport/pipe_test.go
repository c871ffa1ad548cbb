package transport

import (
	"testing"
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
)

func TestPipeRoundTrip(t *testing.T) {
	a, b := NewPipePair("a:0", "b:0")
	defer a.Close()
	defer b.Close()

	p, err := packet.New(1, "kdeconnect.ping", map[string]string{"message": "hi"})
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	if err := a.SendPacket(p); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}

	got, err := b.ReceivePacket()
	if err != nil {
		t.Fatalf("ReceivePacket: %v", err)
	}
	if got.Type != "kdeconnect.ping" {
		t.Fatalf("got type %q", got.Type)
	}
}

func TestPipeCloseMarksDisconnected(t *testing.T) {
	a, b := NewPipePair("a:0", "b:0")
	defer b.Close()

	if !a.IsConnected() {
		t.Fatalf("expected connected before close")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if a.IsConnected() {
		t.Fatalf("expected disconnected after close")
	}
	p, _ := packet.New(1, "kdeconnect.ping", map[string]string{})
	if err := a.SendPacket(p); err != ErrNotConnected {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
}

func TestPipeSetPeerFingerprint(t *testing.T) {
	a, b := NewPipePair("a:0", "b:0")
	defer a.Close()
	defer b.Close()

	a.SetPeerFingerprint("deadbeef")
	if a.PeerFingerprint() != "deadbeef" {
		t.Fatalf("got %q", a.PeerFingerprint())
	}
}

func TestPipeCapabilities(t *testing.T) {
	a, b := NewPipePair("a:0", "b:0")
	defer a.Close()
	defer b.Close()

	caps := a.Capabilities()
	if !caps.Reliable || !caps.ConnectionOriented {
		t.Fatalf("got %+v", caps)
	}
	if a.RemoteAddress().Addr != "b:0" {
		t.Fatalf("got remote %v", a.RemoteAddress())
	}
}

func TestPipeConcurrentSendReceive(t *testing.T) {
	a, b := NewPipePair("a:0", "b:0")
	defer a.Close()
	defer b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			if _, err := b.ReceivePacket(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 5; i++ {
		p, _ := packet.New(int64(i), "kdeconnect.ping", map[string]string{})
		if err := a.SendPacket(p); err != nil {
			t.Fatalf("SendPacket: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for packets to be received")
	}
}
