package plugin

import (
	"testing"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
)

func TestPingPluginCountsReceived(t *testing.T) {
	factory := PingFactory{}
	p := factory.Create().(*PingPlugin)
	sender := &fakeSender{}
	p.Init(Device{DeviceID: "dev-1"}, sender)
	p.Start()
	defer p.Stop()

	pkt, err := packet.New(1, pingPacketType, pingBody{Message: "hi"})
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	if err := p.HandlePacket(pkt); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if err := p.HandlePacket(pkt); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	if got := p.Received(); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

func TestPingPluginSendIncrementsSentAndForwards(t *testing.T) {
	factory := PingFactory{}
	p := factory.Create().(*PingPlugin)
	sender := &fakeSender{}
	p.Init(Device{DeviceID: "dev-1"}, sender)

	if err := p.Ping("hello"); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if p.Sent() != 1 {
		t.Fatalf("got sent=%d", p.Sent())
	}
	if len(sender.sent) != 1 || sender.sent[0].Type != pingPacketType {
		t.Fatalf("expected one ping packet sent, got %v", sender.sent)
	}
}
