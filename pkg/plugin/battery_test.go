package plugin

import (
	"testing"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
)

func TestBatteryPluginTracksLastReport(t *testing.T) {
	factory := BatteryFactory{}
	p := factory.Create().(*BatteryPlugin)
	p.Init(Device{DeviceID: "dev-1"}, &fakeSender{})

	if _, _, ok := p.State(); ok {
		t.Fatalf("expected no state before first report")
	}

	pkt, err := packet.New(1, batteryPacketType, batteryBody{CurrentCharge: 42, IsCharging: true})
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	if err := p.HandlePacket(pkt); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	charge, charging, ok := p.State()
	if !ok || charge != 42 || !charging {
		t.Fatalf("got charge=%d charging=%v ok=%v", charge, charging, ok)
	}
}

func TestBatteryPluginReportSendsPacket(t *testing.T) {
	factory := BatteryFactory{}
	p := factory.Create().(*BatteryPlugin)
	sender := &fakeSender{}
	p.Init(Device{DeviceID: "dev-1"}, sender)

	if err := p.Report(80, false, ThresholdEventNone); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one packet sent")
	}

	var body batteryBody
	if err := sender.sent[0].UnmarshalBody(&body); err != nil {
		t.Fatalf("UnmarshalBody: %v", err)
	}
	if body.CurrentCharge != 80 {
		t.Fatalf("got %d", body.CurrentCharge)
	}
}
