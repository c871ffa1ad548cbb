package plugin

import (
	"errors"
	"testing"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
)

type fakeSender struct {
	sent []*packet.Packet
}

func (f *fakeSender) Send(p *packet.Packet) error {
	f.sent = append(f.sent, p)
	return nil
}

type recordingPlugin struct {
	name    string
	handled []*packet.Packet
	failing bool
}

func (p *recordingPlugin) Name() string                  { return p.name }
func (p *recordingPlugin) IncomingCapabilities() []string { return []string{"kdeconnect." + p.name} }
func (p *recordingPlugin) OutgoingCapabilities() []string { return []string{"kdeconnect." + p.name} }
func (p *recordingPlugin) Init(Device, Sender)            {}
func (p *recordingPlugin) Start()                         {}
func (p *recordingPlugin) Stop()                          {}
func (p *recordingPlugin) HandlePacket(pkt *packet.Packet) error {
	if p.failing {
		return errors.New("boom")
	}
	p.handled = append(p.handled, pkt)
	return nil
}

type recordingFactory struct {
	name    string
	failing bool
	created []*recordingPlugin
}

func (f *recordingFactory) Name() string                  { return f.name }
func (f *recordingFactory) IncomingCapabilities() []string { return []string{"kdeconnect." + f.name} }
func (f *recordingFactory) OutgoingCapabilities() []string { return []string{"kdeconnect." + f.name} }
func (f *recordingFactory) Create() Plugin {
	p := &recordingPlugin{name: f.name, failing: f.failing}
	f.created = append(f.created, p)
	return p
}

func TestActivateEnabledFiltering(t *testing.T) {
	factoryA := &recordingFactory{name: "a"}
	factoryB := &recordingFactory{name: "b"}

	reg, err := NewRegistry(Config{
		Factories: []Factory{factoryA, factoryB},
		Enabled:   func(deviceID, name string) bool { return name == "a" },
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	set := reg.Activate(Device{DeviceID: "dev-1"}, &fakeSender{})
	names := set.Names()
	if len(names) != 1 || names[0] != "a" {
		t.Fatalf("got %v, want [a]", names)
	}
}

func TestActivateIsIdempotentPerDevice(t *testing.T) {
	factory := &recordingFactory{name: "a"}
	reg, err := NewRegistry(Config{Factories: []Factory{factory}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	s1 := reg.Activate(Device{DeviceID: "dev-1"}, &fakeSender{})
	s2 := reg.Activate(Device{DeviceID: "dev-1"}, &fakeSender{})
	if s1 != s2 {
		t.Fatalf("expected same Set returned")
	}
	if len(factory.created) != 1 {
		t.Fatalf("expected exactly one instance created, got %d", len(factory.created))
	}
}

func TestDispatchDeliversToMatchingCapabilityOnly(t *testing.T) {
	factoryA := &recordingFactory{name: "a"}
	factoryB := &recordingFactory{name: "b"}
	reg, err := NewRegistry(Config{Factories: []Factory{factoryA, factoryB}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	reg.Activate(Device{DeviceID: "dev-1"}, &fakeSender{})

	p, err := packet.New(1, "kdeconnect.a", map[string]string{})
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	reg.Dispatch("dev-1", p)

	if len(factoryA.created[0].handled) != 1 {
		t.Fatalf("expected plugin a to handle the packet")
	}
	if len(factoryB.created[0].handled) != 0 {
		t.Fatalf("expected plugin b to not handle the packet")
	}
}

func TestDispatchIsolatesPluginErrors(t *testing.T) {
	factoryA := &recordingFactory{name: "a", failing: true}
	factoryB := &recordingFactory{name: "b"}
	reg, err := NewRegistry(Config{Factories: []Factory{factoryA, factoryB}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	reg.Activate(Device{DeviceID: "dev-1"}, &fakeSender{})

	pa, err := packet.New(1, "kdeconnect.a", map[string]string{})
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	reg.Dispatch("dev-1", pa) // plugin a fails, should not panic or propagate

	pb, err := packet.New(2, "kdeconnect.b", map[string]string{})
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	reg.Dispatch("dev-1", pb)

	if len(factoryB.created[0].handled) != 1 {
		t.Fatalf("expected plugin b to still receive its packet")
	}
}

func TestDeactivateStopsAndRemoves(t *testing.T) {
	factory := &recordingFactory{name: "a"}
	reg, err := NewRegistry(Config{Factories: []Factory{factory}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	reg.Activate(Device{DeviceID: "dev-1"}, &fakeSender{})
	reg.Deactivate("dev-1")

	p, err := packet.New(1, "kdeconnect.a", map[string]string{})
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	reg.Dispatch("dev-1", p)

	if len(factory.created[0].handled) != 0 {
		t.Fatalf("expected no dispatch after deactivate")
	}
}

func TestNewRegistryRejectsDuplicateNames(t *testing.T) {
	a := &recordingFactory{name: "dup"}
	b := &recordingFactory{name: "dup"}
	if _, err := NewRegistry(Config{Factories: []Factory{a, b}}); err == nil {
		t.Fatalf("expected error for duplicate factory names")
	}
}

func TestCapabilityUnion(t *testing.T) {
	factoryA := &recordingFactory{name: "a"}
	factoryB := &recordingFactory{name: "b"}
	reg, err := NewRegistry(Config{Factories: []Factory{factoryA, factoryB}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	in := reg.IncomingCapabilities()
	if len(in) != 2 {
		t.Fatalf("got %v", in)
	}
}
