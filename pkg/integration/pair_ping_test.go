// Package integration exercises the discovery-free portion of the
// connection fabric end to end: two in-memory-transport sessions pair
// with each other and then exchange a ping, using the same session,
// pairing, trust, and plugin code the daemon wires together.
package integration

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/olafkfreund/cosmic-connectd/pkg/pairing"
	"github.com/olafkfreund/cosmic-connectd/pkg/plugin"
	"github.com/olafkfreund/cosmic-connectd/pkg/session"
	"github.com/olafkfreund/cosmic-connectd/pkg/transport"
	"github.com/olafkfreund/cosmic-connectd/pkg/trust"
)

const pingType = "kdeconnect.ping"

// peer bundles everything one side of the conversation needs: its session,
// pairing service, and plugin set.
type peer struct {
	deviceID string
	sess     *session.Session
	pairSvc  *pairing.Service
	store    *trust.Store
	registry *plugin.Registry
	set      *plugin.Set

	// requested is set once the pairing service reports an incoming request.
	requested atomic.Bool
}

// newPeer builds one side of the conversation. deviceID is this side's own
// id; remoteID is the id of the device its session is connected to.
func newPeer(t *testing.T, deviceID, remoteID string, conn transport.Transport, initial session.State) *peer {
	t.Helper()

	store, err := trust.Open(trust.StoreConfig{Path: filepath.Join(t.TempDir(), "trusted_peers.json")})
	if err != nil {
		t.Fatalf("trust.Open: %v", err)
	}

	registry, err := plugin.NewRegistry(plugin.Config{
		Factories: []plugin.Factory{plugin.PingFactory{}},
	})
	if err != nil {
		t.Fatalf("plugin.NewRegistry: %v", err)
	}

	p := &peer{deviceID: deviceID, store: store, registry: registry}

	pairSvc := pairing.NewService(pairing.Config{Store: store, OnEvent: func(e pairing.Event) {
		if e.Kind == pairing.EventRequestReceived {
			p.requested.Store(true)
		}
	}})
	p.pairSvc = pairSvc

	sess, err := session.New(session.Config{
		DeviceID:     remoteID,
		Transport:    conn,
		InitialState: initial,
		OnPacket:     p.handlePacket,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	p.sess = sess
	return p
}

func (p *peer) handlePacket(deviceID string, pkt *packet.Packet) {
	if packet.Plugin(pkt.Type) == "pair" {
		_ = p.pairSvc.HandleIncoming(deviceID, deviceID, "fingerprint-"+deviceID, []byte("cert-"+deviceID), p.sess, pkt)
		p.activateIfPaired(deviceID)
		return
	}
	if p.set != nil {
		p.registry.Dispatch(deviceID, pkt)
	}
}

// activateIfPaired lifts the session to Connected and activates the
// plugin set once deviceID's pairing state reaches Paired, mirroring the
// daemon's afterPairingAccepted step. Safe to call more than once.
func (p *peer) activateIfPaired(deviceID string) {
	if p.pairSvc.State(deviceID) != pairing.StatePaired {
		return
	}
	p.sess.SetState(session.StateConnected)
	if p.set == nil {
		p.set = p.registry.Activate(plugin.Device{DeviceID: deviceID, DeviceName: deviceID}, p.sess)
	}
}

// TestPairThenPing drives a full pairing handshake over an in-memory
// transport pair and confirms a subsequent ping is delivered to the ping
// plugin on the accepting side only after pairing completes.
func TestPairThenPing(t *testing.T) {
	connA, connB := transport.NewPipePair("pipe:a", "pipe:b")

	a := newPeer(t, "device-a", "device-b", connA, session.StateAwaitingPairing)
	b := newPeer(t, "device-b", "device-a", connB, session.StateAwaitingPairing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.sess.Start(ctx)
	b.sess.Start(ctx)
	defer a.sess.Close()
	defer b.sess.Close()

	if err := a.pairSvc.Request("device-b", a.sess); err != nil {
		t.Fatalf("pairing Request: %v", err)
	}

	waitForIntegration(t, time.Second, func() bool {
		return b.requested.Load() && b.pairSvc.State("device-a") == pairing.StateUnpaired && b.set == nil
	})

	if err := b.pairSvc.Accept("device-a", b.sess); err != nil {
		t.Fatalf("pairing Accept: %v", err)
	}
	b.activateIfPaired("device-a")

	waitForIntegration(t, time.Second, func() bool {
		return a.pairSvc.State("device-b") == pairing.StatePaired &&
			b.pairSvc.State("device-a") == pairing.StatePaired
	})

	if a.sess.State() != session.StateConnected {
		t.Fatalf("device-a session state = %v, want Connected", a.sess.State())
	}
	if b.sess.State() != session.StateConnected {
		t.Fatalf("device-b session state = %v, want Connected", b.sess.State())
	}

	pkt, err := packet.New(1, pingType, struct {
		Message string `json:"message"`
	}{Message: "hello"})
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	if err := a.sess.Send(pkt); err != nil {
		t.Fatalf("Send ping: %v", err)
	}

	waitForIntegration(t, time.Second, func() bool {
		ping, ok := b.set.Get(plugin.PingPluginName).(*plugin.PingPlugin)
		return ok && ping.Received() == 1
	})
}

// TestUnpairedSessionDropsNonPairPackets confirms a session awaiting
// pairing never hands a non-pair packet to the dispatcher.
func TestUnpairedSessionDropsNonPairPackets(t *testing.T) {
	connA, connB := transport.NewPipePair("pipe:a", "pipe:b")

	a := newPeer(t, "device-a", "device-b", connA, session.StateAwaitingPairing)
	b := newPeer(t, "device-b", "device-a", connB, session.StateAwaitingPairing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.sess.Start(ctx)
	b.sess.Start(ctx)
	defer a.sess.Close()
	defer b.sess.Close()

	b.set = b.registry.Activate(plugin.Device{DeviceID: "device-a", DeviceName: "device-a"}, b.sess)

	pkt, err := packet.New(1, pingType, struct {
		Message string `json:"message"`
	}{Message: "ignored"})
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	if err := a.sess.Send(pkt); err == nil {
		t.Fatal("Send from awaiting-pairing session should reject non-pair packets")
	}

	time.Sleep(20 * time.Millisecond)
	ping := b.set.Get(plugin.PingPluginName).(*plugin.PingPlugin)
	if ping.Received() != 0 {
		t.Fatalf("Received = %d, want 0", ping.Received())
	}
}

func waitForIntegration(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
