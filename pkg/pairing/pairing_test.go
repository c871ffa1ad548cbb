package pairing

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/olafkfreund/cosmic-connectd/pkg/trust"
)

type fakeSender struct {
	sent []*packet.Packet
}

func (f *fakeSender) Send(p *packet.Packet) error {
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeSender) lastPairValue(t *testing.T) bool {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatalf("no packets sent")
	}
	var body pairBody
	if err := f.sent[len(f.sent)-1].UnmarshalBody(&body); err != nil {
		t.Fatalf("UnmarshalBody: %v", err)
	}
	return body.Pair
}

func newTestStore(t *testing.T) *trust.Store {
	t.Helper()
	store, err := trust.Open(trust.StoreConfig{Path: filepath.Join(t.TempDir(), "trusted_peers.json")})
	if err != nil {
		t.Fatalf("trust.Open: %v", err)
	}
	return store
}

func pairPacket(t *testing.T, pair bool) *packet.Packet {
	t.Helper()
	p, err := packet.New(1, "kdeconnect.pair", pairBody{Pair: pair})
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	return p
}

func TestRequestThenAcceptedTransitionsToPaired(t *testing.T) {
	var events []Event
	svc := NewService(Config{
		Store:   newTestStore(t),
		OnEvent: func(e Event) { events = append(events, e) },
	})

	sender := &fakeSender{}
	if err := svc.Request("dev-1", sender); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if svc.State("dev-1") != StateRequested {
		t.Fatalf("got state %v", svc.State("dev-1"))
	}
	if !sender.lastPairValue(t) {
		t.Fatalf("expected pair=true sent")
	}

	if err := svc.HandleIncoming("dev-1", "Phone", "AA:BB", []byte("cert"), sender, pairPacket(t, true)); err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if svc.State("dev-1") != StatePaired {
		t.Fatalf("got state %v", svc.State("dev-1"))
	}

	found := false
	for _, e := range events {
		if e.Kind == EventPairingAccepted {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected PairingAccepted event, got %v", events)
	}
}

func TestIncomingRequestWhileUnpairedSurfacesEvent(t *testing.T) {
	var events []Event
	svc := NewService(Config{
		Store:   newTestStore(t),
		OnEvent: func(e Event) { events = append(events, e) },
	})

	sender := &fakeSender{}
	if err := svc.HandleIncoming("dev-1", "Phone", "AA:BB", []byte("cert"), sender, pairPacket(t, true)); err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}

	if svc.State("dev-1") != StateUnpaired {
		t.Fatalf("got state %v, want Unpaired until local Accept", svc.State("dev-1"))
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no reply sent before local confirmation")
	}

	var gotReceived bool
	for _, e := range events {
		if e.Kind == EventRequestReceived {
			gotReceived = true
		}
	}
	if !gotReceived {
		t.Fatalf("expected RequestReceived event, got %v", events)
	}

	if err := svc.Accept("dev-1", sender); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if svc.State("dev-1") != StatePaired {
		t.Fatalf("got state %v", svc.State("dev-1"))
	}
	if !sender.lastPairValue(t) {
		t.Fatalf("expected pair=true sent on accept")
	}
}

func TestRejectRevertsToUnpaired(t *testing.T) {
	svc := NewService(Config{Store: newTestStore(t)})
	sender := &fakeSender{}

	if err := svc.Request("dev-1", sender); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := svc.Reject("dev-1", sender); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if svc.State("dev-1") != StateUnpaired {
		t.Fatalf("got state %v", svc.State("dev-1"))
	}
	if sender.lastPairValue(t) {
		t.Fatalf("expected pair=false sent on reject")
	}
}

func TestIncomingPairFalseRejectsAnyNonUnpairedState(t *testing.T) {
	var events []Event
	svc := NewService(Config{
		Store:   newTestStore(t),
		OnEvent: func(e Event) { events = append(events, e) },
	})
	sender := &fakeSender{}

	if err := svc.Request("dev-1", sender); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := svc.HandleIncoming("dev-1", "Phone", "AA:BB", nil, sender, pairPacket(t, false)); err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if svc.State("dev-1") != StateUnpaired {
		t.Fatalf("got state %v", svc.State("dev-1"))
	}

	found := false
	for _, e := range events {
		if e.Kind == EventPairingRejected {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected PairingRejected event")
	}
}

func TestTimerExpiryEmitsPairingTimeout(t *testing.T) {
	done := make(chan Event, 1)
	svc := NewService(Config{
		Store:   newTestStore(t),
		Timeout: 10 * time.Millisecond,
		OnEvent: func(e Event) {
			if e.Kind == EventPairingTimeout {
				done <- e
			}
		},
	})

	if err := svc.Request("dev-1", &fakeSender{}); err != nil {
		t.Fatalf("Request: %v", err)
	}

	select {
	case e := <-done:
		if e.DeviceID != "dev-1" {
			t.Fatalf("got device %q", e.DeviceID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for PairingTimeout")
	}

	if svc.State("dev-1") != StateUnpaired {
		t.Fatalf("got state %v", svc.State("dev-1"))
	}
}

func TestUnpairRemovesFromTrustStoreAndNotifiesPeer(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(Config{Store: store})
	sender := &fakeSender{}

	if err := svc.Request("dev-1", sender); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := svc.HandleIncoming("dev-1", "Phone", "AA:BB", []byte("cert"), sender, pairPacket(t, true)); err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}
	if !store.Contains("dev-1") {
		t.Fatalf("expected dev-1 trusted after pairing")
	}

	if err := svc.Unpair("dev-1", sender); err != nil {
		t.Fatalf("Unpair: %v", err)
	}
	if store.Contains("dev-1") {
		t.Fatalf("expected dev-1 removed from trust store")
	}
	if sender.lastPairValue(t) {
		t.Fatalf("expected pair=false sent on unpair")
	}
}

func TestRequestAlreadyPairedFails(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(Config{Store: store})
	sender := &fakeSender{}

	if err := svc.Request("dev-1", sender); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := svc.HandleIncoming("dev-1", "Phone", "AA:BB", []byte("cert"), sender, pairPacket(t, true)); err != nil {
		t.Fatalf("HandleIncoming: %v", err)
	}

	if err := svc.Request("dev-1", sender); err != ErrAlreadyPaired {
		t.Fatalf("got %v, want ErrAlreadyPaired", err)
	}
}
