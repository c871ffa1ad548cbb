package transport

import (
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/identity"
	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
)

func testCertificate(t *testing.T) tls.Certificate {
	t.Helper()
	store, err := identity.Open(identity.StoreConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("identity.Open: %v", err)
	}
	cert, err := store.Certificate().TLSCertificate()
	if err != nil {
		t.Fatalf("TLSCertificate: %v", err)
	}
	return cert
}

func TestTCPDialAcceptRoundTrip(t *testing.T) {
	serverCert := testCertificate(t)
	clientCert := testCertificate(t)

	ln, err := Listen(ListenerConfig{Certificate: serverCert})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	serverConnCh := make(chan *TCPConn, 1)
	serverErrCh := make(chan error, 1)
	go func() {
		conn, err := ln.Accept(context.Background())
		if err != nil {
			serverErrCh <- err
			return
		}
		serverConnCh <- conn
	}()

	client, err := Dial(context.Background(), ln.Addr().String(), clientCert, 0)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	var server *TCPConn
	select {
	case server = <-serverConnCh:
	case err := <-serverErrCh:
		t.Fatalf("Accept: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for accept")
	}
	defer server.Close()

	if client.PeerFingerprint() == "" {
		t.Fatalf("expected client to see server fingerprint")
	}
	if server.PeerFingerprint() == "" {
		t.Fatalf("expected server to see client fingerprint")
	}
	// client's peer is the server cert, server's peer is the client cert;
	// they must differ since the two stores generated distinct identities.
	if client.PeerFingerprint() == server.PeerFingerprint() {
		t.Fatalf("expected distinct fingerprints, got matching %q", client.PeerFingerprint())
	}

	p, err := packet.New(1, "kdeconnect.ping", map[string]string{"message": "hi"})
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	if err := client.SendPacket(p); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}

	got, err := server.ReceivePacket()
	if err != nil {
		t.Fatalf("ReceivePacket: %v", err)
	}
	if got.Type != "kdeconnect.ping" {
		t.Fatalf("got type %q", got.Type)
	}
}

func TestTCPRejectsOversizedPacket(t *testing.T) {
	serverCert := testCertificate(t)
	clientCert := testCertificate(t)

	ln, err := Listen(ListenerConfig{Certificate: serverCert})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go ln.Accept(context.Background())

	client, err := Dial(context.Background(), ln.Addr().String(), clientCert, 16)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	big := make(map[string]string)
	big["message"] = "this body is definitely longer than sixteen bytes"
	p, err := packet.New(1, "kdeconnect.ping", big)
	if err != nil {
		t.Fatalf("packet.New: %v", err)
	}
	if err := client.SendPacket(p); err != ErrPacketTooLarge {
		t.Fatalf("got %v, want ErrPacketTooLarge", err)
	}
}
