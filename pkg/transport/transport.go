// Package transport implements the connection-oriented carriers a Session
// exchanges packets over: TCP+mTLS (with Trust-On-First-Use fingerprint
// verification) and an optional Bluetooth L2CAP channel, plus an in-memory
// pipe used by tests.
//
// See spec section 4.4.
package transport

import "github.com/olafkfreund/cosmic-connectd/pkg/packet"

// DefaultMaxPacketSize bounds a single encoded packet (spec section 4.4:
// SendPacket "fails InvalidPacket(\"too large\") if encoded size exceeds
// max_packet_size").
const DefaultMaxPacketSize = 1 << 20 // 1 MiB

// Capabilities describes what a Transport can do (spec section 4.4,
// "capabilities()").
type Capabilities struct {
	MaxPacketSize      int
	Reliable           bool
	ConnectionOriented bool
	Latency            LatencyClass
}

// Transport is a single established, point-to-point connection to a peer
// (spec section 4.4, trait "Transport"). Exactly one Transport backs each
// live Session.
type Transport interface {
	// Capabilities returns this transport's fixed characteristics.
	Capabilities() Capabilities

	// RemoteAddress returns the peer's address.
	RemoteAddress() Address

	// SendPacket encodes and writes p. Returns ErrPacketTooLarge if the
	// encoded size exceeds Capabilities().MaxPacketSize.
	SendPacket(p *packet.Packet) error

	// ReceivePacket blocks until the next packet arrives, the transport is
	// closed, or a read error occurs.
	ReceivePacket() (*packet.Packet, error)

	// Close releases the underlying connection. Safe to call more than once.
	Close() error

	// IsConnected reports whether the transport is still usable.
	IsConnected() bool
}

// PeerCertified is implemented by transports that authenticate the peer
// with a certificate, letting callers apply TOFU policy (spec section 4.2).
type PeerCertified interface {
	// PeerFingerprint returns the SHA-256 fingerprint of the peer's
	// certificate, computed identically to identity.Fingerprint.
	PeerFingerprint() string
}

// PeerCertificateRaw is implemented by transports that can also hand back
// the peer's raw DER certificate, needed once (at pairing Accept time) to
// persist trust.Peer.CertDER alongside its fingerprint.
type PeerCertificateRaw interface {
	PeerCertificateDER() []byte
}
