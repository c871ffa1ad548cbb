package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/olafkfreund/cosmic-connectd/pkg/identity"
	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/pion/logging"
)

// TCPConn is a TCP+mTLS Transport (spec section 4.4). Both sides present
// their self-signed certificate; verification is Trust-On-First-Use, so the
// TLS handshake itself never rejects an unknown certificate — callers
// inspect PeerFingerprint() against the trust store (spec section 4.2).
type TCPConn struct {
	conn          *tls.Conn
	reader        *bufio.Reader
	writeMu       sync.Mutex
	remote        Address
	maxPacketSize int

	closeOnce sync.Once
	closed    chan struct{}
}

// newTCPConn wraps an already-handshaken *tls.Conn.
func newTCPConn(conn *tls.Conn, maxPacketSize int) *TCPConn {
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultMaxPacketSize
	}
	return &TCPConn{
		conn:          conn,
		reader:        bufio.NewReader(conn),
		remote:        TCPAddress(conn.RemoteAddr().String()),
		maxPacketSize: maxPacketSize,
		closed:        make(chan struct{}),
	}
}

// Capabilities implements Transport.
func (c *TCPConn) Capabilities() Capabilities {
	return Capabilities{
		MaxPacketSize:      c.maxPacketSize,
		Reliable:           true,
		ConnectionOriented: true,
		Latency:            LatencyLow,
	}
}

// RemoteAddress implements Transport.
func (c *TCPConn) RemoteAddress() Address { return c.remote }

// SendPacket implements Transport.
func (c *TCPConn) SendPacket(p *packet.Packet) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return sendPacket(c.conn, &c.writeMu, p, c.maxPacketSize)
}

// ReceivePacket implements Transport.
func (c *TCPConn) ReceivePacket() (*packet.Packet, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	p, err := receivePacket(c.reader)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Close implements Transport.
func (c *TCPConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// IsConnected implements Transport.
func (c *TCPConn) IsConnected() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// PeerFingerprint implements PeerCertified.
func (c *TCPConn) PeerFingerprint() string {
	state := c.conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	return identity.Fingerprint(state.PeerCertificates[0].Raw)
}

// PeerCertificateDER implements PeerCertificateRaw.
func (c *TCPConn) PeerCertificateDER() []byte {
	state := c.conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0].Raw
}

// tlsConfig builds the mutual-TLS configuration both Dial and Listen share:
// present our own certificate, accept any peer certificate at the protocol
// level (TOFU policy lives above this layer, per spec section 4.2).
//
// The minimum version is pinned down to TLS 1.0 and the cipher list widened
// with a CBC-SHA suite for interoperability with long-lived peers still
// running an old TLS stack; CipherSuites only governs the <=1.2 handshake,
// TLS 1.3 negotiates its own fixed suite set regardless of this list.
func tlsConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true,
		ClientAuth:         tls.RequireAnyClientCert,
		MinVersion:         tls.VersionTLS10,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		},
	}
}

// Listener accepts incoming TCP+mTLS connections.
type Listener struct {
	ln            net.Listener
	maxPacketSize int
	log           logging.LeveledLogger
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Addr is the address to listen on, e.g. ":1716". Empty binds an
	// ephemeral port.
	Addr string

	Certificate   tls.Certificate
	MaxPacketSize int
	LoggerFactory logging.LoggerFactory
}

// Listen starts accepting TCP+mTLS connections on config.Addr.
func Listen(config ListenerConfig) (*Listener, error) {
	addr := config.Addr
	if addr == "" {
		addr = ":0"
	}

	ln, err := tls.Listen("tcp", addr, tlsConfig(config.Certificate))
	if err != nil {
		return nil, fmt.Errorf("transport: listen tcp: %w", err)
	}

	l := &Listener{ln: ln, maxPacketSize: config.MaxPacketSize}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("transport-tcp")
	}
	return l, nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks for the next incoming connection and completes its TLS
// handshake before returning, so PeerFingerprint is immediately available.
func (l *Listener) Accept(ctx context.Context) (*TCPConn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		tlsConn, ok := r.conn.(*tls.Conn)
		if !ok {
			r.conn.Close()
			return nil, fmt.Errorf("transport: listener did not produce a TLS connection")
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("transport: tls handshake: %w", err)
		}
		return newTCPConn(tlsConn, l.maxPacketSize), nil
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Dial establishes an outbound TCP+mTLS connection to addr.
func Dial(ctx context.Context, addr string, cert tls.Certificate, maxPacketSize int) (*TCPConn, error) {
	var d tls.Dialer
	d.Config = tlsConfig(cert)

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp: %w", err)
	}
	return newTCPConn(conn.(*tls.Conn), maxPacketSize), nil
}

var _ Transport = (*TCPConn)(nil)
var _ PeerCertified = (*TCPConn)(nil)
var _ PeerCertificateRaw = (*TCPConn)(nil)
