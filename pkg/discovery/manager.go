package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/identity"
	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/pion/logging"
	"golang.org/x/sys/unix"
)

// Defaults for ManagerConfig (spec section 4.3).
const (
	DefaultPort              = 1716
	DefaultBroadcastInterval = 5 * time.Second
	DefaultPeerTimeout       = 30 * time.Second
	maxDatagramSize          = 8192
)

// Event is a single unified discovery notification (spec section 4.3,
// "Events (unified)").
type Event struct {
	Kind      EventKind
	Port      int // set on EventServiceStarted
	Info      identity.Info
	Address   net.IP
	Transport TransportHint
	DeviceID  string // set on EventDeviceTimeout
	Err       error  // set on EventError
}

// peerEntry is the discovery manager's bookkeeping for one known peer.
type peerEntry struct {
	info      identity.Info
	addr      net.IP
	transport TransportHint
	lastSeen  time.Time
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Port is the UDP port to bind and broadcast to. Default DefaultPort.
	Port int

	// BroadcastInterval is how often the self identity packet is
	// re-announced. Default DefaultBroadcastInterval.
	BroadcastInterval time.Duration

	// PeerTimeout is how long a peer may go unheard-from before an
	// EventDeviceTimeout fires. Default DefaultPeerTimeout.
	PeerTimeout time.Duration

	// SelfInfo returns the identity to announce. Called once per broadcast
	// tick, so a changing TCP port or capability set is picked up live.
	SelfInfo func() identity.Info

	// Bluetooth enables the optional Bluetooth LE discovery sub-service.
	// No backend is available in this build; enabling it only ever
	// produces a single EventError carrying ErrBluetoothUnavailable.
	Bluetooth bool

	// MDNS enables the optional mDNS fallback advertise/browse path for
	// networks where UDP broadcast does not reach a peer.
	MDNS bool

	// MDNSServerFactory and MDNSResolver override the production zeroconf
	// implementations, for tests. Only consulted when MDNS is true.
	MDNSServerFactory MDNSServerFactory
	MDNSResolver      MDNSResolver

	LoggerFactory logging.LoggerFactory
}

// Manager runs the UDP broadcast discovery loop described in spec section
// 4.3: periodic self-announce, peer listen/dedup, and timeout eviction,
// unified behind a single Event channel.
type Manager struct {
	config ManagerConfig
	log    logging.LeveledLogger

	conn *net.UDPConn

	mu     sync.RWMutex
	closed bool
	peers  map[string]*peerEntry

	events chan Event
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mdns *mdnsFallback
}

// NewManager creates a Manager. It does not bind a socket or start any
// goroutines until Start is called.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Port < 1 || config.Port > 65535 {
		return nil, ErrInvalidPort
	}
	if config.BroadcastInterval <= 0 {
		config.BroadcastInterval = DefaultBroadcastInterval
	}
	if config.PeerTimeout <= 0 {
		config.PeerTimeout = DefaultPeerTimeout
	}
	if config.SelfInfo == nil {
		return nil, fmt.Errorf("discovery: SelfInfo is required")
	}

	m := &Manager{
		config: config,
		peers:  make(map[string]*peerEntry),
		events: make(chan Event, 32),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("discovery")
	}
	return m, nil
}

// Events returns the channel unified discovery events are delivered on.
// Callers must keep draining it for the lifetime of the Manager.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Start binds the UDP socket, sets SO_BROADCAST, and launches the
// broadcast/listen/timeout-sweep goroutines.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.conn != nil {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: m.config.Port})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("discovery: listen udp: %w", err)
	}
	if err := setBroadcast(conn); err != nil {
		conn.Close()
		m.mu.Unlock()
		return fmt.Errorf("discovery: enable broadcast: %w", err)
	}
	m.conn = conn

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(3)
	go m.broadcastLoop(runCtx)
	go m.listenLoop(runCtx)
	go m.timeoutLoop(runCtx)

	if m.config.Bluetooth {
		m.emit(Event{Kind: EventError, Err: ErrBluetoothUnavailable})
	}

	if m.config.MDNS {
		m.mdns = newMDNSFallback(m.config.MDNSServerFactory, m.config.MDNSResolver, m.log)
		self := m.config.SelfInfo()
		if err := m.mdns.start(runCtx, self.DeviceID, m.config.Port, m.handleMDNSPeer); err != nil {
			m.emit(Event{Kind: EventError, Err: err})
		}
	}

	m.emit(Event{Kind: EventServiceStarted, Port: m.config.Port})
	return nil
}

// handleMDNSPeer turns an mDNS-resolved peer instance into the same
// discovery events the UDP broadcast path produces, so callers never need
// to distinguish which path found a peer.
func (m *Manager) handleMDNSPeer(instance string, ips []net.IP) {
	if instance == "" || len(ips) == 0 {
		return
	}

	m.mu.Lock()
	_, known := m.peers[instance]
	m.peers[instance] = &peerEntry{
		info:      identity.Info{DeviceID: instance},
		addr:      ips[0],
		transport: TransportTCP,
		lastSeen:  time.Now(),
	}
	m.mu.Unlock()

	kind := EventDeviceDiscovered
	if known {
		kind = EventDeviceUpdated
	}
	m.emit(Event{Kind: kind, Info: identity.Info{DeviceID: instance}, Address: ips[0], Transport: TransportTCP})
}

// Close stops all goroutines and releases the socket.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	conn := m.conn
	cancel := m.cancel
	mdns := m.mdns
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if mdns != nil {
		mdns.stop()
	}
	m.wg.Wait()
	close(m.events)
	return nil
}

// Snapshot returns the set of currently known peers, keyed by device id.
func (m *Manager) Snapshot() map[string]identity.Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]identity.Info, len(m.peers))
	for id, p := range m.peers {
		out[id] = p.info
	}
	return out
}

func (m *Manager) emit(e Event) {
	select {
	case m.events <- e:
	default:
		if m.log != nil {
			m.log.Warn("discovery: event channel full, dropping event")
		}
	}
}

func (m *Manager) broadcastLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.BroadcastInterval)
	defer ticker.Stop()

	m.announce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.announce()
		}
	}
}

func (m *Manager) announce() {
	targets, err := broadcastInterfaces()
	if err != nil {
		m.emit(Event{Kind: EventError, Err: fmt.Errorf("discovery: enumerate interfaces: %w", err)})
		return
	}

	self := m.config.SelfInfo()
	p, err := packet.New(time.Now().UnixMilli(), identity.PacketType(), self)
	if err != nil {
		m.emit(Event{Kind: EventError, Err: err})
		return
	}
	wire, err := packet.Encode(p)
	if err != nil {
		m.emit(Event{Kind: EventError, Err: err})
		return
	}

	for _, target := range targets {
		dst := &net.UDPAddr{IP: target.broadcast, Port: m.config.Port}
		if _, err := m.conn.WriteToUDP(wire, dst); err != nil {
			if m.log != nil {
				m.log.Warnf("discovery: broadcast on %s: %v", target.iface, err)
			}
		}
	}
}

func (m *Manager) listenLoop(ctx context.Context) {
	defer m.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, src, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			m.emit(Event{Kind: EventError, Err: fmt.Errorf("discovery: read udp: %w", err)})
			continue
		}

		m.handleDatagram(buf[:n], src.IP)
	}
}

func (m *Manager) handleDatagram(data []byte, src net.IP) {
	p, err := packet.Decode(data)
	if err != nil {
		m.emit(Event{Kind: EventError, Err: err})
		return
	}
	if packet.Plugin(p.Type) != "identity" {
		return
	}

	var info identity.Info
	if err := p.UnmarshalBody(&info); err != nil {
		m.emit(Event{Kind: EventError, Err: err})
		return
	}
	if info.DeviceID == "" || info.DeviceID == m.config.SelfInfo().DeviceID {
		return
	}

	m.mu.Lock()
	existing, known := m.peers[info.DeviceID]
	entry := &peerEntry{info: info, addr: src, transport: TransportTCP, lastSeen: time.Now()}
	m.peers[info.DeviceID] = entry
	m.mu.Unlock()

	kind := EventDeviceDiscovered
	if known {
		kind = EventDeviceUpdated
		_ = existing
	}
	m.emit(Event{Kind: kind, Info: info, Address: src, Transport: TransportTCP})
}

func (m *Manager) timeoutLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := m.config.PeerTimeout / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepTimeouts()
		}
	}
}

func (m *Manager) sweepTimeouts() {
	cutoff := time.Now().Add(-m.config.PeerTimeout)

	m.mu.Lock()
	var expired []string
	for id, p := range m.peers {
		if p.lastSeen.Before(cutoff) {
			expired = append(expired, id)
			delete(m.peers, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.emit(Event{Kind: EventDeviceTimeout, DeviceID: id})
	}
}

func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}
