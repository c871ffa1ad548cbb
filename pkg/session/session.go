package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/olafkfreund/cosmic-connectd/pkg/transport"
	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"
)

// DefaultQueueSize bounds a Session's outbound write queue.
const DefaultQueueSize = 64

// pairPlugin is the packet plugin name the pairing ceremony uses; packets
// of this type are the only ones a Session in StateAwaitingPairing will
// send or accept.
const pairPlugin = "pair"

// Handler is invoked for every packet a Session receives that its current
// state permits. Implementations must be safe to call
// concurrently across distinct devices but are called sequentially for a
// single Session.
type Handler func(deviceID string, p *packet.Packet)

// DisconnectFunc is invoked once when a Session's reader or writer task
// exits, with the error that ended it (nil on a clean Close).
type DisconnectFunc func(deviceID string, err error)

// Config configures a Session.
type Config struct {
	DeviceID  string
	Transport transport.Transport

	// InitialState seeds the session's state machine. Sessions created
	// during pairing start in StateAwaitingPairing; sessions created after
	// the peer is already a trusted device start in StateConnected.
	InitialState State

	QueueSize int

	OnPacket     Handler
	OnDisconnect DisconnectFunc

	LoggerFactory logging.LoggerFactory
}

// Session is a single live, device-id-identified connection (spec glossary,
// "Session"): one Transport, a reader task, a writer task, and a bounded
// write queue.
type Session struct {
	deviceID  string
	transport transport.Transport

	state atomic.Int32

	queue chan *packet.Packet
	log   logging.LeveledLogger

	onPacket     Handler
	onDisconnect DisconnectFunc

	cancel context.CancelFunc
	group  *errgroup.Group

	closeOnce sync.Once
}

// New creates a Session but does not start its reader/writer tasks; call
// Start for that.
func New(config Config) (*Session, error) {
	if config.DeviceID == "" {
		return nil, fmt.Errorf("session: DeviceID is required")
	}
	if config.Transport == nil {
		return nil, fmt.Errorf("session: Transport is required")
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}

	s := &Session{
		deviceID:     config.DeviceID,
		transport:    config.Transport,
		queue:        make(chan *packet.Packet, config.QueueSize),
		onPacket:     config.OnPacket,
		onDisconnect: config.OnDisconnect,
	}
	s.state.Store(int32(config.InitialState))
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("session")
	}
	return s, nil
}

// DeviceID returns the device id this session is connected to.
func (s *Session) DeviceID() string { return s.deviceID }

// State returns the session's current connection state.
func (s *Session) State() State { return State(s.state.Load()) }

// SetState updates the session's connection state. Transitioning to
// StateConnected is how the pairing service lifts the AwaitingPairing gate
// once a peer becomes trusted.
func (s *Session) SetState(state State) { s.state.Store(int32(state)) }

// PeerCertificateDER returns the peer's raw certificate bytes, if the
// underlying transport can provide them (needed once, at pairing Accept
// time, to persist trust.Peer.CertDER).
func (s *Session) PeerCertificateDER() []byte {
	if pc, ok := s.transport.(transport.PeerCertificateRaw); ok {
		return pc.PeerCertificateDER()
	}
	return nil
}

// RemoteAddress returns the underlying transport's peer address.
func (s *Session) RemoteAddress() transport.Address { return s.transport.RemoteAddress() }

// PeerFingerprint returns the peer's certificate fingerprint, if the
// underlying transport authenticates its peer.
func (s *Session) PeerFingerprint() string {
	if pc, ok := s.transport.(transport.PeerCertified); ok {
		return pc.PeerFingerprint()
	}
	return ""
}

// Send enqueues p for delivery: a session in
// StateDisconnected never sends; a session in StateAwaitingPairing may
// only send pairing packets.
func (s *Session) Send(p *packet.Packet) error {
	state := s.State()
	if state == StateDisconnected {
		return ErrNotConnected
	}
	if state == StateAwaitingPairing && packet.Plugin(p.Type) != pairPlugin {
		return ErrNotConnected
	}

	select {
	case s.queue <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the reader and writer tasks. Wait blocks until both have
// exited.
func (s *Session) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	group, groupCtx := errgroup.WithContext(runCtx)
	s.group = group

	group.Go(func() error { return s.readLoop(groupCtx) })
	group.Go(func() error { return s.writeLoop(groupCtx) })
}

// Wait blocks until the session's reader and writer tasks have both
// exited, then invokes OnDisconnect once with the terminal error (nil if
// the session was closed cleanly).
func (s *Session) Wait() error {
	err := s.group.Wait()
	s.state.Store(int32(StateDisconnected))
	if s.onDisconnect != nil {
		s.onDisconnect(s.deviceID, err)
	}
	return err
}

// Close tears down the transport, unblocking the reader/writer tasks.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		err = s.transport.Close()
	})
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		p, err := s.transport.ReceivePacket()
		if err != nil {
			if errors.Is(err, packet.ErrInvalidPacket) {
				if s.log != nil {
					s.log.Warnf("session %s: dropping malformed packet: %v", s.deviceID, err)
				}
				continue
			}
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		state := s.State()
		if state == StateAwaitingPairing && packet.Plugin(p.Type) != pairPlugin {
			if s.log != nil {
				s.log.Warnf("session %s: dropping %s while awaiting pairing", s.deviceID, p.Type)
			}
			continue
		}

		if s.onPacket != nil {
			s.onPacket(s.deviceID, p)
		}
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-s.queue:
			if err := s.transport.SendPacket(p); err != nil {
				return err
			}
		}
	}
}
