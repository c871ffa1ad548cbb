package pairing

import (
	"sync"
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/olafkfreund/cosmic-connectd/pkg/trust"
	"github.com/pion/logging"
)

// DefaultTimeout is how long a Requested pairing waits for a response
// before reverting to Unpaired.
const DefaultTimeout = 30 * time.Second

const pairPacketType = "kdeconnect.pair"

type pairBody struct {
	Pair bool `json:"pair"`
}

// Sender delivers a packet to a specific device's live session. Satisfied
// by *session.Session; kept as a narrow interface here so pairing never
// imports the session package.
type Sender interface {
	Send(p *packet.Packet) error
}

// Event is emitted by Service as a peer's pairing state changes.
type Event struct {
	Kind        EventKind
	DeviceID    string
	DeviceName  string
	Fingerprint string
	Reason      string
}

// EventFunc receives pairing events as they occur.
type EventFunc func(Event)

type peerRecord struct {
	state       State
	timer       *time.Timer
	certDER     []byte
	fingerprint string
}

// Config configures a Service.
type Config struct {
	Store   *trust.Store
	OnEvent EventFunc
	Timeout time.Duration

	LoggerFactory logging.LoggerFactory
}

// Service runs the TOFU pair/unpair state machine for every known device,
// one independent State per device id.
type Service struct {
	mu      sync.Mutex
	peers   map[string]*peerRecord
	store   *trust.Store
	timeout time.Duration
	onEvent EventFunc
	log     logging.LeveledLogger
}

// NewService creates a pairing service backed by store.
func NewService(config Config) *Service {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("pairing")
	}
	return &Service{
		peers:   make(map[string]*peerRecord),
		store:   config.Store,
		timeout: config.Timeout,
		onEvent: config.OnEvent,
		log:     log,
	}
}

// State returns the current pairing state for deviceID (StateUnpaired if
// never seen).
func (s *Service) State(deviceID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.peers[deviceID]; ok {
		return rec.state
	}
	return StateUnpaired
}

// Request sends an outgoing pair request to deviceID and starts the
// response timer. Returns ErrAlreadyPaired if deviceID is already Paired.
func (s *Service) Request(deviceID string, sender Sender) error {
	s.mu.Lock()
	rec := s.getOrCreateLocked(deviceID)
	if rec.state == StatePaired {
		s.mu.Unlock()
		return ErrAlreadyPaired
	}
	rec.state = StateRequested
	s.armTimerLocked(deviceID, rec)
	s.mu.Unlock()

	if err := s.sendPair(sender, true); err != nil {
		return err
	}
	s.emit(Event{Kind: EventRequestSent, DeviceID: deviceID})
	return nil
}

// HandleIncoming processes a received `<ns>.pair` packet from deviceID.
// deviceName, fingerprint, and certDER describe the peer as presented by
// its transport and identity packet; they are only consulted when the
// incoming packet carries pair=true.
func (s *Service) HandleIncoming(deviceID, deviceName, fingerprint string, certDER []byte, sender Sender, p *packet.Packet) error {
	var body pairBody
	if err := p.UnmarshalBody(&body); err != nil {
		return err
	}

	if !body.Pair {
		s.mu.Lock()
		rec := s.getOrCreateLocked(deviceID)
		wasUnpaired := rec.state == StateUnpaired
		s.cancelTimerLocked(rec)
		rec.state = StateUnpaired
		s.mu.Unlock()

		if !wasUnpaired {
			s.emit(Event{Kind: EventPairingRejected, DeviceID: deviceID})
		}
		return nil
	}

	s.mu.Lock()
	rec := s.getOrCreateLocked(deviceID)
	state := rec.state

	switch state {
	case StateUnpaired:
		rec.certDER = certDER
		rec.fingerprint = fingerprint
		s.mu.Unlock()
		s.emit(Event{Kind: EventRequestReceived, DeviceID: deviceID, DeviceName: deviceName, Fingerprint: fingerprint})
		return nil

	case StateRequested:
		s.cancelTimerLocked(rec)
		s.mu.Unlock()

		if err := s.store.Add(deviceID, certDER, fingerprint, time.Now()); err != nil {
			return err
		}

		s.mu.Lock()
		rec.state = StatePaired
		s.mu.Unlock()
		s.emit(Event{Kind: EventPairingAccepted, DeviceID: deviceID, DeviceName: deviceName, Fingerprint: fingerprint})
		return nil

	default: // StatePaired: redundant confirmation, ignore.
		s.mu.Unlock()
		return nil
	}
}

// Accept confirms an incoming pairing request that is currently
// RequestReceived (tracked internally as StateUnpaired with a pending
// certificate), persisting the peer to the trust store and replying with
// pair=true. Returns ErrNoSuchDevice if no request is pending.
func (s *Service) Accept(deviceID string, sender Sender) error {
	s.mu.Lock()
	rec, ok := s.peers[deviceID]
	if !ok || rec.state != StateUnpaired || rec.fingerprint == "" {
		s.mu.Unlock()
		return ErrNoSuchDevice
	}
	certDER, fingerprint := rec.certDER, rec.fingerprint
	s.mu.Unlock()

	if err := s.store.Add(deviceID, certDER, fingerprint, time.Now()); err != nil {
		return err
	}

	s.mu.Lock()
	rec.state = StatePaired
	s.mu.Unlock()

	if err := s.sendPair(sender, true); err != nil {
		return err
	}
	s.emit(Event{Kind: EventPairingAccepted, DeviceID: deviceID, Fingerprint: fingerprint})
	return nil
}

// Reject declines an outstanding pairing (incoming or outgoing), replying
// with pair=false and reverting to Unpaired.
func (s *Service) Reject(deviceID string, sender Sender) error {
	s.mu.Lock()
	rec, ok := s.peers[deviceID]
	if !ok {
		s.mu.Unlock()
		return ErrNoSuchDevice
	}
	s.cancelTimerLocked(rec)
	rec.state = StateUnpaired
	rec.certDER, rec.fingerprint = nil, ""
	s.mu.Unlock()

	if err := s.sendPair(sender, false); err != nil {
		return err
	}
	s.emit(Event{Kind: EventPairingRejected, DeviceID: deviceID})
	return nil
}

// Unpair removes deviceID from the trust store, notifies the peer with
// pair=false, and reverts to Unpaired. sender may be nil if no live
// session exists (the peer is simply no longer trusted on next connect).
func (s *Service) Unpair(deviceID string, sender Sender) error {
	if err := s.store.Remove(deviceID); err != nil {
		return err
	}

	s.mu.Lock()
	rec := s.getOrCreateLocked(deviceID)
	s.cancelTimerLocked(rec)
	rec.state = StateUnpaired
	rec.certDER, rec.fingerprint = nil, ""
	s.mu.Unlock()

	if sender != nil {
		if err := s.sendPair(sender, false); err != nil {
			return err
		}
	}
	s.emit(Event{Kind: EventDeviceUnpaired, DeviceID: deviceID})
	return nil
}

func (s *Service) getOrCreateLocked(deviceID string) *peerRecord {
	rec, ok := s.peers[deviceID]
	if !ok {
		rec = &peerRecord{state: StateUnpaired}
		s.peers[deviceID] = rec
	}
	return rec
}

func (s *Service) armTimerLocked(deviceID string, rec *peerRecord) {
	s.cancelTimerLocked(rec)
	rec.timer = time.AfterFunc(s.timeout, func() { s.handleTimeout(deviceID, rec) })
}

func (s *Service) cancelTimerLocked(rec *peerRecord) {
	if rec.timer != nil {
		rec.timer.Stop()
		rec.timer = nil
	}
}

func (s *Service) handleTimeout(deviceID string, rec *peerRecord) {
	s.mu.Lock()
	if rec.state != StateRequested {
		s.mu.Unlock()
		return
	}
	rec.state = StateUnpaired
	rec.timer = nil
	s.mu.Unlock()

	s.emit(Event{Kind: EventPairingTimeout, DeviceID: deviceID})
}

func (s *Service) sendPair(sender Sender, pair bool) error {
	if sender == nil {
		return nil
	}
	p, err := packet.New(time.Now().UnixMilli(), pairPacketType, pairBody{Pair: pair})
	if err != nil {
		return err
	}
	return sender.Send(p)
}

func (s *Service) emit(e Event) {
	if s.log != nil {
		s.log.Debugf("pairing %s: %s", e.DeviceID, e.Kind)
	}
	if s.onEvent != nil {
		s.onEvent(e)
	}
}
