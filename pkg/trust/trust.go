// Package trust persists the set of peers this installation has paired
// with: their device id, certificate, and fingerprint, consulted by the
// session manager to decide whether a transport's presented certificate
// matches the identity it claims.
//
// See spec sections 3 and 4.2.
package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/olafkfreund/cosmic-connectd/internal/atomicfile"
	"github.com/pion/logging"
)

// Peer is a trusted peer's persisted record (spec section 3, "TrustedPeer").
type Peer struct {
	DeviceID    string `json:"deviceId"`
	CertDER     []byte `json:"certDer"`
	Fingerprint string `json:"fingerprint"`
	PairedAtMs  int64  `json:"pairedAtMs"`
}

// clone returns a copy of p safe to hand to callers without aliasing the
// store's internal state.
func (p *Peer) clone() *Peer {
	c := *p
	c.CertDER = append([]byte(nil), p.CertDER...)
	return &c
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Path is the trusted_peers.json file (spec section 6.3). Its parent
	// directory is created on the first write if it does not exist.
	Path string

	LoggerFactory logging.LoggerFactory
}

// Store is the durable set-of-TrustedPeer keyed by device id. All methods
// are safe for concurrent use; updates are persisted atomically before
// returning, per spec section 4.2: "Updates are atomic and durable before
// the corresponding PairingAccepted event is published."
type Store struct {
	mu   sync.RWMutex
	path string
	log  logging.LeveledLogger

	peers map[string]*Peer
}

// Open loads the trust store from path, creating an empty one if it does
// not yet exist.
func Open(config StoreConfig) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("trust: Path is required")
	}

	s := &Store{
		path:  config.Path,
		peers: make(map[string]*Peer),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("trust")
	}

	data, err := os.ReadFile(config.Path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("trust: read store: %w", err)
	}

	var peers map[string]*Peer
	if err := json.Unmarshal(data, &peers); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	s.peers = peers
	if s.log != nil {
		s.log.Infof("loaded %d trusted peer(s)", len(peers))
	}
	return s, nil
}

// Add records a peer as trusted, persisting the store before returning.
// Pairing a device id that is already trusted overwrites its prior record
// (re-pairing updates the stored certificate and fingerprint).
func (s *Store) Add(deviceID string, certDER []byte, fingerprint string, pairedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.peers[deviceID] = &Peer{
		DeviceID:    deviceID,
		CertDER:     append([]byte(nil), certDER...),
		Fingerprint: fingerprint,
		PairedAtMs:  pairedAt.UnixMilli(),
	}
	if err := s.persistLocked(); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Infof("trusted %s (fingerprint %s)", deviceID, fingerprint)
	}
	return nil
}

// Remove drops a device id from the trust store. Removing a device id
// that is not present is not an error, matching the "unpair is always
// safe" behavior spec section 4.5 requires of explicit unpair.
func (s *Store) Remove(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.peers[deviceID]; !ok {
		return nil
	}
	delete(s.peers, deviceID)
	if err := s.persistLocked(); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Infof("untrusted %s", deviceID)
	}
	return nil
}

// Contains reports whether deviceID is currently trusted.
func (s *Store) Contains(deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.peers[deviceID]
	return ok
}

// FingerprintOf returns the stored certificate fingerprint for deviceID.
// Returns ErrNotFound if deviceID is not trusted.
func (s *Store) FingerprintOf(deviceID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.peers[deviceID]
	if !ok {
		return "", ErrNotFound
	}
	return p.Fingerprint, nil
}

// Get returns a copy of the trusted peer record for deviceID.
func (s *Store) Get(deviceID string) (*Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.peers[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.clone(), nil
}

// Snapshot returns a copy of every trusted peer, keyed by device id.
func (s *Store) Snapshot() map[string]*Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*Peer, len(s.peers))
	for id, p := range s.peers {
		out[id] = p.clone()
	}
	return out
}

// Count returns the number of trusted peers.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("trust: create state dir: %w", err)
	}
	data, err := json.Marshal(s.peers)
	if err != nil {
		return fmt.Errorf("trust: marshal store: %w", err)
	}
	return atomicfile.Write(s.path, data)
}
