package session

import (
	"context"

	"github.com/olafkfreund/cosmic-connectd/pkg/transport"
	"github.com/pion/logging"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// MaxSessions limits the number of concurrent sessions. Default:
	// DefaultMaxSessions.
	MaxSessions int

	// OnPacket is invoked for every packet any managed session receives
	// that its current state permits.
	OnPacket Handler

	// OnDisconnect is invoked once a managed session's reader or writer
	// task exits, after the session has been removed from the table.
	OnDisconnect DisconnectFunc

	LoggerFactory logging.LoggerFactory
}

// Manager orchestrates a Table of Sessions, wiring each new Session's
// lifecycle (start, wait, automatic table removal on disconnect) so callers
// only need to hand it a device id and a Transport.
type Manager struct {
	table  *Table
	log    logging.LeveledLogger
	config ManagerConfig
}

// NewManager creates a session manager.
func NewManager(config ManagerConfig) *Manager {
	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("session")
	}
	return &Manager{
		table:  NewTable(config.MaxSessions),
		log:    log,
		config: config,
	}
}

// Open creates a Session for deviceID bound to tr, registers it in the
// table, and starts its reader/writer tasks under ctx.
// Returns ErrSessionExists if deviceID already has a live session.
func (m *Manager) Open(ctx context.Context, deviceID string, tr transport.Transport, initialState State) (*Session, error) {
	s, err := New(Config{
		DeviceID:      deviceID,
		Transport:     tr,
		InitialState:  initialState,
		OnPacket:      m.config.OnPacket,
		OnDisconnect:  m.handleDisconnect,
		LoggerFactory: m.config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	if err := m.table.Add(s); err != nil {
		return nil, err
	}

	s.Start(ctx)
	go func() {
		if err := s.Wait(); err != nil && m.log != nil {
			m.log.Debugf("session %s ended: %v", deviceID, err)
		}
	}()

	return s, nil
}

func (m *Manager) handleDisconnect(deviceID string, err error) {
	m.table.Remove(deviceID)
	if m.config.OnDisconnect != nil {
		m.config.OnDisconnect(deviceID, err)
	}
}

// Find returns the live session for deviceID, or nil.
func (m *Manager) Find(deviceID string) *Session {
	return m.table.Find(deviceID)
}

// Contains reports whether deviceID has a live session.
func (m *Manager) Contains(deviceID string) bool {
	return m.table.Contains(deviceID)
}

// Close closes and unregisters the session for deviceID, if any. It is not
// an error to close a device id with no live session.
func (m *Manager) Close(deviceID string) error {
	s := m.table.Find(deviceID)
	if s == nil {
		return nil
	}
	return s.Close()
}

// CloseAll closes every managed session.
func (m *Manager) CloseAll() {
	m.table.ForEach(func(s *Session) bool {
		s.Close()
		return true
	})
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.table.Count()
}

// ForEach calls fn for each live session.
func (m *Manager) ForEach(fn func(*Session) bool) {
	m.table.ForEach(fn)
}

// Snapshot returns a shallow copy of the device-id-to-session map.
func (m *Manager) Snapshot() map[string]*Session {
	return m.table.Snapshot()
}
