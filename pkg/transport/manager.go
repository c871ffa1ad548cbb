package transport

import (
	"context"
	"crypto/tls"

	"github.com/pion/logging"
)

// Candidate is the set of addresses discovery has found for one peer,
// across transports (spec section 4.5 edge case: a peer may appear on more
// than one transport at once).
type Candidate struct {
	TCPAddr       string
	BluetoothAddr string
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Certificate   tls.Certificate
	Preference    Preference
	MaxPacketSize int
	LoggerFactory logging.LoggerFactory
}

// Manager implements the transport selection/fallback policy of spec
// section 4.5: given a peer's known addresses across transports, dial in
// the order its configured Preference demands, falling back to the next
// candidate kind on failure for the "*First" preferences.
type Manager struct {
	config ManagerConfig
	log    logging.LeveledLogger
}

// NewManager creates a Manager.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.MaxPacketSize <= 0 {
		config.MaxPacketSize = DefaultMaxPacketSize
	}
	m := &Manager{config: config}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("transport-manager")
	}
	return m, nil
}

// Dial establishes a Transport to the peer described by c, honoring the
// configured Preference. Returns ErrNoTransportAvailable if no candidate
// address exists for any kind the preference permits.
func (m *Manager) Dial(ctx context.Context, c Candidate) (Transport, error) {
	var lastErr error
	tried := false

	for _, kind := range m.order(c) {
		switch kind {
		case KindTCP:
			if c.TCPAddr == "" {
				continue
			}
			tried = true
			t, err := Dial(ctx, c.TCPAddr, m.config.Certificate, m.config.MaxPacketSize)
			if err == nil {
				return t, nil
			}
			lastErr = err
			if m.log != nil {
				m.log.Warnf("dial tcp %s: %v", c.TCPAddr, err)
			}

		case KindBluetooth:
			if c.BluetoothAddr == "" {
				continue
			}
			tried = true
			t, err := defaultL2CAPDialer.dial(ctx, c.BluetoothAddr)
			if err == nil {
				return t, nil
			}
			lastErr = err
			if m.log != nil {
				m.log.Warnf("dial bluetooth %s: %v", c.BluetoothAddr, err)
			}
		}
	}

	if !tried {
		return nil, ErrNoTransportAvailable
	}
	return nil, lastErr
}

// order returns the kinds to attempt, in priority order, for the manager's
// configured Preference.
func (m *Manager) order(c Candidate) []Kind {
	switch m.config.Preference {
	case PreferBluetooth:
		if c.BluetoothAddr != "" {
			return []Kind{KindBluetooth}
		}
		return []Kind{KindTCP}
	case TCPFirst:
		return []Kind{KindTCP, KindBluetooth}
	case BluetoothFirst:
		return []Kind{KindBluetooth, KindTCP}
	case OnlyTCP:
		return []Kind{KindTCP}
	case OnlyBluetooth:
		return []Kind{KindBluetooth}
	case PreferTCP:
		fallthrough
	default:
		if c.TCPAddr != "" {
			return []Kind{KindTCP}
		}
		return []Kind{KindBluetooth}
	}
}
