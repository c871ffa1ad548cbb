// Package deviceconfig persists per-device overrides the daemon accepts
// through its external API: plugin enable/disable and a device's
// Wake-on-LAN MAC address, keyed by device id.
//
// See spec section 6.3.
package deviceconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/olafkfreund/cosmic-connectd/internal/atomicfile"
	"github.com/pion/logging"
)

// Entry is one device's persisted overrides.
type Entry struct {
	DeviceID   string          `json:"deviceId"`
	Plugins    map[string]bool `json:"plugins,omitempty"`
	MACAddress string          `json:"macAddress,omitempty"`
}

func (e *Entry) clone() *Entry {
	c := *e
	if e.Plugins != nil {
		c.Plugins = make(map[string]bool, len(e.Plugins))
		for k, v := range e.Plugins {
			c.Plugins[k] = v
		}
	}
	return &c
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Path is the devices.json file (spec section 6.3). Its parent
	// directory is created on the first write if it does not exist.
	Path string

	LoggerFactory logging.LoggerFactory
}

// Store is the durable set of per-device overrides, keyed by device id.
// All methods are safe for concurrent use; updates are persisted
// atomically before returning, matching pkg/trust's write-temp+rename
// discipline.
type Store struct {
	mu   sync.RWMutex
	path string
	log  logging.LeveledLogger

	entries map[string]*Entry
}

// Open loads the device config store from path, creating an empty one if
// it does not yet exist.
func Open(config StoreConfig) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("deviceconfig: Path is required")
	}

	s := &Store{
		path:    config.Path,
		entries: make(map[string]*Entry),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("deviceconfig")
	}

	data, err := os.ReadFile(config.Path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("deviceconfig: read store: %w", err)
	}

	var entries map[string]*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	s.entries = entries
	if s.log != nil {
		s.log.Infof("loaded overrides for %d device(s)", len(entries))
	}
	return s, nil
}

// SetPlugin records whether pluginName is enabled for deviceID, persisting
// the store before returning.
func (s *Store) SetPlugin(deviceID, pluginName string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(deviceID)
	if e.Plugins == nil {
		e.Plugins = make(map[string]bool)
	}
	e.Plugins[pluginName] = enabled
	return s.persistLocked()
}

// PluginOverride reports whether deviceID has an explicit override for
// pluginName, and its value. ok is false when no override is recorded.
func (s *Store) PluginOverride(deviceID, pluginName string) (enabled, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, found := s.entries[deviceID]
	if !found {
		return false, false
	}
	enabled, ok = e.Plugins[pluginName]
	return enabled, ok
}

// SetMACAddress records deviceID's Wake-on-LAN MAC address, persisting the
// store before returning. The daemon does not emit the magic packet
// itself; this is storage only, for an external tool or future feature to
// consume.
func (s *Store) SetMACAddress(deviceID, mac string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(deviceID)
	e.MACAddress = mac
	return s.persistLocked()
}

// MACAddress returns deviceID's stored Wake-on-LAN MAC address, or "" if
// none is recorded.
func (s *Store) MACAddress(deviceID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[deviceID]; ok {
		return e.MACAddress
	}
	return ""
}

// Get returns a copy of deviceID's entry, or nil if none exists.
func (s *Store) Get(deviceID string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[deviceID]
	if !ok {
		return nil
	}
	return e.clone()
}

// Snapshot returns a copy of every device's entry, keyed by device id.
func (s *Store) Snapshot() map[string]*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Entry, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.clone()
	}
	return out
}

func (s *Store) getOrCreateLocked(deviceID string) *Entry {
	e, ok := s.entries[deviceID]
	if !ok {
		e = &Entry{DeviceID: deviceID}
		s.entries[deviceID] = e
	}
	return e
}

func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("deviceconfig: create state dir: %w", err)
	}
	data, err := json.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("deviceconfig: marshal store: %w", err)
	}
	return atomicfile.Write(s.path, data)
}
