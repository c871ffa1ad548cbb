// Package plugin implements per-device plugin instantiation and packet
// dispatch: a registry of Factory values, materialized into Plugin
// instances for each paired device according to its enabled-plugin
// configuration, and a dispatcher routing inbound packets to every
// matching instance (spec section 4.7).
package plugin

import (
	"sort"
	"sync"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
)

// Sender is an enqueue-only handle back into a device's session writer. A
// Plugin must never block on it.
type Sender interface {
	Send(p *packet.Packet) error
}

// Device is the read-only device snapshot handed to a plugin on Init;
// HandlePacket receives only the packet.
type Device struct {
	DeviceID   string
	DeviceName string
}

// Plugin is a typed handler for a subset of packet types, scoped to one
// device for the lifetime of its session.
type Plugin interface {
	// Name returns the plugin's registry name, e.g. "ping".
	Name() string

	// IncomingCapabilities returns the packet types this plugin consumes.
	IncomingCapabilities() []string

	// OutgoingCapabilities returns the packet types this plugin may emit.
	OutgoingCapabilities() []string

	// Init is called once, before Start, with the owning device and a
	// handle to enqueue outbound packets.
	Init(device Device, sender Sender)

	// Start and Stop bracket the plugin's active lifetime.
	Start()
	Stop()

	// HandlePacket is invoked only for types in IncomingCapabilities, and
	// must be safe to call repeatedly and reentrant-safe across distinct
	// device-scoped instances.
	HandlePacket(p *packet.Packet) error
}

// Factory produces Plugin instances for a single plugin name.
type Factory interface {
	// Name returns the plugin name this factory produces, matching the
	// value the resulting Plugin.Name() returns.
	Name() string

	IncomingCapabilities() []string
	OutgoingCapabilities() []string

	// Create returns a new, uninitialized Plugin instance.
	Create() Plugin
}

// Set is the live, per-device collection of active plugin instances,
// keyed by plugin name.
type Set struct {
	mu      sync.RWMutex
	device  Device
	plugins map[string]Plugin
	byType  map[string][]string // packet type -> sorted plugin names
}

func newSet(device Device) *Set {
	return &Set{
		device:  device,
		plugins: make(map[string]Plugin),
		byType:  make(map[string][]string),
	}
}

// Names returns the active plugin names, sorted.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.plugins))
	for name := range s.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the active instance for name, or nil.
func (s *Set) Get(name string) Plugin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plugins[name]
}
