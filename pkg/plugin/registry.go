package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/pion/logging"
)

// EnabledFunc reports whether pluginName is enabled for deviceID. A device
// override wins over the global default; the function encapsulates both.
type EnabledFunc func(deviceID, pluginName string) bool

// Config configures a Registry.
type Config struct {
	Factories []Factory
	Enabled   EnabledFunc

	LoggerFactory logging.LoggerFactory
}

// Registry holds all known plugin factories and the live, per-device Sets
// materialized from them.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	sets      map[string]*Set
	enabled   EnabledFunc
	log       logging.LeveledLogger
}

// NewRegistry creates a Registry from config. Returns an error if two
// factories share a name.
func NewRegistry(config Config) (*Registry, error) {
	factories := make(map[string]Factory, len(config.Factories))
	for _, f := range config.Factories {
		if _, exists := factories[f.Name()]; exists {
			return nil, fmt.Errorf("plugin: duplicate factory name %q", f.Name())
		}
		factories[f.Name()] = f
	}

	enabled := config.Enabled
	if enabled == nil {
		enabled = func(string, string) bool { return true }
	}

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("plugin")
	}

	return &Registry{
		factories: factories,
		sets:      make(map[string]*Set),
		enabled:   enabled,
		log:       log,
	}, nil
}

// Activate materializes a Set for device, containing one instance per
// registered factory whose name is enabled for this device. Init and
// Start are called on each instance before it is returned.
// Calling Activate again for a device that already has a Set is a no-op
// returning the existing Set.
func (r *Registry) Activate(device Device, sender Sender) *Set {
	r.mu.Lock()
	if existing, ok := r.sets[device.DeviceID]; ok {
		r.mu.Unlock()
		return existing
	}

	set := newSet(device)
	for name, f := range r.factories {
		if !r.enabled(device.DeviceID, name) {
			continue
		}
		p := f.Create()
		p.Init(device, sender)
		p.Start()
		set.plugins[name] = p
	}
	r.sets[device.DeviceID] = set
	r.mu.Unlock()

	return set
}

// Deactivate stops and discards the Set for deviceID, if any.
func (r *Registry) Deactivate(deviceID string) {
	r.mu.Lock()
	set, ok := r.sets[deviceID]
	if ok {
		delete(r.sets, deviceID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	set.mu.RLock()
	defer set.mu.RUnlock()
	for _, p := range set.plugins {
		p.Stop()
	}
}

// Dispatch delivers p to every plugin in deviceID's active Set whose
// IncomingCapabilities contains p.Type, in plugin-name order (spec 4.7).
// Plugin errors are logged and isolated; they never propagate.
func (r *Registry) Dispatch(deviceID string, p *packet.Packet) {
	r.mu.RLock()
	set, ok := r.sets[deviceID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	plugins := set.Names()
	for _, name := range plugins {
		instance := set.Get(name)
		if instance == nil {
			continue
		}
		if !containsCapability(instance.IncomingCapabilities(), p.Type) {
			continue
		}
		if err := instance.HandlePacket(p); err != nil && r.log != nil {
			r.log.Warnf("plugin %s: handle_packet for device %s: %v", name, deviceID, err)
		}
	}
}

// IncomingCapabilities returns the union of incoming capabilities across
// all registered factories (used for the local identity packet's
// baseline advertisement, before per-device filtering).
func (r *Registry) IncomingCapabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return unionCapabilities(r.factories, func(f Factory) []string { return f.IncomingCapabilities() })
}

// OutgoingCapabilities returns the union of outgoing capabilities across
// all registered factories.
func (r *Registry) OutgoingCapabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return unionCapabilities(r.factories, func(f Factory) []string { return f.OutgoingCapabilities() })
}

// DeviceOutgoingCapabilities returns the union of outgoing capabilities
// over device's active plugin instances, or nil if the device has no
// active Set.
func (r *Registry) DeviceOutgoingCapabilities(deviceID string) []string {
	r.mu.RLock()
	set, ok := r.sets[deviceID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	set.mu.RLock()
	defer set.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range set.plugins {
		for _, c := range p.OutgoingCapabilities() {
			seen[c] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func containsCapability(caps []string, t string) bool {
	for _, c := range caps {
		if packet.NamespaceEquivalent(c, t) {
			return true
		}
	}
	return false
}

func unionCapabilities(factories map[string]Factory, get func(Factory) []string) []string {
	seen := make(map[string]struct{})
	for _, f := range factories {
		for _, c := range get(f) {
			seen[c] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
