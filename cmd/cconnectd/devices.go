package main

import (
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/discovery"
	"github.com/olafkfreund/cosmic-connectd/pkg/identity"
	"github.com/olafkfreund/cosmic-connectd/pkg/transport"
)

// deviceRecord is the daemon's bookkeeping for one device it has seen, via
// discovery or a live/former session, independent of pairing or connection
// state (those are derived from the pairing service and session table).
type deviceRecord struct {
	info     identity.Info
	host     string
	lastSeen time.Time
}

// deviceRegistry tracks every device the daemon has observed, keyed by
// device id, used to build dial candidates for the transport manager and
// to answer the external API's ListDevices query.
type deviceRegistry struct {
	mu          sync.RWMutex
	records     map[string]*deviceRecord
	defaultPort uint16
}

func newDeviceRegistry(defaultPort int) *deviceRegistry {
	return &deviceRegistry{
		records:     make(map[string]*deviceRecord),
		defaultPort: uint16(defaultPort),
	}
}

// observeDiscovery records or refreshes a device seen via a discovery event.
func (r *deviceRegistry) observeDiscovery(ev discovery.Event) {
	if ev.Info.DeviceID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[ev.Info.DeviceID]
	if !ok {
		rec = &deviceRecord{}
		r.records[ev.Info.DeviceID] = rec
	}
	rec.info = ev.Info
	if ev.Address != nil {
		rec.host = ev.Address.String()
	}
	rec.lastSeen = time.Now()
}

// observeSession records or refreshes a device seen via an identity packet
// exchanged over a live session. When the transport's remote address parses
// as host:port, its host becomes the dial host, replacing any host discovery
// supplied earlier.
func (r *deviceRegistry) observeSession(info identity.Info, remote transport.Address) {
	if info.DeviceID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[info.DeviceID]
	if !ok {
		rec = &deviceRecord{}
		r.records[info.DeviceID] = rec
	}
	rec.info = info
	if host, _, err := net.SplitHostPort(remote.Addr); err == nil && host != "" {
		rec.host = host
	}
	rec.lastSeen = time.Now()
}

// forget drops a device that discovery has timed out.
func (r *deviceRegistry) forget(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, deviceID)
}

// get returns a copy of the record for deviceID, or nil.
func (r *deviceRegistry) get(deviceID string) *deviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[deviceID]
	if !ok {
		return nil
	}
	c := *rec
	return &c
}

// candidate builds a dial Candidate for deviceID from its last known
// address. Returns a zero Candidate if the device's host is unknown.
func (r *deviceRegistry) candidate(deviceID string) transport.Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[deviceID]
	if !ok || rec.host == "" {
		return transport.Candidate{}
	}
	port := rec.info.TCPPort
	if port == 0 {
		port = r.defaultPort
	}
	return transport.Candidate{TCPAddr: net.JoinHostPort(rec.host, strconv.Itoa(int(port)))}
}

// count returns the number of known devices.
func (r *deviceRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// snapshot returns a copy of every known device, keyed by device id.
func (r *deviceRegistry) snapshot() map[string]*deviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*deviceRecord, len(r.records))
	for id, rec := range r.records {
		c := *rec
		out[id] = &c
	}
	return out
}

// capabilities merges a device's advertised incoming and outgoing
// capabilities into one sorted, de-duplicated list for display purposes.
func capabilities(info identity.Info) []string {
	seen := make(map[string]struct{}, len(info.IncomingCapabilities)+len(info.OutgoingCapabilities))
	for _, c := range info.IncomingCapabilities {
		seen[c] = struct{}{}
	}
	for _, c := range info.OutgoingCapabilities {
		seen[c] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
