package session

import (
	"sync"
)

// DefaultMaxSessions is the default maximum number of concurrent sessions a
// Table will hold.
const DefaultMaxSessions = 64

// Table tracks live Sessions keyed by device id, enforcing at most one
// Session per device id.
type Table struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
}

// NewTable creates a new session table. maxSessions limits the number of
// concurrent sessions (0 uses DefaultMaxSessions).
func NewTable(maxSessions int) *Table {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Table{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
	}
}

// Add registers s under its device id. Returns ErrSessionExists if a
// session is already registered for that device.
func (t *Table) Add(s *Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.sessions[s.DeviceID()]; exists {
		return ErrSessionExists
	}
	if len(t.sessions) >= t.maxSessions {
		return ErrQueueFull
	}
	t.sessions[s.DeviceID()] = s
	return nil
}

// Remove drops the session for deviceID, if any. It is not an error to
// remove a device id with no registered session.
func (t *Table) Remove(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, deviceID)
}

// Find returns the session registered for deviceID, or nil.
func (t *Table) Find(deviceID string) *Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[deviceID]
}

// Contains reports whether a session is registered for deviceID.
func (t *Table) Contains(deviceID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.sessions[deviceID]
	return ok
}

// Count returns the number of active sessions.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// IsFull reports whether the table is at capacity.
func (t *Table) IsFull() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions) >= t.maxSessions
}

// Clear removes all sessions from the table without closing them.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = make(map[string]*Session)
}

// ForEach calls fn for each session in the table. fn should not modify the
// table; stop iterating by returning false.
func (t *Table) ForEach(fn func(*Session) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sessions {
		if !fn(s) {
			return
		}
	}
}

// Snapshot returns a shallow copy of the device-id-to-session map.
func (t *Table) Snapshot() map[string]*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*Session, len(t.sessions))
	for id, s := range t.sessions {
		out[id] = s
	}
	return out
}
