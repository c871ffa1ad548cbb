package recovery

import (
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
)

// DefaultMaxAttempts is the number of delivery attempts a retry-queue entry
// gets before it is dropped.
const DefaultMaxAttempts = 5

// SendFunc delivers a packet to a device's live session. It returns an
// error if the send failed (queue full, no session, transport error).
type SendFunc func(deviceID string, p *packet.Packet) error

// DroppedEntry describes a retry-queue entry that exhausted its attempts.
type DroppedEntry struct {
	DeviceID string
	Packet   *packet.Packet
	Attempts int
}

type retryEntry struct {
	packet    *packet.Packet
	attempts  int
	nextTryAt time.Time
}

// RetryQueue holds packets that failed a retryable send, grouped by device,
// and redrives them on a backoff schedule until they succeed or exhaust
// the queue's attempt cap (DefaultMaxAttempts unless NewRetryQueue is given
// another).
type RetryQueue struct {
	maxAttempts int
	entries     map[string][]*retryEntry
}

// NewRetryQueue creates an empty retry queue. maxAttempts <= 0 uses
// DefaultMaxAttempts.
func NewRetryQueue(maxAttempts int) *RetryQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RetryQueue{
		maxAttempts: maxAttempts,
		entries:     make(map[string][]*retryEntry),
	}
}

// Enqueue adds p to deviceID's retry queue, eligible for its first retry
// immediately.
func (q *RetryQueue) Enqueue(deviceID string, p *packet.Packet) {
	q.entries[deviceID] = append(q.entries[deviceID], &retryEntry{
		packet:    p,
		nextTryAt: time.Now(),
	})
}

// Clear drops every queued entry for deviceID, called on successful
// (re)connect.
func (q *RetryQueue) Clear(deviceID string) {
	delete(q.entries, deviceID)
}

// Len returns the number of entries queued for deviceID.
func (q *RetryQueue) Len(deviceID string) int {
	return len(q.entries[deviceID])
}

// TotalLen returns the number of entries queued across every device.
func (q *RetryQueue) TotalLen() int {
	n := 0
	for _, pending := range q.entries {
		n += len(pending)
	}
	return n
}

// Process re-sends every due entry across all devices via send. Entries
// that succeed are removed; entries that fail have their attempt count
// bumped and their next try rescheduled with backoff; entries that exceed
// maxAttempts are dropped and reported in the returned slice.
func (q *RetryQueue) Process(send SendFunc) []DroppedEntry {
	var dropped []DroppedEntry
	now := time.Now()

	for deviceID, pending := range q.entries {
		var remaining []*retryEntry
		for _, e := range pending {
			if e.nextTryAt.After(now) {
				remaining = append(remaining, e)
				continue
			}

			if err := send(deviceID, e.packet); err == nil {
				continue
			}

			e.attempts++
			if e.attempts >= q.maxAttempts {
				dropped = append(dropped, DroppedEntry{DeviceID: deviceID, Packet: e.packet, Attempts: e.attempts})
				continue
			}
			e.nextTryAt = now.Add(backoffForAttempt(e.attempts))
			remaining = append(remaining, e)
		}

		if len(remaining) == 0 {
			delete(q.entries, deviceID)
		} else {
			q.entries[deviceID] = remaining
		}
	}

	return dropped
}
