// Package session manages the runtime connection state machine between
// this installation and a peer: exactly one Session per device id, each
// with a reader task, a writer task, and a bounded outbound queue.
//
// See spec sections 3 and 4.6.
package session

// State is a Session's connection lifecycle state (spec glossary,
// "Session").
type State int

// State constants.
const (
	// StateConnecting is set immediately after a Transport is attached,
	// before the peer has completed pairing/trust verification.
	StateConnecting State = iota

	// StateAwaitingPairing is set when the peer is not yet trusted; only
	// pairing packets may be sent or accepted.
	StateAwaitingPairing

	// StateConnected is set once the peer is trusted; all packet types may
	// be sent or accepted.
	StateConnected

	// StateDisconnected is terminal: the transport has closed or failed and
	// the Session is no longer usable.
	StateDisconnected
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingPairing:
		return "awaiting-pairing"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
