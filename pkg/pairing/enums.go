// Package pairing implements the TOFU pair/unpair ceremony and the
// optional Ed25519 challenge-response extension used for elevated
// operations (e.g. desktop unlock) once a device is paired.
package pairing

// State is a peer's pairing state machine state.
type State int

// State constants.
const (
	// StateUnpaired is the default state: no trust established.
	StateUnpaired State = iota

	// StateRequested is entered after we send an outgoing pair request; a
	// 30 s timer is running. Accepting an incoming request moves straight
	// to StatePaired.
	StateRequested

	// StatePaired is entered once both sides have confirmed the pairing
	// ceremony; the peer's certificate and fingerprint are persisted to
	// the trust store.
	StatePaired
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateUnpaired:
		return "unpaired"
	case StateRequested:
		return "requested"
	case StatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// EventKind identifies the variant of an Event emitted by the Service.
type EventKind int

// EventKind constants.
const (
	EventUnknown EventKind = iota
	EventRequestSent
	EventRequestReceived
	EventPairingAccepted
	EventPairingRejected
	EventPairingTimeout
	EventDeviceUnpaired
)

// String returns the event kind's name.
func (k EventKind) String() string {
	switch k {
	case EventRequestSent:
		return "request-sent"
	case EventRequestReceived:
		return "request-received"
	case EventPairingAccepted:
		return "pairing-accepted"
	case EventPairingRejected:
		return "pairing-rejected"
	case EventPairingTimeout:
		return "pairing-timeout"
	case EventDeviceUnpaired:
		return "device-unpaired"
	default:
		return "unknown"
	}
}
