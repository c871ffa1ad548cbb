// Package discovery finds peers on the local network: a UDP broadcast
// identity announce/listen loop, an optional mDNS fallback, and an optional
// Bluetooth LE scan, unified behind a single Event stream.
//
// See spec section 4.3.
package discovery

// TransportHint identifies which transport a discovered peer was seen on.
// A peer seen on more than one transport produces one Event per transport;
// the session manager resolves which to use (spec section 4.5).
type TransportHint int

// TransportHint constants.
const (
	TransportUnknown TransportHint = iota
	TransportTCP
	TransportBluetooth
)

// String returns a human-readable transport name.
func (t TransportHint) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportBluetooth:
		return "bluetooth"
	default:
		return "unknown"
	}
}

// EventKind identifies the variant of a discovery Event (spec section 4.3,
// "Events (unified)").
type EventKind int

// EventKind constants.
const (
	EventUnknown EventKind = iota
	// EventServiceStarted is emitted once discovery begins listening.
	EventServiceStarted
	// EventDeviceDiscovered is emitted the first time a device id is seen.
	EventDeviceDiscovered
	// EventDeviceUpdated is emitted on a repeated identity from a known device id.
	EventDeviceUpdated
	// EventDeviceTimeout is emitted when a peer has not been heard from within
	// the configured timeout.
	EventDeviceTimeout
	// EventError reports a non-fatal discovery error (e.g. a malformed
	// datagram); discovery continues running.
	EventError
)

// String returns a human-readable event kind name.
func (k EventKind) String() string {
	switch k {
	case EventServiceStarted:
		return "ServiceStarted"
	case EventDeviceDiscovered:
		return "DeviceDiscovered"
	case EventDeviceUpdated:
		return "DeviceUpdated"
	case EventDeviceTimeout:
		return "DeviceTimeout"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}
