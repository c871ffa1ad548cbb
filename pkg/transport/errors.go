package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrNotConnected is returned when SendPacket/ReceivePacket is called
	// before the transport is connected.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAlreadyStarted is returned when Listen/Start is called twice.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrPacketTooLarge is returned by SendPacket when the encoded packet
	// exceeds the transport's max packet size (spec section 4.4).
	ErrPacketTooLarge = errors.New("transport: packet too large")

	// ErrNoTransportAvailable is returned by the Manager when no transport
	// kind permitted by the active Preference is reachable for a peer.
	ErrNoTransportAvailable = errors.New("transport: no transport available for peer")

	// ErrBluetoothUnavailable is returned by the Bluetooth dialer/listener
	// when no L2CAP backend is available on this platform.
	ErrBluetoothUnavailable = errors.New("transport: bluetooth unavailable")

	// ErrFingerprintMismatch is returned when a TCP peer's certificate does
	// not match the fingerprint the caller expected (TOFU re-pairing guard).
	ErrFingerprintMismatch = errors.New("transport: peer certificate fingerprint mismatch")
)
