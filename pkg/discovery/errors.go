package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrClosed is returned when an operation is attempted on a closed Manager.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned by Start on an already-running Manager.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrInvalidPort is returned when the configured port is out of range.
	ErrInvalidPort = errors.New("discovery: invalid port (must be 1-65535)")

	// ErrBluetoothUnavailable is returned when Bluetooth LE discovery is
	// requested but no adapter/backend is available on this platform.
	ErrBluetoothUnavailable = errors.New("discovery: bluetooth unavailable")
)
