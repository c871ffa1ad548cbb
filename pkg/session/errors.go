package session

import "errors"

// Session package errors.
var (
	// ErrSessionExists is returned by Table.Add when a session already
	// exists for the device id: at most one Session per device id.
	ErrSessionExists = errors.New("session: session already exists for device")

	// ErrSessionNotFound is returned when a session lookup fails.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrNotConnected is returned by Send when the session's state does not
	// permit sending the given packet.
	ErrNotConnected = errors.New("session: not connected")

	// ErrQueueFull is returned by Send when the outbound write queue is at
	// capacity.
	ErrQueueFull = errors.New("session: write queue full")

	// ErrClosed is returned by an operation on an already-closed Session.
	ErrClosed = errors.New("session: closed")
)
