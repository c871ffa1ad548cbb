package api

import "errors"

var (
	// ErrDeviceNotFound is returned by backend operations targeting a
	// device id the daemon has never discovered or paired.
	ErrDeviceNotFound = errors.New("api: unknown device")

	// ErrBusNameTaken is returned by Start when the well-known D-Bus name
	// is already owned by another process.
	ErrBusNameTaken = errors.New("api: well-known bus name already owned")
)
