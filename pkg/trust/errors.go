package trust

import "errors"

// Errors returned by Store.
var (
	// ErrNotFound is returned when a device id has no trusted-peer entry.
	ErrNotFound = errors.New("trust: device not found")

	// ErrCorruptState is returned when the persisted trust store cannot be
	// parsed.
	ErrCorruptState = errors.New("trust: persisted state is corrupt")
)
