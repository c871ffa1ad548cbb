package plugin

import "errors"

var (
	// ErrUnknownPlugin is returned when a caller references a plugin name
	// not present in the registry.
	ErrUnknownPlugin = errors.New("plugin: unknown plugin name")

	// ErrNotActive is returned when an operation targets a device with no
	// active plugin Set.
	ErrNotActive = errors.New("plugin: device has no active plugin set")
)
