package recovery

import "errors"

var (
	// ErrQuiescent is returned when a reconnect is requested for a device
	// that has exhausted MaxConsecutiveFailures and is waiting for a user
	// action or a fresh discovery event.
	ErrQuiescent = errors.New("recovery: device reconnection is quiescent")

	// ErrNotPaired is returned when a reconnect or retry is requested for
	// a device that is not Paired.
	ErrNotPaired = errors.New("recovery: device is not paired")
)
