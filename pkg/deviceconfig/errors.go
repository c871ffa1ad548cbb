package deviceconfig

import "errors"

// ErrCorruptState is returned when the persisted device config store
// cannot be parsed.
var ErrCorruptState = errors.New("deviceconfig: persisted state is corrupt")
