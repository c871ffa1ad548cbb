package packet

import "errors"

// Errors returned by the codec.
var (
	// ErrInvalidPacket is returned when bytes cannot be decoded into a Packet:
	// malformed UTF-8, malformed JSON, a missing "type" field, or a
	// non-numeric "id" field.
	ErrInvalidPacket = errors.New("packet: invalid packet")

	// ErrTooLarge names an encoded packet exceeding a transport's maximum
	// size. The codec does not return it; transports report that case with
	// transport.ErrPacketTooLarge.
	ErrTooLarge = errors.New("packet: too large")
)

// InvalidPacketError wraps ErrInvalidPacket with the underlying cause so
// callers can log a useful message while still matching on ErrInvalidPacket
// with errors.Is.
type InvalidPacketError struct {
	Reason string
	Err    error
}

func (e *InvalidPacketError) Error() string {
	if e.Err != nil {
		return "packet: invalid packet: " + e.Reason + ": " + e.Err.Error()
	}
	return "packet: invalid packet: " + e.Reason
}

func (e *InvalidPacketError) Unwrap() error { return ErrInvalidPacket }

func invalid(reason string, err error) error {
	return &InvalidPacketError{Reason: reason, Err: err}
}
