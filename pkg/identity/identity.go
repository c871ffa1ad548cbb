// Package identity manages this installation's self-identity: a stable
// device id, a human-readable name and type, and the X.509 key pair used to
// authenticate TCP+TLS transports.
//
// See spec sections 3 and 4.2.
package identity

// DeviceType enumerates the device kinds carried in an identity packet.
type DeviceType string

// Device types recognized on the wire (spec section 6.1).
const (
	DeviceTypePhone   DeviceType = "phone"
	DeviceTypeTablet  DeviceType = "tablet"
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeLaptop  DeviceType = "laptop"
	DeviceTypeTV      DeviceType = "tv"
)

// ProtocolVersion is the identity packet's "protocolVersion" field value
// this implementation speaks.
const ProtocolVersion = 7

// EmitNamespace controls which namespace prefix this installation emits on
// the wire. Both "kdeconnect" and "cconnect" are always accepted on read
// (packet.NamespaceEquivalent); this only governs what we write. See
// DESIGN.md Open Question 1.
var EmitNamespace = "kdeconnect"

// Info is the payload of an identity packet (spec section 3, "DeviceInfo").
type Info struct {
	DeviceID             string     `json:"deviceId"`
	DeviceName           string     `json:"deviceName"`
	DeviceType           DeviceType `json:"deviceType"`
	ProtocolVersion      int        `json:"protocolVersion"`
	TCPPort              uint16     `json:"tcpPort"`
	IncomingCapabilities []string   `json:"incomingCapabilities"`
	OutgoingCapabilities []string   `json:"outgoingCapabilities"`
}

// PacketType returns the identity packet type for the configured emit
// namespace.
func PacketType() string {
	return EmitNamespace + ".identity"
}
