package api

// Backend is the set of daemon operations the external API surface exposes.
// It is implemented by the daemon's wiring code (cmd/cconnectd), keeping
// this package free of a direct dependency on every other internal package.
type Backend interface {
	ListDevices() []DeviceInfo
	PairRequest(deviceID string) error
	PairAccept(deviceID string) error
	PairReject(deviceID string) error
	Unpair(deviceID string) error
	SendPacket(deviceID, packetType string, bodyJSON string) error
	SetDeviceConfig(deviceID, pluginName string, enabled bool) error
	SetDeviceMAC(deviceID, macAddress string) error
	Diagnostics() Diagnostics
}
