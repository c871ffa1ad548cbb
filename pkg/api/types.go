package api

// DeviceInfo is the D-Bus-marshalable view of a known device, returned by
// ListDevices and carried in DeviceListChanged signals. DeviceStateChanged
// carries the device id and state strings, not this struct.
type DeviceInfo struct {
	DeviceID     string
	DeviceName   string
	DeviceType   string
	PairingState string // "unpaired", "requested", "paired"
	SessionState string // "disconnected", "connecting", "awaiting_pairing", "connected"
	LastSeenUnix int64
	Capabilities []string
	MACAddress   string // Wake-on-LAN MAC, empty if never set via SetDeviceMAC
}

// Diagnostics is the snapshot returned by GetDiagnostics: counts useful for
// a CLI client or support bundle without requiring metrics scraping.
type Diagnostics struct {
	ActiveSessions     int32
	KnownDevices       int32
	PairedDevices      int32
	RetryQueueLength   int32
	ReconnectsInFlight int32
}
