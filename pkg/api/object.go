package api

import (
	"github.com/godbus/dbus/v5"
	"github.com/pion/logging"
)

// InterfaceName is the D-Bus interface the daemon object implements.
const InterfaceName = "org.cosmicconnect.Daemon"

// ObjectPath is the object path the daemon exports itself under.
const ObjectPath = dbus.ObjectPath("/org/cosmicconnect/Daemon")

// BusName is the well-known name the daemon requests on the session bus.
const BusName = "org.cosmicconnect.Daemon"

// daemonObject implements the exported D-Bus methods. Every exported
// method's final return value is *dbus.Error per godbus's Export
// convention; its other return values become the method's D-Bus out-args.
// Kept independent of dbus.Conn so it can be exercised directly in tests.
type daemonObject struct {
	backend Backend
	log     logging.LeveledLogger
}

func newDaemonObject(backend Backend, log logging.LeveledLogger) *daemonObject {
	return &daemonObject{backend: backend, log: log}
}

// ListDevices returns every known device.
func (o *daemonObject) ListDevices() ([]DeviceInfo, *dbus.Error) {
	return o.backend.ListDevices(), nil
}

// PairRequest initiates pairing with deviceID. The outcome arrives later as
// a PairingEvent signal.
func (o *daemonObject) PairRequest(deviceID string) *dbus.Error {
	return o.wrap(o.backend.PairRequest(deviceID))
}

// PairAccept confirms an incoming pairing request from deviceID.
func (o *daemonObject) PairAccept(deviceID string) *dbus.Error {
	return o.wrap(o.backend.PairAccept(deviceID))
}

// PairReject declines an incoming pairing request, or cancels one we sent.
func (o *daemonObject) PairReject(deviceID string) *dbus.Error {
	return o.wrap(o.backend.PairReject(deviceID))
}

// Unpair removes deviceID from the trust store and notifies the peer.
func (o *daemonObject) Unpair(deviceID string) *dbus.Error {
	return o.wrap(o.backend.Unpair(deviceID))
}

// SendPacket enqueues a typed packet to deviceID; bodyJSON is the packet
// body encoded as a JSON object, kept as a string to avoid exposing D-Bus
// variant plumbing to callers.
func (o *daemonObject) SendPacket(deviceID, packetType, bodyJSON string) *dbus.Error {
	return o.wrap(o.backend.SendPacket(deviceID, packetType, bodyJSON))
}

// SetDeviceConfig enables or disables a plugin for a specific device,
// overriding the global default.
func (o *daemonObject) SetDeviceConfig(deviceID, pluginName string, enabled bool) *dbus.Error {
	return o.wrap(o.backend.SetDeviceConfig(deviceID, pluginName, enabled))
}

// SetDeviceMAC records a device's Wake-on-LAN MAC address for later
// retrieval via ListDevices; the daemon does not emit the magic packet.
func (o *daemonObject) SetDeviceMAC(deviceID, macAddress string) *dbus.Error {
	return o.wrap(o.backend.SetDeviceMAC(deviceID, macAddress))
}

// GetDiagnostics returns a snapshot of daemon-internal counters.
func (o *daemonObject) GetDiagnostics() (Diagnostics, *dbus.Error) {
	return o.backend.Diagnostics(), nil
}

func (o *daemonObject) wrap(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	if o.log != nil {
		o.log.Warnf("api call failed: %v", err)
	}
	return dbus.MakeFailedError(err)
}
