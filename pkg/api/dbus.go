package api

import (
	"github.com/godbus/dbus/v5"
	"github.com/pion/logging"
)

// Config configures a Service.
type Config struct {
	Backend       Backend
	LoggerFactory logging.LoggerFactory
}

// Service exports the daemon's D-Bus surface: a method interface
// (ListDevices, PairRequest/Accept/Reject, Unpair, SendPacket,
// SetDeviceConfig, SetDeviceMAC, GetDiagnostics) and a set of signals
// (DeviceListChanged, DeviceStateChanged, PairingEvent, PacketReceived).
type Service struct {
	conn *dbus.Conn
	obj  *daemonObject
	log  logging.LeveledLogger
}

// NewService creates a Service. Start must be called to connect to the bus
// and begin serving requests.
func NewService(config Config) *Service {
	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("api")
	}
	return &Service{obj: newDaemonObject(config.Backend, log), log: log}
}

// Start connects to the session bus, exports the daemon object, and
// requests BusName. It returns ErrBusNameTaken if another process already
// owns the name.
func (s *Service) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return err
	}

	if err := conn.Export(s.obj, ObjectPath, InterfaceName); err != nil {
		conn.Close()
		return err
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return ErrBusNameTaken
	}

	s.conn = conn
	return nil
}

// Close releases the bus connection.
func (s *Service) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// EmitDeviceListChanged signals that the overall device list changed.
func (s *Service) EmitDeviceListChanged(devices []DeviceInfo) error {
	return s.emit("DeviceListChanged", devices)
}

// EmitDeviceStateChanged signals a single device's pairing or session
// state transition.
func (s *Service) EmitDeviceStateChanged(deviceID, pairingState, sessionState string) error {
	return s.emit("DeviceStateChanged", deviceID, pairingState, sessionState)
}

// EmitPairingEvent signals a pairing-ceremony event (request received,
// accepted, rejected, timed out, unpaired).
func (s *Service) EmitPairingEvent(deviceID, kind string) error {
	return s.emit("PairingEvent", deviceID, kind)
}

// EmitPacketReceived signals that a packet of packetType arrived from
// deviceID, for clients observing traffic without a dedicated plugin.
func (s *Service) EmitPacketReceived(deviceID, packetType string) error {
	return s.emit("PacketReceived", deviceID, packetType)
}

func (s *Service) emit(signalName string, args ...any) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Emit(ObjectPath, InterfaceName+"."+signalName, args...)
}
