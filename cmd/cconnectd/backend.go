package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/api"
	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/olafkfreund/cosmic-connectd/pkg/pairing"
	"github.com/olafkfreund/cosmic-connectd/pkg/session"
)

// ListDevices implements api.Backend.
func (d *daemon) ListDevices() []api.DeviceInfo {
	records := d.devices.snapshot()
	out := make([]api.DeviceInfo, 0, len(records))
	for id, rec := range records {
		s := d.sessions.Find(id)
		out = append(out, api.DeviceInfo{
			DeviceID:     id,
			DeviceName:   rec.info.DeviceName,
			DeviceType:   string(rec.info.DeviceType),
			PairingState: d.pairingSvc.State(id).String(),
			SessionState: apiSessionState(s),
			LastSeenUnix: rec.lastSeen.Unix(),
			Capabilities: capabilities(rec.info),
			MACAddress:   d.deviceCfg.MACAddress(id),
		})
	}
	return out
}

// apiSessionState maps a (possibly absent) live session to the API's
// session-state vocabulary, which spells "awaiting_pairing" with an
// underscore where session.State.String() uses a hyphen.
func apiSessionState(s *session.Session) string {
	if s == nil {
		return "disconnected"
	}
	switch s.State() {
	case session.StateConnecting:
		return "connecting"
	case session.StateAwaitingPairing:
		return "awaiting_pairing"
	case session.StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// PairRequest implements api.Backend.
func (d *daemon) PairRequest(deviceID string) error {
	s := d.sessions.Find(deviceID)
	if s == nil {
		return fmt.Errorf("cconnectd: no live session for %s", deviceID)
	}
	return d.pairingSvc.Request(deviceID, s)
}

// PairAccept implements api.Backend.
func (d *daemon) PairAccept(deviceID string) error {
	s := d.sessions.Find(deviceID)
	if err := d.pairingSvc.Accept(deviceID, senderOrNil(s)); err != nil {
		return err
	}
	if s != nil {
		rec := d.devices.get(deviceID)
		deviceName := ""
		if rec != nil {
			deviceName = rec.info.DeviceName
		}
		d.afterPairingAccepted(deviceID, deviceName, s)
	}
	return nil
}

// PairReject implements api.Backend.
func (d *daemon) PairReject(deviceID string) error {
	s := d.sessions.Find(deviceID)
	return d.pairingSvc.Reject(deviceID, senderOrNil(s))
}

// Unpair implements api.Backend.
func (d *daemon) Unpair(deviceID string) error {
	s := d.sessions.Find(deviceID)
	if err := d.pairingSvc.Unpair(deviceID, senderOrNil(s)); err != nil {
		return err
	}
	if s != nil {
		s.Close()
	}
	return nil
}

// senderOrNil adapts a possibly-nil *session.Session to a possibly-nil
// pairing.Sender: passing a typed-nil *session.Session directly as a
// pairing.Sender would produce a non-nil interface value, which pairing's
// nil checks would then miss.
func senderOrNil(s *session.Session) pairing.Sender {
	if s == nil {
		return nil
	}
	return s
}

// SendPacket implements api.Backend. A send that fails because the session
// is down is queued for retry rather than reported as a failure, matching
// the daemon's own delivery-path behavior for plugin traffic.
func (d *daemon) SendPacket(deviceID, packetType string, bodyJSON string) error {
	p, err := packet.New(time.Now().UnixMilli(), packetType, json.RawMessage(bodyJSON))
	if err != nil {
		return fmt.Errorf("cconnectd: build packet: %w", err)
	}

	s := d.sessions.Find(deviceID)
	if s == nil {
		d.recovery.EnqueueRetry(deviceID, p)
		return nil
	}
	if err := s.Send(p); err != nil {
		d.recovery.EnqueueRetry(deviceID, p)
		return nil
	}
	d.metrics.IncPacketsSent(deviceID, packetType)
	return nil
}

// SetDeviceConfig implements api.Backend: it records a live per-device
// plugin enable/disable override, consulted by pluginEnabled on the next
// Activate for that device (spec section 4.7's device-override-wins rule).
func (d *daemon) SetDeviceConfig(deviceID, pluginName string, enabled bool) error {
	return d.deviceCfg.SetPlugin(deviceID, pluginName, enabled)
}

// SetDeviceMAC implements api.Backend: it records deviceID's Wake-on-LAN
// MAC address for later retrieval via ListDevices. The daemon never emits
// the magic packet itself.
func (d *daemon) SetDeviceMAC(deviceID, macAddress string) error {
	return d.deviceCfg.SetMACAddress(deviceID, macAddress)
}

// Diagnostics implements api.Backend.
func (d *daemon) Diagnostics() api.Diagnostics {
	return api.Diagnostics{
		ActiveSessions:     int32(d.sessions.Count()),
		KnownDevices:       int32(d.devices.count()),
		PairedDevices:      int32(d.trust.Count()),
		RetryQueueLength:   int32(d.recovery.RetryQueueDepth()),
		ReconnectsInFlight: int32(d.recovery.ReconnectsInFlight()),
	}
}

var _ api.Backend = (*daemon)(nil)
