package plugin

import (
	"sync/atomic"
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/pion/logging"
)

// PingPluginName is the registry name of the ping plugin.
const PingPluginName = "ping"

const pingPacketType = "kdeconnect.ping"

type pingBody struct {
	Message string `json:"message,omitempty"`
}

// PingFactory produces PingPlugin instances, one per device.
type PingFactory struct {
	LoggerFactory logging.LoggerFactory
}

// Name implements Factory.
func (PingFactory) Name() string { return PingPluginName }

// IncomingCapabilities implements Factory.
func (PingFactory) IncomingCapabilities() []string { return []string{pingPacketType} }

// OutgoingCapabilities implements Factory.
func (PingFactory) OutgoingCapabilities() []string { return []string{pingPacketType} }

// Create implements Factory.
func (f PingFactory) Create() Plugin {
	var log logging.LeveledLogger
	if f.LoggerFactory != nil {
		log = f.LoggerFactory.NewLogger("plugin.ping")
	}
	return &PingPlugin{log: log}
}

// PingPlugin answers connectivity checks: every received ping increments
// a counter and is logged; replying is left to the caller (fire-and-
// forget per the protocol).
type PingPlugin struct {
	device   Device
	sender   Sender
	log      logging.LeveledLogger
	received atomic.Uint64
	sent     atomic.Uint64
}

var _ Plugin = (*PingPlugin)(nil)
var _ Factory = PingFactory{}

// Name implements Plugin.
func (p *PingPlugin) Name() string { return PingPluginName }

// IncomingCapabilities implements Plugin.
func (p *PingPlugin) IncomingCapabilities() []string { return []string{pingPacketType} }

// OutgoingCapabilities implements Plugin.
func (p *PingPlugin) OutgoingCapabilities() []string { return []string{pingPacketType} }

// Init implements Plugin.
func (p *PingPlugin) Init(device Device, sender Sender) {
	p.device = device
	p.sender = sender
}

// Start implements Plugin.
func (p *PingPlugin) Start() {}

// Stop implements Plugin.
func (p *PingPlugin) Stop() {
	if p.log != nil {
		p.log.Debugf("ping plugin stopped for %s: received=%d sent=%d", p.device.DeviceID, p.Received(), p.Sent())
	}
}

// HandlePacket implements Plugin.
func (p *PingPlugin) HandlePacket(pkt *packet.Packet) error {
	var body pingBody
	if err := pkt.UnmarshalBody(&body); err != nil {
		return err
	}
	p.received.Add(1)
	if p.log != nil {
		p.log.Infof("ping from %s: %q", p.device.DeviceID, body.Message)
	}
	return nil
}

// Received returns the number of pings received from this device.
func (p *PingPlugin) Received() uint64 { return p.received.Load() }

// Sent returns the number of pings sent to this device.
func (p *PingPlugin) Sent() uint64 { return p.sent.Load() }

// Ping sends a ping packet, optionally carrying message.
func (p *PingPlugin) Ping(message string) error {
	pkt, err := packet.New(time.Now().UnixMilli(), pingPacketType, pingBody{Message: message})
	if err != nil {
		return err
	}
	if err := p.sender.Send(pkt); err != nil {
		return err
	}
	p.sent.Add(1)
	return nil
}
