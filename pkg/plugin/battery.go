package plugin

import (
	"sync"
	"time"

	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/pion/logging"
)

// BatteryPluginName is the registry name of the battery plugin.
const BatteryPluginName = "battery"

const batteryPacketType = "kdeconnect.battery"

// ThresholdEvent values mirror the historical protocol's battery
// threshold codes.
const (
	ThresholdEventNone = 0
	ThresholdEventLow  = 1
)

type batteryBody struct {
	CurrentCharge  int  `json:"currentCharge"`
	IsCharging     bool `json:"isCharging"`
	ThresholdEvent int  `json:"thresholdEvent"`
}

// BatteryFactory produces BatteryPlugin instances, one per device.
type BatteryFactory struct {
	LoggerFactory logging.LoggerFactory
}

// Name implements Factory.
func (BatteryFactory) Name() string { return BatteryPluginName }

// IncomingCapabilities implements Factory.
func (BatteryFactory) IncomingCapabilities() []string { return []string{batteryPacketType} }

// OutgoingCapabilities implements Factory.
func (BatteryFactory) OutgoingCapabilities() []string { return []string{batteryPacketType} }

// Create implements Factory.
func (f BatteryFactory) Create() Plugin {
	var log logging.LeveledLogger
	if f.LoggerFactory != nil {
		log = f.LoggerFactory.NewLogger("plugin.battery")
	}
	return &BatteryPlugin{log: log}
}

// BatteryPlugin tracks the peer device's last reported battery state.
type BatteryPlugin struct {
	device Device
	sender Sender
	log    logging.LeveledLogger

	mu    sync.RWMutex
	state batteryBody
	seen  bool
}

var _ Plugin = (*BatteryPlugin)(nil)
var _ Factory = BatteryFactory{}

// Name implements Plugin.
func (p *BatteryPlugin) Name() string { return BatteryPluginName }

// IncomingCapabilities implements Plugin.
func (p *BatteryPlugin) IncomingCapabilities() []string { return []string{batteryPacketType} }

// OutgoingCapabilities implements Plugin.
func (p *BatteryPlugin) OutgoingCapabilities() []string { return []string{batteryPacketType} }

// Init implements Plugin.
func (p *BatteryPlugin) Init(device Device, sender Sender) {
	p.device = device
	p.sender = sender
}

// Start implements Plugin.
func (p *BatteryPlugin) Start() {}

// Stop implements Plugin.
func (p *BatteryPlugin) Stop() {}

// HandlePacket implements Plugin.
func (p *BatteryPlugin) HandlePacket(pkt *packet.Packet) error {
	var body batteryBody
	if err := pkt.UnmarshalBody(&body); err != nil {
		return err
	}

	p.mu.Lock()
	p.state = body
	p.seen = true
	p.mu.Unlock()

	if body.ThresholdEvent == ThresholdEventLow && p.log != nil {
		p.log.Warnf("low battery on %s: %d%%", p.device.DeviceID, body.CurrentCharge)
	}
	return nil
}

// State returns the last reported charge percentage, charging flag, and
// whether any battery report has been received yet.
func (p *BatteryPlugin) State() (chargePercent int, charging bool, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.CurrentCharge, p.state.IsCharging, p.seen
}

// Report sends our own battery state to the peer.
func (p *BatteryPlugin) Report(chargePercent int, charging bool, thresholdEvent int) error {
	pkt, err := packet.New(time.Now().UnixMilli(), batteryPacketType, batteryBody{
		CurrentCharge:  chargePercent,
		IsCharging:     charging,
		ThresholdEvent: thresholdEvent,
	})
	if err != nil {
		return err
	}
	return p.sender.Send(pkt)
}
