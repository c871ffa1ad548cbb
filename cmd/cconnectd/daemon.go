package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/olafkfreund/cosmic-connectd/internal/config"
	"github.com/olafkfreund/cosmic-connectd/internal/metrics"
	"github.com/olafkfreund/cosmic-connectd/pkg/deviceconfig"
	"github.com/olafkfreund/cosmic-connectd/pkg/discovery"
	"github.com/olafkfreund/cosmic-connectd/pkg/identity"
	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/olafkfreund/cosmic-connectd/pkg/pairing"
	"github.com/olafkfreund/cosmic-connectd/pkg/plugin"
	"github.com/olafkfreund/cosmic-connectd/pkg/recovery"
	"github.com/olafkfreund/cosmic-connectd/pkg/session"
	"github.com/olafkfreund/cosmic-connectd/pkg/transport"
	"github.com/olafkfreund/cosmic-connectd/pkg/trust"

	"github.com/olafkfreund/cosmic-connectd/pkg/api"
	"github.com/pion/logging"
)

// daemon wires every package together: it owns the identity, trust,
// discovery, transport, pairing, session, plugin, recovery and API
// components and implements the session-establishment and packet-dispatch
// logic that glues them (spec section 4.6).
type daemon struct {
	cfg *config.Config
	log logging.LeveledLogger

	identity  *identity.Store
	trust     *trust.Store
	deviceCfg *deviceconfig.Store

	discoveryMgr *discovery.Manager
	transportMgr *transport.Manager
	listener     *transport.Listener
	pairingSvc   *pairing.Service
	sessions     *session.Manager
	plugins      *plugin.Registry
	recovery     *recovery.Coordinator
	apiSvc       *api.Service
	metrics      *metrics.Collector

	devices *deviceRegistry
}

// newDaemon constructs every component but starts none of them; call Run to
// begin discovery, accepting connections, and reconnection.
func newDaemon(cfg *config.Config, idStore *identity.Store, trustStore *trust.Store, deviceCfg *deviceconfig.Store, collector *metrics.Collector, loggerFactory logging.LoggerFactory) (*daemon, error) {
	d := &daemon{
		cfg:       cfg,
		identity:  idStore,
		trust:     trustStore,
		deviceCfg: deviceCfg,
		metrics:   collector,
		devices:   newDeviceRegistry(cfg.Discovery.Port),
	}
	if loggerFactory != nil {
		d.log = loggerFactory.NewLogger("daemon")
	}

	certInfo := idStore.Certificate()
	cert, err := certInfo.TLSCertificate()
	if err != nil {
		return nil, fmt.Errorf("daemon: load tls certificate: %w", err)
	}

	transportMgr, err := transport.NewManager(transport.ManagerConfig{
		Certificate:   cert,
		Preference:    parsePreference(cfg.Transport.Preference),
		MaxPacketSize: cfg.Transport.MaxPacketSize,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: create transport manager: %w", err)
	}
	d.transportMgr = transportMgr

	listener, err := transport.Listen(transport.ListenerConfig{
		Addr:          fmt.Sprintf(":%d", cfg.Discovery.Port),
		Certificate:   cert,
		MaxPacketSize: cfg.Transport.MaxPacketSize,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: listen tcp: %w", err)
	}
	d.listener = listener

	d.pairingSvc = pairing.NewService(pairing.Config{
		Store:         trustStore,
		OnEvent:       d.handlePairingEvent,
		Timeout:       cfg.Pairing.Timeout,
		LoggerFactory: loggerFactory,
	})

	plugins, err := plugin.NewRegistry(plugin.Config{
		Factories:     []plugin.Factory{plugin.PingFactory{}, plugin.BatteryFactory{}},
		Enabled:       d.pluginEnabled,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: create plugin registry: %w", err)
	}
	d.plugins = plugins

	d.sessions = session.NewManager(session.ManagerConfig{
		OnPacket:      d.handlePacket,
		OnDisconnect:  d.handleDisconnect,
		LoggerFactory: loggerFactory,
	})

	d.recovery = recovery.NewCoordinator(recovery.Config{
		Connect:       d.connectToDevice,
		IsPaired:      d.isPaired,
		MaxAttempts:   cfg.Recovery.MaxAttempts,
		InitialDelay:  cfg.Recovery.InitialDelay,
		MaxDelay:      cfg.Recovery.MaxDelay,
		LoggerFactory: loggerFactory,
	})

	discoveryMgr, err := discovery.NewManager(discovery.ManagerConfig{
		Port:              cfg.Discovery.Port,
		BroadcastInterval: cfg.Discovery.BroadcastInterval,
		PeerTimeout:       cfg.Discovery.PeerTimeout,
		SelfInfo:          d.selfInfo,
		Bluetooth:         cfg.Transport.BluetoothEnabled,
		MDNS:              true,
		LoggerFactory:     loggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: create discovery manager: %w", err)
	}
	d.discoveryMgr = discoveryMgr

	d.apiSvc = api.NewService(api.Config{Backend: d, LoggerFactory: loggerFactory})

	return d, nil
}

// parsePreference maps the configuration's transport preference string to
// the transport package's enum. config.ValidPreferences only admits the
// four values below; anything else falls back to PreferTCP.
func parsePreference(s string) transport.Preference {
	switch s {
	case "bluetooth":
		return transport.PreferBluetooth
	case "tcp_first":
		return transport.TCPFirst
	case "bluetooth_first":
		return transport.BluetoothFirst
	case "tcp":
		fallthrough
	default:
		return transport.PreferTCP
	}
}

// selfInfo builds the identity packet payload advertised both over UDP
// broadcast and as the first packet on every new TCP session.
func (d *daemon) selfInfo() identity.Info {
	info := d.identity.Info()
	info.ProtocolVersion = identity.ProtocolVersion
	info.TCPPort = uint16(d.cfg.Discovery.Port)
	info.IncomingCapabilities = d.plugins.IncomingCapabilities()
	info.OutgoingCapabilities = d.plugins.OutgoingCapabilities()
	return info
}

// Run starts discovery, the TCP accept loop, the discovery-event loop, and
// the periodic retry-queue drain, then blocks until ctx is cancelled.
func (d *daemon) Run(ctx context.Context) error {
	if err := d.discoveryMgr.Start(ctx); err != nil {
		return fmt.Errorf("daemon: start discovery: %w", err)
	}

	if d.cfg.API.Enabled {
		if err := d.apiSvc.Start(); err != nil && d.log != nil {
			d.log.Warnf("api: failed to start D-Bus service: %v", err)
		}
	}

	go d.acceptLoop(ctx)
	go d.discoveryEventLoop(ctx)
	go d.recovery.Run(ctx, d.cfg.Recovery.RetryInterval, d.sendForRetry)

	<-ctx.Done()
	return nil
}

// Shutdown tears down every component in reverse dependency order and
// stops metricsSrv.
func (d *daemon) Shutdown(metricsSrv *http.Server) error {
	if d.log != nil {
		d.log.Info("daemon: shutting down")
	}

	d.listener.Close()
	d.discoveryMgr.Close()
	d.sessions.CloseAll()
	d.recovery.Close()
	d.apiSvc.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("daemon: shut down metrics server: %w", err)
	}
	return nil
}

// acceptLoop accepts inbound TCP+mTLS connections and hands each to
// handleIncoming, which resolves the peer's device id before a Session is
// created.
func (d *daemon) acceptLoop(ctx context.Context) {
	for {
		conn, err := d.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if d.log != nil {
				d.log.Warnf("accept: %v", err)
			}
			continue
		}
		go d.handleIncoming(ctx, conn)
	}
}

// handleIncoming reads the peer's identity packet directly off conn, since
// the session table is keyed by device id and none is known until that
// packet arrives (spec section 4.6, steps 1-2).
func (d *daemon) handleIncoming(ctx context.Context, conn *transport.TCPConn) {
	p, err := conn.ReceivePacket()
	if err != nil {
		conn.Close()
		return
	}
	if packet.Plugin(p.Type) != "identity" {
		if d.log != nil {
			d.log.Warnf("incoming connection sent %q before identity, dropping", p.Type)
		}
		conn.Close()
		return
	}

	var info identity.Info
	if err := p.UnmarshalBody(&info); err != nil || info.DeviceID == "" {
		conn.Close()
		return
	}
	if d.sessions.Contains(info.DeviceID) {
		if d.log != nil {
			d.log.Warnf("rejecting duplicate incoming session for %s", info.DeviceID)
		}
		conn.Close()
		return
	}

	d.devices.observeSession(info, conn.RemoteAddress())

	s, err := d.sessions.Open(ctx, info.DeviceID, conn, session.StateConnecting)
	if err != nil {
		conn.Close()
		return
	}
	d.metrics.RegisterSession()

	d.establishTrust(info.DeviceID, info.DeviceName, s)
	if err := d.sendIdentity(s); err != nil && d.log != nil {
		d.log.Warnf("reply identity to %s: %v", info.DeviceID, err)
	}
}

// connectToDevice dials deviceID using its last known discovery address and
// opens a session in StateConnecting. Used both for auto-connecting newly
// discovered devices and as the recovery coordinator's ConnectFunc.
func (d *daemon) connectToDevice(ctx context.Context, deviceID string) error {
	if d.sessions.Contains(deviceID) {
		return nil
	}

	candidate := d.devices.candidate(deviceID)
	tr, err := d.transportMgr.Dial(ctx, candidate)
	if err != nil {
		return fmt.Errorf("daemon: dial %s: %w", deviceID, err)
	}

	s, err := d.sessions.Open(ctx, deviceID, tr, session.StateConnecting)
	if err != nil {
		tr.Close()
		return fmt.Errorf("daemon: open session for %s: %w", deviceID, err)
	}
	d.metrics.RegisterSession()

	if err := d.sendIdentity(s); err != nil {
		s.Close()
		return fmt.Errorf("daemon: send identity to %s: %w", deviceID, err)
	}
	return nil
}

// sendIdentity enqueues our own identity packet on s, the first message
// either side sends on a new session.
func (d *daemon) sendIdentity(s *session.Session) error {
	p, err := packet.New(time.Now().UnixMilli(), identity.PacketType(), d.selfInfo())
	if err != nil {
		return err
	}
	return s.Send(p)
}

// handlePacket is the session manager's OnPacket hook: identity and pair
// packets drive the connection state machine directly; everything else is
// only dispatched once the session is fully Connected (spec section 4.6).
func (d *daemon) handlePacket(deviceID string, p *packet.Packet) {
	d.metrics.IncPacketsReceived(deviceID, p.Type)

	switch packet.Plugin(p.Type) {
	case "identity":
		d.handleIdentityPacket(deviceID, p)
	case "pair":
		d.handlePairPacket(deviceID, p)
	default:
		s := d.sessions.Find(deviceID)
		if s == nil || s.State() != session.StateConnected {
			if d.log != nil {
				d.log.Warnf("dropping %s from %s: session not connected", p.Type, deviceID)
			}
			return
		}
		d.plugins.Dispatch(deviceID, p)
		d.apiSvc.EmitPacketReceived(deviceID, p.Type)
	}
}

// handleIdentityPacket processes the peer's identity packet arriving after
// we dialed out: it updates device bookkeeping and resolves trust.
func (d *daemon) handleIdentityPacket(deviceID string, p *packet.Packet) {
	var info identity.Info
	if err := p.UnmarshalBody(&info); err != nil {
		if d.log != nil {
			d.log.Warnf("malformed identity packet from %s: %v", deviceID, err)
		}
		return
	}
	s := d.sessions.Find(deviceID)
	if s == nil {
		return
	}
	d.devices.observeSession(info, s.RemoteAddress())
	d.establishTrust(deviceID, info.DeviceName, s)
}

// establishTrust applies the TOFU policy of spec section 4.6 steps 3-4:
// a trusted device id's presented certificate must match the stored
// fingerprint exactly, or the session is torn down with no auto-retry; an
// untrusted device id's session is gated to pairing traffic only.
func (d *daemon) establishTrust(deviceID, deviceName string, s *session.Session) {
	fingerprint := s.PeerFingerprint()

	if d.trust.Contains(deviceID) {
		want, err := d.trust.FingerprintOf(deviceID)
		if err == nil && want == fingerprint {
			d.afterPairingAccepted(deviceID, deviceName, s)
			return
		}

		if d.log != nil {
			d.log.Warnf("certificate fingerprint mismatch for %s, tearing down session", deviceID)
		}
		d.apiSvc.EmitDeviceStateChanged(deviceID, "paired", "disconnected")
		s.Close()
		return
	}

	d.transitionState(deviceID, s, session.StateAwaitingPairing)
	d.apiSvc.EmitDeviceStateChanged(deviceID, "unpaired", "awaiting_pairing")
}

// handlePairPacket routes an incoming `<ns>.pair` packet to the pairing
// service, supplying the peer details it needs to persist to the trust
// store, then lifts the session to Connected if the ceremony completed.
func (d *daemon) handlePairPacket(deviceID string, p *packet.Packet) {
	s := d.sessions.Find(deviceID)
	if s == nil {
		return
	}

	rec := d.devices.get(deviceID)
	deviceName := ""
	if rec != nil {
		deviceName = rec.info.DeviceName
	}

	certDER := s.PeerCertificateDER()
	fingerprint := s.PeerFingerprint()

	if err := d.pairingSvc.HandleIncoming(deviceID, deviceName, fingerprint, certDER, s, p); err != nil {
		if d.log != nil {
			d.log.Warnf("pairing: handle incoming from %s: %v", deviceID, err)
		}
		return
	}

	if d.pairingSvc.State(deviceID) == pairing.StatePaired && s.State() != session.StateConnected {
		d.afterPairingAccepted(deviceID, deviceName, s)
	}
}

// afterPairingAccepted lifts a newly-trusted device's session to Connected,
// activates its plugin set, and resets its reconnection strategy.
func (d *daemon) afterPairingAccepted(deviceID, deviceName string, s *session.Session) {
	d.transitionState(deviceID, s, session.StateConnected)
	d.plugins.Activate(plugin.Device{DeviceID: deviceID, DeviceName: deviceName}, s)
	d.recovery.NotifyConnected(deviceID)
	d.apiSvc.EmitDeviceStateChanged(deviceID, "paired", "connected")
}

// transitionState updates a session's state and records the transition.
func (d *daemon) transitionState(deviceID string, s *session.Session, next session.State) {
	prev := s.State()
	s.SetState(next)
	d.metrics.RecordStateTransition(deviceID, prev.String(), next.String())
}

// handleDisconnect is the session manager's OnDisconnect hook: it tears
// down per-device plugins, notifies recovery so it can schedule a
// reconnect, and reports the new state over the API.
func (d *daemon) handleDisconnect(deviceID string, err error) {
	d.metrics.UnregisterSession()
	d.plugins.Deactivate(deviceID)
	d.recovery.NotifyDisconnected(deviceID, err)
	d.apiSvc.EmitDeviceStateChanged(deviceID, d.pairingStateString(deviceID), "disconnected")
}

// handlePairingEvent is the pairing service's EventFunc: it surfaces
// ceremony events as metrics and D-Bus signals.
func (d *daemon) handlePairingEvent(e pairing.Event) {
	d.metrics.IncPairingEvent(e.DeviceID, e.Kind.String())
	d.apiSvc.EmitPairingEvent(e.DeviceID, e.Kind.String())
}

// discoveryEventLoop drains the discovery manager's event channel for the
// lifetime of ctx, maintaining device bookkeeping and auto-connecting newly
// seen, not-yet-sessioned peers.
func (d *daemon) discoveryEventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.discoveryMgr.Events():
			if !ok {
				return
			}
			d.handleDiscoveryEvent(ctx, ev)
		}
	}
}

func (d *daemon) handleDiscoveryEvent(ctx context.Context, ev discovery.Event) {
	switch ev.Kind {
	case discovery.EventDeviceDiscovered, discovery.EventDeviceUpdated:
		d.devices.observeDiscovery(ev)
		d.metrics.DiscoveredPeers.Set(float64(d.devices.count()))
		d.recovery.NotifyDiscovered(ev.Info.DeviceID)

		if !d.sessions.Contains(ev.Info.DeviceID) {
			deviceID := ev.Info.DeviceID
			go func() {
				if err := d.connectToDevice(ctx, deviceID); err != nil && d.log != nil {
					d.log.Debugf("auto-connect to %s: %v", deviceID, err)
				}
			}()
		}

	case discovery.EventDeviceTimeout:
		d.devices.forget(ev.DeviceID)
		d.metrics.DiscoveredPeers.Set(float64(d.devices.count()))

	case discovery.EventError:
		if d.log != nil {
			d.log.Warnf("discovery: %v", ev.Err)
		}
	}
}

// sendForRetry is the recovery coordinator's SendFunc: it redrives a queued
// packet through the device's current live session, if any.
func (d *daemon) sendForRetry(deviceID string, p *packet.Packet) error {
	s := d.sessions.Find(deviceID)
	if s == nil {
		return fmt.Errorf("daemon: no live session for %s", deviceID)
	}
	if err := s.Send(p); err != nil {
		return err
	}
	d.metrics.IncPacketsSent(deviceID, p.Type)
	return nil
}

// isPaired reports whether deviceID is Paired, the recovery coordinator's
// precondition for scheduling automatic reconnection.
func (d *daemon) isPaired(deviceID string) bool {
	return d.pairingSvc.State(deviceID) == pairing.StatePaired
}

// pairingStateString returns deviceID's pairing state as the API's
// lowercase string form.
func (d *daemon) pairingStateString(deviceID string) string {
	return d.pairingSvc.State(deviceID).String()
}

// pluginEnabled is the plugin registry's EnabledFunc: a live SetDeviceConfig
// override wins over the static configuration default (spec section 4.7).
func (d *daemon) pluginEnabled(deviceID, pluginName string) bool {
	if enabled, ok := d.deviceCfg.PluginOverride(deviceID, pluginName); ok {
		return enabled
	}
	return d.cfg.Plugins.IsEnabled(deviceID, pluginName)
}
