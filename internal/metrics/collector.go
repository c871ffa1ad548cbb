// Package metrics exposes cosmic-connectd's internal counters and gauges as
// Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "cosmicconnectd"
)

// Label names shared across metric vectors.
const (
	labelDeviceID   = "device_id"
	labelKind       = "kind"       // pairing event kind, e.g. request-sent
	labelPlugin     = "plugin"
	labelPacketType = "packet_type"
	labelFromState  = "from_state"
	labelToState    = "to_state"
)

// Collector holds every Prometheus metric the daemon exports.
//
//   - Sessions and Discovery gauges track current counts.
//   - Packet and pairing counters track cumulative protocol activity.
//   - Reconnect and retry counters support alerting on connectivity churn.
type Collector struct {
	// Sessions tracks the number of currently live sessions.
	Sessions prometheus.Gauge

	// DiscoveredPeers tracks the number of peers currently known to discovery.
	DiscoveredPeers prometheus.Gauge

	// SessionStateTransitions counts session FSM transitions, labeled with
	// the old and new state (spec §4.6).
	SessionStateTransitions *prometheus.CounterVec

	// PacketsSent counts packets written to a session's transport, labeled
	// by packet type.
	PacketsSent *prometheus.CounterVec

	// PacketsReceived counts packets read from a session's transport,
	// labeled by packet type.
	PacketsReceived *prometheus.CounterVec

	// PluginDispatchErrors counts handle_packet errors isolated by the
	// plugin registry, labeled by plugin name (spec §4.7).
	PluginDispatchErrors *prometheus.CounterVec

	// PairingEvents counts pairing ceremony events, labeled by device id.
	PairingEvents *prometheus.CounterVec

	// ReconnectAttempts counts reconnection attempts made by the recovery
	// coordinator, labeled by device id.
	ReconnectAttempts *prometheus.CounterVec

	// ReconnectsQuiesced counts devices that exhausted their reconnection
	// attempt budget and went quiescent.
	ReconnectsQuiesced prometheus.Counter

	// RetryQueueDepth tracks the total number of packets currently queued
	// for retry, across all devices.
	RetryQueueDepth prometheus.Gauge

	// RetryQueueDropped counts packets dropped from the retry queue after
	// exhausting their delivery attempts.
	RetryQueueDropped prometheus.Counter
}

// NewCollector creates a Collector with every metric registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.DiscoveredPeers,
		c.SessionStateTransitions,
		c.PacketsSent,
		c.PacketsReceived,
		c.PluginDispatchErrors,
		c.PairingEvents,
		c.ReconnectAttempts,
		c.ReconnectsQuiesced,
		c.RetryQueueDepth,
		c.RetryQueueDropped,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of currently live device sessions.",
		}),

		DiscoveredPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovered_peers",
			Help:      "Number of peers currently known to discovery.",
		}),

		SessionStateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_state_transitions_total",
			Help:      "Total session FSM state transitions.",
		}, []string{labelDeviceID, labelFromState, labelToState}),

		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Total packets written to a session's transport.",
		}, []string{labelDeviceID, labelPacketType}),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Total packets read from a session's transport.",
		}, []string{labelDeviceID, labelPacketType}),

		PluginDispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_dispatch_errors_total",
			Help:      "Total handle_packet errors isolated by the plugin registry.",
		}, []string{labelDeviceID, labelPlugin}),

		PairingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairing_events_total",
			Help:      "Total pairing ceremony events.",
		}, []string{labelDeviceID, labelKind}),

		ReconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Total reconnection attempts made by the recovery coordinator.",
		}, []string{labelDeviceID}),

		ReconnectsQuiesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_quiesced_total",
			Help:      "Total devices that exhausted their reconnection budget.",
		}),

		RetryQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retry_queue_depth",
			Help:      "Number of packets currently queued for retry.",
		}),

		RetryQueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_queue_dropped_total",
			Help:      "Total packets dropped from the retry queue after exhausting delivery attempts.",
		}),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// RegisterSession increments the live-session gauge.
func (c *Collector) RegisterSession() { c.Sessions.Inc() }

// UnregisterSession decrements the live-session gauge.
func (c *Collector) UnregisterSession() { c.Sessions.Dec() }

// RecordStateTransition increments the session state transition counter.
func (c *Collector) RecordStateTransition(deviceID, from, to string) {
	c.SessionStateTransitions.WithLabelValues(deviceID, from, to).Inc()
}

// -------------------------------------------------------------------------
// Packets
// -------------------------------------------------------------------------

// IncPacketsSent increments the sent-packets counter for deviceID/packetType.
func (c *Collector) IncPacketsSent(deviceID, packetType string) {
	c.PacketsSent.WithLabelValues(deviceID, packetType).Inc()
}

// IncPacketsReceived increments the received-packets counter for
// deviceID/packetType.
func (c *Collector) IncPacketsReceived(deviceID, packetType string) {
	c.PacketsReceived.WithLabelValues(deviceID, packetType).Inc()
}

// IncPluginDispatchErrors increments the isolated plugin-error counter.
func (c *Collector) IncPluginDispatchErrors(deviceID, plugin string) {
	c.PluginDispatchErrors.WithLabelValues(deviceID, plugin).Inc()
}

// -------------------------------------------------------------------------
// Pairing and Recovery
// -------------------------------------------------------------------------

// IncPairingEvent increments the pairing-event counter for deviceID/kind.
func (c *Collector) IncPairingEvent(deviceID, kind string) {
	c.PairingEvents.WithLabelValues(deviceID, kind).Inc()
}

// IncReconnectAttempt increments the reconnect-attempt counter for deviceID.
func (c *Collector) IncReconnectAttempt(deviceID string) {
	c.ReconnectAttempts.WithLabelValues(deviceID).Inc()
}

// IncReconnectsQuiesced increments the quiescent-devices counter.
func (c *Collector) IncReconnectsQuiesced() { c.ReconnectsQuiesced.Inc() }

// SetRetryQueueDepth sets the current aggregate retry-queue depth.
func (c *Collector) SetRetryQueueDepth(n int) { c.RetryQueueDepth.Set(float64(n)) }

// IncRetryQueueDropped increments the dropped-retry-entry counter.
func (c *Collector) IncRetryQueueDropped() { c.RetryQueueDropped.Inc() }
