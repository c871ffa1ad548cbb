// Package recovery implements the automatic-reconnection and packet-retry
// policies that sit behind the session manager: it watches connection
// events for paired, trusted devices and re-drives dialing with exponential
// backoff, and it redrives packets that failed a retryable send until they
// land or exhaust their attempts.
package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/olafkfreund/cosmic-connectd/pkg/packet"
	"github.com/pion/logging"
)

// ConnectFunc dials and establishes a session for deviceID, using whatever
// address the caller's discovery cache currently holds for it.
type ConnectFunc func(ctx context.Context, deviceID string) error

// PairedFunc reports whether deviceID is Paired and trusted, the
// precondition for automatic reconnection.
type PairedFunc func(deviceID string) bool

// Config configures a Coordinator.
type Config struct {
	Connect       ConnectFunc
	IsPaired      PairedFunc
	MaxAttempts   int // retry-queue attempt cap; default DefaultMaxAttempts

	// InitialDelay and MaxDelay override the reconnection backoff
	// schedule. Zero values use InitialReconnectDelay and
	// MaxReconnectDelay; tests shrink these to avoid real-time sleeps.
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	LoggerFactory logging.LoggerFactory
}

type deviceStrategy struct {
	backoff   *backoff.ExponentialBackOff
	attempts  int
	quiescent bool
	timer     *time.Timer
}

// Coordinator holds per-device reconnection strategies and a packet retry
// queue, and reacts to connection events reported by its caller (the
// session manager's disconnect hook and the discovery cache).
type Coordinator struct {
	mu         sync.Mutex
	strategies map[string]*deviceStrategy

	queue  *RetryQueue
	config Config
	log    logging.LeveledLogger

	closed bool
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(config Config) *Coordinator {
	if config.InitialDelay <= 0 {
		config.InitialDelay = InitialReconnectDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = MaxReconnectDelay
	}
	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("recovery")
	}
	return &Coordinator{
		strategies: make(map[string]*deviceStrategy),
		queue:      NewRetryQueue(config.MaxAttempts),
		config:     config,
		log:        log,
	}
}

// Close cancels every pending reconnect timer. The Coordinator must not be
// used afterward.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, s := range c.strategies {
		if s.timer != nil {
			s.timer.Stop()
		}
	}
}

// NotifyConnected resets deviceID's reconnection strategy and clears its
// packet retry queue, per the "reset to initial on any successful
// Connected" rule.
func (c *Coordinator) NotifyConnected(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(deviceID)
	c.queue.Clear(deviceID)
}

// NotifyDiscovered clears a quiescent device's strategy, allowing future
// disconnects to resume scheduling reconnects.
func (c *Coordinator) NotifyDiscovered(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.strategies[deviceID]
	if !ok || !s.quiescent {
		return
	}
	c.resetLocked(deviceID)
}

// NotifyDisconnected schedules a reconnection attempt for deviceID if it is
// paired and trusted and has not exhausted MaxConsecutiveFailures.
func (c *Coordinator) NotifyDisconnected(deviceID string, reason error) {
	if c.config.IsPaired != nil && !c.config.IsPaired(deviceID) {
		if c.log != nil {
			c.log.Debugf("skipping auto-reconnect for %s (not paired): %v", deviceID, reason)
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.scheduleLocked(deviceID)
}

// EnqueueRetry adds p to deviceID's packet retry queue.
func (c *Coordinator) EnqueueRetry(deviceID string, p *packet.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.Enqueue(deviceID, p)
}

// ProcessRetryQueue drains every due entry in the retry queue via send,
// logging (but not propagating) entries dropped after exhausting their
// attempts. Intended to be called periodically, e.g. every 5s.
func (c *Coordinator) ProcessRetryQueue(send SendFunc) {
	c.mu.Lock()
	dropped := c.queue.Process(send)
	c.mu.Unlock()

	if c.log == nil {
		return
	}
	for _, d := range dropped {
		c.log.Warnf("dropping packet %q for %s after %d attempts", d.Packet.Type, d.DeviceID, d.Attempts)
	}
}

// Run periodically calls ProcessRetryQueue until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration, send SendFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ProcessRetryQueue(send)
		}
	}
}

// RetryQueueDepth returns the total number of packets currently queued for
// retry, across every device.
func (c *Coordinator) RetryQueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.TotalLen()
}

// ReconnectsInFlight returns the number of devices with an active,
// non-quiescent reconnection timer pending.
func (c *Coordinator) ReconnectsInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.strategies {
		if !s.quiescent && s.timer != nil {
			n++
		}
	}
	return n
}

func (c *Coordinator) resetLocked(deviceID string) {
	s, ok := c.strategies[deviceID]
	if !ok {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	delete(c.strategies, deviceID)
}

func (c *Coordinator) scheduleLocked(deviceID string) {
	s, ok := c.strategies[deviceID]
	if !ok {
		s = &deviceStrategy{backoff: newExponentialBackOffWith(c.config.InitialDelay, c.config.MaxDelay)}
		c.strategies[deviceID] = s
	}
	if s.quiescent {
		return
	}

	s.attempts++
	if s.attempts > MaxConsecutiveFailures {
		s.quiescent = true
		if s.timer != nil {
			s.timer.Stop()
		}
		if c.log != nil {
			c.log.Warnf("max reconnection attempts reached for %s, giving up until rediscovered", deviceID)
		}
		return
	}

	delay := s.backoff.NextBackOff()
	if c.log != nil {
		c.log.Infof("scheduling reconnect for %s in %s (attempt %d)", deviceID, delay, s.attempts)
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() { c.attempt(deviceID) })
}

func (c *Coordinator) attempt(deviceID string) {
	if c.config.Connect == nil {
		return
	}
	err := c.config.Connect(context.Background(), deviceID)
	if err == nil {
		// NotifyConnected is expected to follow from the session manager's
		// own connected callback; nothing further to do here.
		return
	}

	if c.log != nil {
		c.log.Warnf("reconnect attempt for %s failed: %v", deviceID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.scheduleLocked(deviceID)
}
