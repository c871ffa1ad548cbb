package recovery

import (
	"time"

	"github.com/cenkalti/backoff"
)

// InitialReconnectDelay, MaxReconnectDelay and ReconnectJitter parameterize
// the exponential-backoff reconnection schedule: 1s, 2s, 4s, ..., capped at
// 60s, each jittered by up to ±20%.
const (
	InitialReconnectDelay = 1 * time.Second
	MaxReconnectDelay     = 60 * time.Second
	ReconnectJitter       = 0.2
	ReconnectMultiplier   = 2.0
)

// MaxConsecutiveFailures is the number of failed reconnect attempts after
// which a device's strategy goes quiescent.
const MaxConsecutiveFailures = 20

// newExponentialBackOff builds the shared exponential-backoff schedule used
// both by per-device reconnection strategies and by retry-queue spacing.
// MaxElapsedTime is disabled (zero): callers enforce their own attempt caps.
func newExponentialBackOff() *backoff.ExponentialBackOff {
	return newExponentialBackOffWith(InitialReconnectDelay, MaxReconnectDelay)
}

func newExponentialBackOffWith(initial, maxDelay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxDelay
	b.Multiplier = ReconnectMultiplier
	b.RandomizationFactor = ReconnectJitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// backoffForAttempt returns the delay before the (attempt+1)th try, for
// contexts (the retry queue) that only have the attempt count and not a
// live, running strategy to advance.
func backoffForAttempt(attempt int) time.Duration {
	b := newExponentialBackOff()
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
