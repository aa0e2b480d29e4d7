package mutation

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	MaxAttempts = 5
	BaseBackoff = 2 * time.Second
	MaxBackoff  = 60 * time.Second
)

// RetryDelay returns the wait before the given attempt number (1-based):
// 2s, 4s, 8s, ... capped at one minute.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     BaseBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         MaxBackoff,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
