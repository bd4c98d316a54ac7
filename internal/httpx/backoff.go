package httpx

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes exponential delays with optional jitter. The zero value
// yields no delay.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func (p RetryPolicy) backoff() Backoff {
	return Backoff{Base: p.BaseDelay, Max: p.MaxDelay, Jitter: p.Jitter}
}

// Delay returns the wait before retry number attempt (0-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := b.Base
	if attempt > 0 {
		delay = time.Duration(float64(b.Base) * math.Pow(2, float64(attempt)))
	}
	if b.Max > 0 && (delay <= 0 || delay > b.Max) {
		delay = b.Max
	}
	return b.jitter(delay)
}

func (b Backoff) jitter(delay time.Duration) time.Duration {
	if b.Jitter <= 0 {
		return delay
	}
	factor := 1 + (rand.Float64()*2-1)*math.Min(b.Jitter, 1)
	return time.Duration(float64(delay) * factor)
}
