package supervisor

import (
	"math"
	"math/rand/v2"
	"time"
)

// ExponentialBackoff computes the delay before a child's next restart
// attempt, doubling on each consecutive failure up to a configured
// ceiling, with randomized jitter to avoid synchronized restart storms
// across sibling children.
type ExponentialBackoff struct {
	// BaseDelay is the delay before the first restart attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay regardless of attempt count.
	MaxDelay time.Duration

	// Multiplier scales the delay on each successive attempt (2.0 for
	// classic doubling).
	Multiplier float64

	// JitterFraction randomizes the computed delay by up to this
	// fraction in either direction (0.2 = ±20%), so that two children
	// failing at the same instant don't retry in lockstep forever.
	JitterFraction float64
}

// DefaultExponentialBackoff returns 100ms base, 2x multiplier, 30s cap,
// and 20% jitter — the shape used throughout lnd-style reconnect loops.
func DefaultExponentialBackoff() ExponentialBackoff {
	return ExponentialBackoff{
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// Delay returns the backoff duration for the attempt'th restart (attempt
// is 1-indexed: the first restart after the initial crash is attempt 1).
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := float64(b.BaseDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	if cap := float64(b.MaxDelay); b.MaxDelay > 0 && base > cap {
		base = cap
	}

	if b.JitterFraction <= 0 {
		return time.Duration(base)
	}

	// Uniform jitter in [base*(1-f), base*(1+f)].
	jitter := base * b.JitterFraction * (2*rand.Float64() - 1)
	result := base + jitter
	if result < 0 {
		result = 0
	}

	return time.Duration(result)
}
