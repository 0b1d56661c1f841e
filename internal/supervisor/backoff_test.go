package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExponentialBackoffMonotonicWithoutJitter(t *testing.T) {
	t.Parallel()

	b := ExponentialBackoff{
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 8; attempt++ {
		d := b.Delay(attempt)
		require.GreaterOrEqual(t, d, prev)
		prev = d
	}
	require.LessOrEqual(t, prev, b.MaxDelay)
}

func TestExponentialBackoffRespectsMaxDelay(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b := ExponentialBackoff{
			BaseDelay:      time.Duration(rapid.IntRange(1, 1000).Draw(rt, "base")) * time.Millisecond,
			MaxDelay:       time.Duration(rapid.IntRange(1000, 5000).Draw(rt, "max")) * time.Millisecond,
			Multiplier:     2.0,
			JitterFraction: rapid.Float64Range(0, 0.5).Draw(rt, "jitter"),
		}
		attempt := rapid.IntRange(1, 50).Draw(rt, "attempt")

		d := b.Delay(attempt)
		if d < 0 {
			rt.Fatalf("delay must never be negative, got %v", d)
		}

		// Jitter can push the result above MaxDelay by at most
		// MaxDelay*JitterFraction; verify it never runs away further.
		ceiling := time.Duration(float64(b.MaxDelay) * (1 + b.JitterFraction))
		if d > ceiling {
			rt.Fatalf("delay %v exceeded jittered ceiling %v", d, ceiling)
		}
	})
}

func TestSlidingWindowLimiter(t *testing.T) {
	t.Parallel()

	l := NewSlidingWindowLimiter(3, time.Minute)
	now := time.Now()

	require.True(t, l.RecordAndCheck(now))
	require.True(t, l.RecordAndCheck(now.Add(time.Second)))
	require.True(t, l.RecordAndCheck(now.Add(2*time.Second)))
	require.False(t, l.RecordAndCheck(now.Add(3*time.Second)))

	// Events outside the window are pruned, freeing budget again.
	require.True(t, l.RecordAndCheck(now.Add(2*time.Minute)))
}

func TestSlidingWindowLimiterRestartCountInWindow(t *testing.T) {
	t.Parallel()

	l := NewSlidingWindowLimiter(10, time.Minute)
	now := time.Now()

	require.True(t, l.RecordAndCheck(now))
	require.True(t, l.RecordAndCheck(now.Add(time.Second)))
	require.Equal(t, 2, l.RestartCountInWindow(now.Add(2*time.Second)))

	// Inspecting well past the window prunes stale entries.
	require.Equal(t, 0, l.RestartCountInWindow(now.Add(2*time.Minute)))
}

func TestSlidingWindowLimiterPermanentlyFailsAfterFiveSuccessiveHits(t *testing.T) {
	t.Parallel()

	l := NewSlidingWindowLimiter(0, time.Minute)
	now := time.Now()

	for i := 0; i < maxConsecutiveLimitHits-1; i++ {
		require.False(t, l.RecordAndCheck(now.Add(time.Duration(i)*time.Second)))
		require.False(t, l.IsPermanentlyFailed())
	}

	require.False(t, l.RecordAndCheck(now.Add(10*time.Second)))
	require.True(t, l.IsPermanentlyFailed())

	// A permanently failed limiter denies even once the window would
	// otherwise have cleared.
	require.False(t, l.RecordAndCheck(now.Add(time.Hour)))
}

func TestSlidingWindowLimiterSuccessResetsConsecutiveHits(t *testing.T) {
	t.Parallel()

	l := NewSlidingWindowLimiter(1, time.Minute)
	now := time.Now()

	require.True(t, l.RecordAndCheck(now))
	require.False(t, l.RecordAndCheck(now.Add(time.Second)))

	// The window clears, giving a success that should zero the
	// consecutive-hit counter rather than carry it forward.
	require.True(t, l.RecordAndCheck(now.Add(2*time.Minute)))
	require.False(t, l.RecordAndCheck(now.Add(2*time.Minute+time.Second)))
	require.False(t, l.IsPermanentlyFailed())
}

func TestRestartTrackerResetsOnRecovery(t *testing.T) {
	t.Parallel()

	tracker := NewRestartTracker(
		ExponentialBackoff{BaseDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2},
		NewSlidingWindowLimiter(1, time.Hour),
		10*time.Second,
	)

	now := time.Now()
	_, ok := tracker.NextAttempt(now)
	require.True(t, ok)
	require.Equal(t, 1, tracker.Attempt())

	// Second failure immediately after exhausts the 1-per-hour budget.
	_, ok = tracker.NextAttempt(now.Add(time.Second))
	require.False(t, ok)

	// Child then runs cleanly past the recovery threshold before
	// failing again: accounting should have reset.
	tracker.MarkStarted(now.Add(time.Second))
	recovered := now.Add(time.Second + 11*time.Second)
	_, ok = tracker.NextAttempt(recovered)
	require.True(t, ok, "restart budget should reset after recovery threshold")
	require.Equal(t, 1, tracker.Attempt())
}

func TestRestartTrackerRetainsOnlyMostRecent100(t *testing.T) {
	t.Parallel()

	tracker := NewRestartTracker(
		ExponentialBackoff{BaseDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 1},
		NewSlidingWindowLimiter(1000, time.Hour),
		0,
	)

	now := time.Now()
	for i := 0; i < 150; i++ {
		_, ok := tracker.NextAttempt(now.Add(time.Duration(i) * time.Millisecond))
		require.True(t, ok)
	}

	history := tracker.History()
	require.Len(t, history, 100)
	require.Equal(t, uint64(150), tracker.TotalRestarts())

	// The retained window is exactly the most recent 100: attempts run
	// 1..150, so the oldest retained attempt is 51.
	require.Equal(t, 51, history[0].Attempt)
	require.Equal(t, 150, history[len(history)-1].Attempt)
}
