package supervisor

import (
	"sync"
	"time"
)

// maxRestartHistory is the number of most-recent restart records
// RestartTracker retains; older entries are evicted on overflow, but
// TotalRestarts keeps counting regardless.
const maxRestartHistory = 100

// RestartRecord is one retained entry in a RestartTracker's circular
// history buffer.
type RestartRecord struct {
	Attempt int
	At      time.Time
}

// RestartTracker combines ExponentialBackoff delay computation with a
// SlidingWindowLimiter's rate cap, and tracks how long a child has been
// continuously running so it knows when to consider the child "recovered"
// and reset both the attempt counter and the limiter's history.
//
// Convention (see DESIGN.md open-question resolution): recovery resets
// BOTH the attempt count and the sliding-window history. A child that ran
// cleanly for RecoveryThreshold is treated as a fresh start for restart
// accounting purposes. The retained history buffer and total-restart
// counter are audit trails, not gating state, so recovery does not touch
// them.
type RestartTracker struct {
	mu sync.Mutex

	backoff ExponentialBackoff
	limiter *SlidingWindowLimiter

	// RecoveryThreshold is how long a child must run without exiting
	// before its next failure is treated as attempt 1 again.
	RecoveryThreshold time.Duration

	attempt      int
	lastRestart  time.Time
	runningSince time.Time

	// history retains at most the most recent maxRestartHistory restart
	// records; totalRestarts counts every restart ever recorded and is
	// never truncated or reset.
	history       []RestartRecord
	totalRestarts uint64
}

// NewRestartTracker creates a tracker with the given backoff/limiter
// configuration and recovery threshold.
func NewRestartTracker(
	backoff ExponentialBackoff, limiter *SlidingWindowLimiter,
	recoveryThreshold time.Duration,
) *RestartTracker {
	return &RestartTracker{
		backoff:           backoff,
		limiter:           limiter,
		RecoveryThreshold: recoveryThreshold,
	}
}

// MarkStarted records that the child is now running as of now. Call this
// immediately after a (re)start succeeds.
func (t *RestartTracker) MarkStarted(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runningSince = now
}

// NextAttempt evaluates whether the child may restart at all (the sliding
// window has room) and, if so, returns the backoff delay to wait before
// doing so. ok is false when the window is exhausted and the supervisor
// should escalate instead of restarting.
func (t *RestartTracker) NextAttempt(now time.Time) (delay time.Duration, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A child that's been running continuously since before
	// runningSince+RecoveryThreshold has recovered: reset accounting
	// before counting this new failure.
	if !t.runningSince.IsZero() && t.RecoveryThreshold > 0 &&
		now.Sub(t.runningSince) >= t.RecoveryThreshold {

		t.attempt = 0
		t.limiter.Reset()
	}

	if !t.limiter.RecordAndCheck(now) {
		return 0, false
	}

	t.attempt++
	t.lastRestart = now
	t.recordRestart(now)

	return t.backoff.Delay(t.attempt), true
}

// recordRestart appends a record to the retained history, evicting the
// oldest entry once maxRestartHistory is exceeded, and increments the
// strictly-monotonic total-restart counter.
func (t *RestartTracker) recordRestart(now time.Time) {
	t.totalRestarts++

	t.history = append(t.history, RestartRecord{Attempt: t.attempt, At: now})
	if len(t.history) > maxRestartHistory {
		t.history = t.history[len(t.history)-maxRestartHistory:]
	}
}

// Attempt returns the current (1-indexed) restart attempt count, 0 if no
// restart has happened yet.
func (t *RestartTracker) Attempt() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.attempt
}

// TotalRestarts returns the strictly-monotonic count of every restart
// ever recorded, unaffected by history eviction or recovery resets.
func (t *RestartTracker) TotalRestarts() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.totalRestarts
}

// History returns a copy of the retained restart records, oldest first,
// capped at the most recent maxRestartHistory entries.
func (t *RestartTracker) History() []RestartRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]RestartRecord, len(t.history))
	copy(out, t.history)

	return out
}
