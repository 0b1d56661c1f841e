package supervisor

import (
	"sync"
	"time"
)

// HealthStatus summarizes a monitored child's liveness.
type HealthStatus int

const (
	// HealthUnknown means no heartbeat has been observed yet.
	HealthUnknown HealthStatus = iota

	// HealthHealthy means a heartbeat arrived within Interval.
	HealthHealthy

	// HealthUnresponsive means the last heartbeat is older than
	// Interval, so the supervisor should consider the child stuck even
	// though its goroutine hasn't exited.
	HealthUnresponsive
)

// HealthMonitor tracks liveness heartbeats for supervised children that
// opt into health checking (spec C14's ComponentMessage.HealthCheck is
// the typical heartbeat source). It does not itself restart anything, and
// Supervisor does not consult it: an unresponsive Status does not trigger
// a restart.
type HealthMonitor struct {
	mu sync.RWMutex

	// Interval is the maximum gap tolerated between heartbeats before a
	// child is considered unresponsive.
	Interval time.Duration

	lastSeen map[string]time.Time
}

// NewHealthMonitor creates a monitor with the given heartbeat interval.
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	return &HealthMonitor{
		Interval: interval,
		lastSeen: make(map[string]time.Time),
	}
}

// Heartbeat records that childID reported liveness at now.
func (h *HealthMonitor) Heartbeat(childID string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastSeen[childID] = now
}

// Status reports childID's health as of now.
func (h *HealthMonitor) Status(childID string, now time.Time) HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	last, ok := h.lastSeen[childID]
	if !ok {
		return HealthUnknown
	}

	if now.Sub(last) > h.Interval {
		return HealthUnresponsive
	}

	return HealthHealthy
}

// Forget removes childID's tracked heartbeat, called when a child is
// permanently removed from its supervisor.
func (h *HealthMonitor) Forget(childID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.lastSeen, childID)
}
