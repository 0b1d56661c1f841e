package supervisor

import (
	"context"
	"sync"
	"time"
)

// Supervisor manages a fixed set of children under a single restart
// Strategy. It is the runtime counterpart to ChildHandle's state machine:
// where ChildHandle validates transitions, Supervisor decides which
// children an exit affects and drives the actual stop/restart calls.
type Supervisor struct {
	mu       sync.Mutex
	strategy Strategy
	shutdown ShutdownPolicy

	children []*ChildHandle
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a Supervisor with the given strategy. ctx bounds the
// lifetime of every child the supervisor starts; cancelling it (via Stop)
// tears the whole subtree down.
func New(parentCtx context.Context, strategy Strategy, shutdown ShutdownPolicy) *Supervisor {
	ctx, cancel := context.WithCancel(parentCtx)

	return &Supervisor{
		strategy: strategy,
		shutdown: shutdown,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddChild registers spec, immediately starting it. backoff/limiter/
// recoveryThreshold configure the restart governance applied on exit.
func (s *Supervisor) AddChild(
	spec ChildSpec, backoff ExponentialBackoff, limiter *SlidingWindowLimiter,
	recoveryThreshold time.Duration,
) *ChildHandle {

	h := &ChildHandle{
		spec:    spec,
		state:   ChildPending,
		tracker: NewRestartTracker(backoff, limiter, recoveryThreshold),
	}

	s.mu.Lock()
	s.children = append(s.children, h)
	s.mu.Unlock()

	s.startChild(h)

	return h
}

func (s *Supervisor) startChild(h *ChildHandle) {
	stop, done := h.spec.Start(s.ctx)

	h.mu.Lock()
	h.stop = stop
	h.mu.Unlock()

	_ = h.ProcessEvent(StartedEvent{}, time.Now())
	h.tracker.MarkStarted(time.Now())

	go s.watch(h, done)
}

func (s *Supervisor) watch(h *ChildHandle, done <-chan struct{}) {
	select {
	case <-done:
		s.handleExit(h, ExitError)
	case <-s.ctx.Done():
		return
	}
}

// handleExit applies the supervisor's Strategy: OneForOne restarts only
// h; OneForAll restarts every sibling; RestForOne restarts h and every
// child added after it.
func (s *Supervisor) handleExit(h *ChildHandle, reason ExitReason) {
	_ = h.ProcessEvent(ExitedEvent{Reason: reason}, time.Now())

	if h.State() == ChildStopped {
		return
	}

	var toRestart []*ChildHandle

	s.mu.Lock()
	switch s.strategy {
	case OneForOne:
		toRestart = []*ChildHandle{h}

	case OneForAll:
		toRestart = append(toRestart, s.children...)

	case RestForOne:
		started := false
		for _, c := range s.children {
			if c == h {
				started = true
			}
			if started {
				toRestart = append(toRestart, c)
			}
		}
	}
	s.mu.Unlock()

	for _, c := range toRestart {
		s.restart(c)
	}
}

func (s *Supervisor) restart(h *ChildHandle) {
	if h != nil && h.stop != nil {
		h.stop()
	}

	delay, ok := h.tracker.NextAttempt(time.Now())
	if !ok {
		_ = h.ProcessEvent(RestartsExhaustedEvent{}, time.Now())
		return
	}

	_ = h.ProcessEvent(RestartScheduledEvent{Delay: delay}, time.Now())

	go func() {
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}

		s.startChild(h)
	}()
}

// Stop cancels the supervisor's context, then calls each child's stop
// function in reverse start order and records a StopRequestedEvent for
// it. It does not wait for children to exit; ShutdownPolicy.Timeout is
// not applied.
func (s *Supervisor) Stop() {
	s.cancel()

	s.mu.Lock()
	children := append([]*ChildHandle(nil), s.children...)
	s.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		h := children[i]
		h.mu.Lock()
		stop := h.stop
		h.mu.Unlock()

		if stop != nil {
			stop()
		}
		_ = h.ProcessEvent(StopRequestedEvent{}, time.Now())
	}
}

// Children returns every managed ChildHandle.
func (s *Supervisor) Children() []*ChildHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*ChildHandle(nil), s.children...)
}
