package actorcore

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// envelope wraps a message with its associated promise and caller context.
// A nil promise signifies a "tell" (fire-and-forget) operation.
type envelope[M Message, R any] struct {
	message   M
	promise   Promise[R]
	callerCtx context.Context
}

// Mailbox is an actor's inbound message queue. Implementations may add
// priority scheduling or backpressure without changing actor code.
//
// Thread safety matches ChannelMailbox's documented contract: Send/TrySend
// may be called concurrently; Receive/Drain are single-consumer.
type Mailbox[M Message, R any] interface {
	Send(ctx context.Context, env envelope[M, R]) bool
	TrySend(env envelope[M, R]) bool
	Receive(ctx context.Context) iter.Seq[envelope[M, R]]
	Close()
	IsClosed() bool
	Drain() iter.Seq[envelope[M, R]]
}

// BackpressurePolicy governs what a bounded mailbox does when a send
// arrives and the sub-queue for the message's own priority is full.
type BackpressurePolicy int

const (
	// PolicyBlock blocks the sender until space is available or a
	// context is cancelled. This is ChannelMailbox's original behavior.
	PolicyBlock BackpressurePolicy = iota

	// PolicyDropOldest evicts the oldest queued message at the same
	// priority to make room for the new one.
	PolicyDropOldest

	// PolicyDropNew discards the incoming message and reports failure to
	// the sender without blocking.
	PolicyDropNew

	// PolicyReject is identical to PolicyDropNew from the sender's
	// perspective (Send/TrySend return false immediately) but is
	// reported under a distinct metric (rejected rather than dropped).
	// Like the other policies it acts only when the sub-queue is full.
	PolicyReject
)

// MessageReceptionMetrics tracks mailbox-level counters for observability.
// All fields are updated with atomic operations so they can be read
// concurrently with delivery.
type MessageReceptionMetrics struct {
	enqueued  atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	rejected  atomic.Int64
}

// Enqueued returns the number of envelopes successfully queued.
func (m *MessageReceptionMetrics) Enqueued() int64 { return m.enqueued.Load() }

// Delivered returns the number of envelopes handed to the actor's receive
// loop.
func (m *MessageReceptionMetrics) Delivered() int64 { return m.delivered.Load() }

// Dropped returns the number of envelopes discarded by a drop policy.
func (m *MessageReceptionMetrics) Dropped() int64 { return m.dropped.Load() }

// Rejected returns the number of envelopes rejected outright.
func (m *MessageReceptionMetrics) Rejected() int64 { return m.rejected.Load() }

// PriorityMailbox is a bounded, priority-aware Mailbox. It maintains one
// buffered channel per MessagePriority level; Receive always drains the
// highest non-empty level before considering a lower one, giving
// PriorityCritical messages strict precedence over PriorityLow traffic.
//
// The close-safety discipline mirrors ChannelMailbox: a read lock is held
// for the duration of a send so Close (which takes the write lock) cannot
// race a send into a closed channel.
type PriorityMailbox[M Message, R any] struct {
	queues     [4]chan envelope[M, R]
	perQueueCap int

	closed    atomic.Bool
	mu        sync.RWMutex
	closeOnce sync.Once

	actorCtx context.Context
	policy   BackpressurePolicy

	Metrics MessageReceptionMetrics
}

// NewPriorityMailbox creates a bounded priority mailbox. perPriorityCap is
// the buffer capacity of each of the four priority sub-queues (not a
// combined total); it defaults to 1 if non-positive.
func NewPriorityMailbox[M Message, R any](
	actorCtx context.Context, perPriorityCap int, policy BackpressurePolicy,
) *PriorityMailbox[M, R] {

	if perPriorityCap <= 0 {
		perPriorityCap = 1
	}

	mb := &PriorityMailbox[M, R]{
		perQueueCap: perPriorityCap,
		actorCtx:    actorCtx,
		policy:      policy,
	}
	for i := range mb.queues {
		mb.queues[i] = make(chan envelope[M, R], perPriorityCap)
	}

	return mb
}

func (m *PriorityMailbox[M, R]) queueFor(msg M) chan envelope[M, R] {
	return m.queues[priorityOf(msg)]
}

// Send attempts to enqueue env, honoring the mailbox's BackpressurePolicy
// when the target priority sub-queue is full.
func (m *PriorityMailbox[M, R]) Send(ctx context.Context, env envelope[M, R]) bool {
	if ctx.Err() != nil || m.actorCtx.Err() != nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return false
	}

	q := m.queueFor(env.message)

	switch m.policy {
	case PolicyBlock:
		select {
		case q <- env:
			m.Metrics.enqueued.Add(1)
			return true
		case <-ctx.Done():
			return false
		case <-m.actorCtx.Done():
			return false
		}

	case PolicyDropOldest:
		select {
		case q <- env:
			m.Metrics.enqueued.Add(1)
			return true
		default:
			select {
			case <-q:
				m.Metrics.dropped.Add(1)
			default:
			}
			select {
			case q <- env:
				m.Metrics.enqueued.Add(1)
				return true
			default:
				m.Metrics.dropped.Add(1)
				return false
			}
		}

	case PolicyDropNew:
		select {
		case q <- env:
			m.Metrics.enqueued.Add(1)
			return true
		default:
			m.Metrics.dropped.Add(1)
			return false
		}

	case PolicyReject:
		select {
		case q <- env:
			m.Metrics.enqueued.Add(1)
			return true
		default:
			m.Metrics.rejected.Add(1)
			return false
		}

	default:
		panic(fmt.Sprintf("actorcore: unknown backpressure policy %d", m.policy))
	}
}

// TrySend is the non-blocking form of Send; under PolicyBlock it behaves
// like PolicyDropNew since there is no caller context to wait on.
func (m *PriorityMailbox[M, R]) TrySend(env envelope[M, R]) bool {
	if m.policy != PolicyBlock {
		return m.Send(context.Background(), env)
	}

	if m.actorCtx.Err() != nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return false
	}

	q := m.queueFor(env.message)

	select {
	case q <- env:
		m.Metrics.enqueued.Add(1)
		return true
	default:
		m.Metrics.dropped.Add(1)
		return false
	}
}

// Receive returns an iterator that yields envelopes in strict priority
// order: PriorityCritical first, then High, Normal, Low. Within a priority
// level, FIFO order is preserved.
func (m *PriorityMailbox[M, R]) Receive(ctx context.Context) iter.Seq[envelope[M, R]] {
	return func(yield func(envelope[M, R]) bool) {
		for {
			if ctx.Err() != nil {
				return
			}

			env, ok := m.receiveOne(ctx)
			if !ok {
				return
			}

			m.Metrics.delivered.Add(1)
			if !yield(env) {
				return
			}
		}
	}
}

// receiveOne blocks until a message is available at some priority level or
// the context is done, then returns the highest-priority one ready.
func (m *PriorityMailbox[M, R]) receiveOne(
	ctx context.Context,
) (envelope[M, R], bool) {

	for {
		// Non-blocking sweep from highest to lowest priority first, so
		// a burst of low-priority traffic never starves a
		// newly-arrived high-priority message behind a blocking
		// select's random case selection.
		for p := len(m.queues) - 1; p >= 0; p-- {
			select {
			case env, ok := <-m.queues[p]:
				if !ok {
					continue
				}
				return env, true
			default:
			}
		}

		select {
		case env, ok := <-m.queues[PriorityCritical]:
			if ok {
				return env, true
			}
		case env, ok := <-m.queues[PriorityHigh]:
			if ok {
				return env, true
			}
		case env, ok := <-m.queues[PriorityNormal]:
			if ok {
				return env, true
			}
		case env, ok := <-m.queues[PriorityLow]:
			if ok {
				return env, true
			}
		case <-ctx.Done():
			return envelope[M, R]{}, false
		}

		if m.IsClosed() && m.allEmpty() {
			return envelope[M, R]{}, false
		}
	}
}

func (m *PriorityMailbox[M, R]) allEmpty() bool {
	for _, q := range m.queues {
		if len(q) > 0 {
			return false
		}
	}

	return true
}

// Close closes every priority sub-queue. Safe to call multiple times.
func (m *PriorityMailbox[M, R]) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.closed.Store(true)
		for _, q := range m.queues {
			close(q)
		}

		log.DebugS(m.actorCtx, "Priority mailbox closing")
	})
}

// IsClosed reports whether Close has been called.
func (m *PriorityMailbox[M, R]) IsClosed() bool {
	return m.closed.Load()
}

// Drain yields remaining envelopes across all priority levels, highest
// first, after Close. It is a no-op if the mailbox was never closed.
func (m *PriorityMailbox[M, R]) Drain() iter.Seq[envelope[M, R]] {
	return func(yield func(envelope[M, R]) bool) {
		if !m.IsClosed() {
			return
		}

		for p := len(m.queues) - 1; p >= 0; p-- {
			for env := range m.queues[p] {
				if !yield(env) {
					return
				}
			}
		}
	}
}

// completeDrainedAskWithTermination fails any still-pending Ask promise
// found while draining a terminated actor's mailbox.
func completeDrainedAskWithTermination[M Message, R any](env envelope[M, R]) {
	if env.promise != nil {
		env.promise.Complete(fn.Err[R](ErrActorTerminated))
	}
}
