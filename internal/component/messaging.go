package component

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
	"github.com/roasbeef/substrate-rt/internal/broker"
)

// CorrelationID identifies one in-flight request-response exchange.
type CorrelationID string

// NewCorrelationID generates a fresh, opaque correlation id.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// ErrCorrelationTimeout is returned when a request's reply does not
// arrive within its timeout.
var ErrCorrelationTimeout = fmt.Errorf("component: correlation timed out")

// ErrAlreadyRegistered is returned by registerCorrelation when a
// correlation id is reused while still in flight.
var ErrAlreadyRegistered = fmt.Errorf("component: correlation id already registered")

// ErrDeliveryFailed wraps a failure to deliver a request, tagged with a
// short reason (e.g. "already-registered") the way the spec's
// DeliveryFailed variant does.
var ErrDeliveryFailed = fmt.Errorf("component: delivery failed")

// Messenger implements the three inter-component messaging patterns that
// sit atop the broker (spec §4.7): fire-and-forget, request-response with
// correlation tracking, and pub/sub.
type Messenger struct {
	registry lookupByRoutingKey
	br       *broker.Broker

	mu      sync.Mutex
	pending map[CorrelationID]chan Reply
}

// lookupByRoutingKey is the slice of *registry.Registry that Messenger
// needs, kept as an interface so tests can substitute a fake without
// constructing a full registry.
type lookupByRoutingKey interface {
	ResolveByRoutingKey(routingKey string) (actorcore.BaseActorRef, error)
}

// NewMessenger creates a Messenger over reg (component address lookup)
// and br (the pub/sub broker).
func NewMessenger(reg lookupByRoutingKey, br *broker.Broker) *Messenger {
	return &Messenger{
		registry: reg,
		br:       br,
		pending:  make(map[CorrelationID]chan Reply),
	}
}

// Send is fire-and-forget: tells payload to target's actor without waiting
// for acknowledgement. Returns an error only if target isn't registered;
// delivery past that point is not guaranteed (spec: does not wait).
func (m *Messenger) Send(ctx context.Context, sender, target actorcore.ComponentID, payload []byte) error {
	ref, err := m.resolve(target)
	if err != nil {
		return err
	}

	ref.Tell(ctx, InterComponentMsg(sender, payload))
	return nil
}

// Request implements request-response: it assigns a CorrelationID,
// registers it with the pending-correlation tracker, dispatches the call,
// and once the reply arrives delivers it to sender's handle-callback
// export via a Callback message, in addition to returning it directly
// to this call's caller. Timeouts send no callback; they drop the
// correlation and surface ErrCorrelationTimeout; reusing an in-flight
// CorrelationID surfaces ErrDeliveryFailed ("already-registered").
func (m *Messenger) Request(
	ctx context.Context, sender, target actorcore.ComponentID,
	function string, args []byte, timeout time.Duration,
) (Reply, error) {

	return m.requestWithID(ctx, NewCorrelationID(), sender, target, function, args, timeout)
}

// requestWithID is Request's implementation, parameterized on the
// CorrelationID so tests can drive the duplicate-registration invariant
// deterministically.
func (m *Messenger) requestWithID(
	ctx context.Context, id CorrelationID, sender, target actorcore.ComponentID,
	function string, args []byte, timeout time.Duration,
) (Reply, error) {

	ch, err := m.registerCorrelation(id)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: already-registered", ErrDeliveryFailed)
	}

	ref, err := m.resolveTyped(target)
	if err != nil {
		m.dropCorrelation(id)
		return Reply{}, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	go func() {
		future := ref.Ask(reqCtx, Invoke(function, args))
		result := future.Await(reqCtx)

		reply, err := result.Unpack()
		if err != nil {
			reply = Reply{Err: err}
		}

		m.completeCorrelation(id, reply)
	}()

	select {
	case reply := <-ch:
		// The Ask goroutine can complete the correlation with the
		// deadline error itself; report that as a timeout too.
		if reply.Err != nil && reqCtx.Err() != nil {
			return Reply{}, fmt.Errorf("%w: %v", ErrCorrelationTimeout, reqCtx.Err())
		}

		m.deliverCallback(ctx, sender, id, reply)

		if reply.Err != nil {
			return Reply{}, reply.Err
		}
		return reply, nil

	case <-reqCtx.Done():
		m.dropCorrelation(id)
		return Reply{}, fmt.Errorf("%w: %v", ErrCorrelationTimeout, reqCtx.Err())
	}
}

// deliverCallback routes reply to sender's handle-callback export. Delivery
// is best-effort: an unresolvable sender (e.g. a test caller with no
// registered address) is logged and otherwise ignored, since the direct
// return from Request already carries the result back to this call's own
// caller.
func (m *Messenger) deliverCallback(ctx context.Context, sender actorcore.ComponentID, id CorrelationID, reply Reply) {
	ref, err := m.resolve(sender)
	if err != nil {
		return
	}

	errMsg := ""
	if reply.Err != nil {
		errMsg = reply.Err.Error()
	}

	ref.Tell(ctx, CallbackMsg(id, reply.Result, errMsg))
}

// registerCorrelation reserves id for an in-flight request-response
// exchange, rejecting a reused id that is still pending.
func (m *Messenger) registerCorrelation(id CorrelationID) (chan Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pending[id]; exists {
		return nil, ErrAlreadyRegistered
	}

	ch := make(chan Reply, 1)
	m.pending[id] = ch
	return ch, nil
}

func (m *Messenger) completeCorrelation(id CorrelationID, reply Reply) bool {
	m.mu.Lock()
	ch, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	ch <- reply
	return true
}

func (m *Messenger) dropCorrelation(id CorrelationID) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// Publish is the pub/sub pattern: senders publish with a topic, and the
// broker's topic.Manager fans the payload out to every matching
// subscriber's mailbox.
func (m *Messenger) Publish(topicName string, payload []byte) int {
	return m.br.Publish(topicName, payload)
}

func (m *Messenger) resolve(target actorcore.ComponentID) (actorcore.TellOnlyRef[Message], error) {
	return m.resolveTyped(target)
}

func (m *Messenger) resolveTyped(target actorcore.ComponentID) (actorcore.ActorRef[Message, Reply], error) {
	base, err := m.registry.ResolveByRoutingKey(target.String())
	if err != nil {
		return nil, err
	}

	ref, ok := base.(actorcore.ActorRef[Message, Reply])
	if !ok {
		return nil, fmt.Errorf("component: %q is not a component actor reference", target.String())
	}

	return ref, nil
}
