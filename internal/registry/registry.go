// Package registry implements the actor registry (spec component C4): a
// type-safe address book mapping logical names to actor references, plus
// pool membership for load-balanced groups of interchangeable actors.
package registry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"reflect"
	"sync"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
)

// ErrTypeMismatch is returned when a routing key is registered twice with
// incompatible message/response types.
var ErrTypeMismatch = fmt.Errorf("registry: service key type mismatch")

// ErrNotFound is returned when resolving an unregistered key or routing
// key.
var ErrNotFound = fmt.Errorf("registry: no actor registered")

// ServiceKey is a type-safe name under which actors register themselves.
// Only one (message, response) type pair may ever be associated with a
// given name — attempting to register a second, different pair returns
// ErrTypeMismatch.
type ServiceKey[M actorcore.Message, R any] struct {
	name string
}

// NewServiceKey creates a ServiceKey with the given name.
func NewServiceKey[M actorcore.Message, R any](name string) ServiceKey[M, R] {
	return ServiceKey[M, R]{name: name}
}

// Name returns the key's lookup name.
func (k ServiceKey[M, R]) Name() string { return k.name }

type typeSignature struct {
	msg  string
	resp string
}

// Registry is the system's address book: register an actor under a
// ServiceKey, resolve it back by key or by an arbitrary routing key
// string, and route to one member of a pool by RoundRobin or Random
// selection.
type Registry struct {
	mu sync.RWMutex

	byKey     map[string][]actorcore.BaseActorRef
	typeOf    map[string]typeSignature
	byRouting map[string]actorcore.BaseActorRef

	// poolCursor tracks the next RoundRobin index per key, so repeated
	// Pool calls advance rather than always returning the first member.
	poolCursor map[string]int
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byKey:      make(map[string][]actorcore.BaseActorRef),
		typeOf:     make(map[string]typeSignature),
		byRouting:  make(map[string]actorcore.BaseActorRef),
		poolCursor: make(map[string]int),
	}
}

// Register adds ref under key, validating that key's name has not already
// been bound to a different (M, R) pair.
func Register[M actorcore.Message, R any](
	reg *Registry, key ServiceKey[M, R], ref actorcore.ActorRef[M, R],
) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	sig := typeSignature{
		msg:  reflect.TypeOf((*M)(nil)).Elem().String(),
		resp: reflect.TypeOf((*R)(nil)).Elem().String(),
	}

	if existing, ok := reg.typeOf[key.name]; ok {
		if existing != sig {
			return fmt.Errorf("%w: %q already registered as (%s, %s)",
				ErrTypeMismatch, key.name, existing.msg, existing.resp)
		}
	} else {
		reg.typeOf[key.name] = sig
	}

	reg.byKey[key.name] = append(reg.byKey[key.name], ref)

	return nil
}

// Unregister removes ref from key's registrations. Returns true if it was
// found and removed.
func Unregister[M actorcore.Message, R any](
	reg *Registry, key ServiceKey[M, R], ref actorcore.ActorRef[M, R],
) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	refs, ok := reg.byKey[key.name]
	if !ok {
		return false
	}

	out := make([]actorcore.BaseActorRef, 0, len(refs))
	found := false
	for _, r := range refs {
		if typed, ok := r.(actorcore.ActorRef[M, R]); ok && typed == ref {
			found = true
			continue
		}
		out = append(out, r)
	}
	if !found {
		return false
	}

	if len(out) == 0 {
		delete(reg.byKey, key.name)
		delete(reg.typeOf, key.name)
	} else {
		reg.byKey[key.name] = out
	}

	return true
}

// Resolve returns every actor registered under key.
func Resolve[M actorcore.Message, R any](
	reg *Registry, key ServiceKey[M, R],
) []actorcore.ActorRef[M, R] {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	refs := reg.byKey[key.name]
	out := make([]actorcore.ActorRef[M, R], 0, len(refs))
	for _, r := range refs {
		if typed, ok := r.(actorcore.ActorRef[M, R]); ok {
			out = append(out, typed)
		}
	}

	return out
}

// RegisterRoutingKey binds an arbitrary routing-key string (e.g. a
// component instance ID, distinct from a ServiceKey's type-checked name)
// directly to an actor reference, for the C4 resolve_by_routing_key fast
// path used by the component registry (C16) to look up a specific
// component instance's mailbox without a type-checked ServiceKey.
func (reg *Registry) RegisterRoutingKey(routingKey string, ref actorcore.BaseActorRef) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.byRouting[routingKey] = ref
}

// UnregisterRoutingKey removes a routing-key binding.
func (reg *Registry) UnregisterRoutingKey(routingKey string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.byRouting, routingKey)
}

// ResolveByRoutingKey looks up an actor bound by RegisterRoutingKey.
func (reg *Registry) ResolveByRoutingKey(routingKey string) (actorcore.BaseActorRef, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	ref, ok := reg.byRouting[routingKey]
	if !ok {
		return nil, fmt.Errorf("%w: routing key %q", ErrNotFound, routingKey)
	}

	return ref, nil
}

// PoolStrategy selects one member from a non-empty slice of candidates.
type PoolStrategy int

const (
	// RoundRobin cycles through members in registration order.
	RoundRobin PoolStrategy = iota

	// Random selects uniformly at random.
	Random
)

// PoolMember returns one actor from the pool of actors registered under
// key, chosen by strategy. Returns ErrNotFound if the pool is empty.
func PoolMember[M actorcore.Message, R any](
	reg *Registry, key ServiceKey[M, R], strategy PoolStrategy,
) (actorcore.ActorRef[M, R], error) {

	members := Resolve(reg, key)
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: pool %q is empty", ErrNotFound, key.name)
	}

	switch strategy {
	case Random:
		return members[rand.IntN(len(members))], nil

	case RoundRobin:
		reg.mu.Lock()
		idx := reg.poolCursor[key.name] % len(members)
		reg.poolCursor[key.name] = idx + 1
		reg.mu.Unlock()

		return members[idx], nil

	default:
		return nil, fmt.Errorf("registry: unknown pool strategy %d", strategy)
	}
}

// Broadcast tells every actor registered under key, returning the number
// of recipients. Fire-and-forget: delivery is not guaranteed.
func Broadcast[M actorcore.Message, R any](
	reg *Registry, ctx context.Context, key ServiceKey[M, R], msg M,
) int {
	members := Resolve(reg, key)
	for _, m := range members {
		m.Tell(ctx, msg)
	}

	return len(members)
}
