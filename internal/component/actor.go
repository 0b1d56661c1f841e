package component

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
	"github.com/roasbeef/substrate-rt/internal/broker"
	"github.com/roasbeef/substrate-rt/internal/capability"
	"github.com/roasbeef/substrate-rt/internal/runtime"
	"github.com/roasbeef/substrate-rt/internal/security"
	"github.com/roasbeef/substrate-rt/internal/storage"
	"github.com/roasbeef/substrate-rt/internal/supervisor"
)

// State is the component's process-level lifecycle, orthogonal to the
// install-level LifecycleState tracked by the management registry
// (internal/lifecycle).
type State int

const (
	StateCreated State = iota
	StateReady
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ErrNotReady is returned from Invoke when the component was spawned but
// its runtime handle has not been loaded yet (stub mode: registered but
// Start hasn't run).
var ErrNotReady = errors.New("component: not ready")

// Exports names the optional WASM exports a component may implement;
// when absent the host falls back to the documented default behavior
// (log-and-discard for handle-message, Healthy/Unresponsive by load state
// for _health).
const (
	exportHandleMessage  = "handle-message"
	exportHandleCallback = "handle-callback"
	exportHealth         = "_health"
)

// Actor implements actorcore.ActorBehavior[Message, Reply]: it bridges
// mailbox traffic to the runtime.Engine that has the component's compiled
// module loaded, enforcing the component's granted capabilities on every
// InterComponent delivery.
type Actor struct {
	ID       actorcore.ComponentID
	Metadata Manifest

	capabilities capability.Set
	guard        *security.Guard

	engine runtime.Engine
	broker *broker.Broker
	store  storage.Backend

	mu     sync.RWMutex
	state  State
	handle runtime.ComponentHandle

	healthFailures atomic.Int32
}

// NewActor constructs a component actor in StateCreated (stub mode: no
// runtime handle loaded yet). Call LoadInto once the owning Child's start
// hook runs to transition it to StateReady. store may be nil if the
// component never invokes a storage: host function; a nil store rejects
// every storage call with ErrNotReady rather than panicking.
func NewActor(
	id actorcore.ComponentID, metadata Manifest, grants capability.Set,
	engine runtime.Engine, br *broker.Broker, store storage.Backend,
) *Actor {
	return &Actor{
		ID:           id,
		Metadata:     metadata,
		capabilities: grants,
		guard:        security.NewGuard(id.String(), grants),
		engine:       engine,
		broker:       br,
		store:        store,
		state:        StateCreated,
	}
}

// State returns the actor's current process-level state.
func (a *Actor) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// LoadInto compiles bytes via the engine and transitions Created→Ready.
// This is what a supervisor's Child.Start calls; a ComponentActor spawned
// without a supervisor stays in stub mode until something calls this
// directly.
func (a *Actor) LoadInto(bytes []byte) error {
	handle, err := a.engine.LoadComponent(a.ID, bytes)
	if err != nil {
		return fmt.Errorf("%w: %v", runtime.ErrComponentLoadFailed, err)
	}

	a.mu.Lock()
	a.handle = handle
	a.state = StateReady
	a.mu.Unlock()

	return nil
}

// Receive implements actorcore.ActorBehavior[Message, Reply]. It installs
// this component's own guard into ctx for the duration of the dispatch —
// the runtime's one-guard-per-dispatch, cleared-between-dispatches
// contract (spec §4.6) falls out naturally here because ctx is already
// scoped to a single mailbox delivery by actorcore's merged request
// context, so nothing needs to explicitly clear it afterward.
func (a *Actor) Receive(ctx context.Context, msg Message) fn.Result[Reply] {
	ctx = security.WithGuard(ctx, a.guard)

	switch msg.Kind {
	case KindInvoke:
		return a.handleInvoke(ctx, msg)

	case KindInterComponent:
		return a.handleInterComponent(ctx, msg)

	case KindCallback:
		return a.handleCallback(ctx, msg)

	case KindHealthCheck:
		return a.handleHealthCheck(ctx)

	case KindShutdown:
		a.mu.Lock()
		a.state = StateStopping
		a.mu.Unlock()
		return fn.Ok(Reply{})

	default:
		return fn.Err[Reply](fmt.Errorf("component: unknown message kind %d", msg.Kind))
	}
}

// storageFunctionPrefix marks an Invoke.Function as a capability-gated
// host function the host answers directly, rather than a WASM export the
// engine is asked to run. This is the "before a host function touches a
// resource, demand a capability check" contract (spec §4.6) applied to
// the storage capability specifically.
const storageFunctionPrefix = "storage:"

func (a *Actor) handleInvoke(ctx context.Context, msg Message) fn.Result[Reply] {
	a.mu.RLock()
	handle := a.handle
	state := a.state
	a.mu.RUnlock()

	if handle == nil || state == StateCreated {
		return fn.Err[Reply](ErrNotReady)
	}

	codec, decoded, err := Decode(msg.Args)
	if err != nil {
		return fn.Err[Reply](err)
	}

	if storageFn, ok := strings.CutPrefix(msg.Function, storageFunctionPrefix); ok {
		return a.handleStorageCall(ctx, codec, storageFn, decoded)
	}

	out, err := a.engine.Execute(ctx, handle, msg.Function, decoded, a.Metadata.executionContext())
	if err != nil {
		return fn.Err[Reply](err)
	}

	a.mu.Lock()
	if a.state == StateReady {
		a.state = StateRunning
	}
	a.mu.Unlock()

	return fn.Ok(Reply{Result: Encode(codec, out)})
}

// ErrUnknownStorageFunction is returned when an Invoke targets an
// unrecognized "storage:" host function.
var ErrUnknownStorageFunction = errors.New("component: unknown storage function")

// handleStorageCall answers a capability-gated storage: host function
// directly, without involving the runtime engine. args is the decoded
// (post-multicodec) payload; its layout depends on storageFn:
//   - "get", "delete": args is the raw key.
//   - "set": args is "key\x00value" (first NUL separates key from value).
//   - "list-keys": args is ignored; the result is keys newline-joined.
func (a *Actor) handleStorageCall(
	ctx context.Context, codec Codec, storageFn string, args []byte,
) fn.Result[Reply] {

	ns := storage.ComponentNamespace(a.ID)

	checkAction := func(action capability.Action) error {
		return security.CheckContext(ctx, capability.KindStorage, ns, action)
	}

	if a.store == nil {
		return fn.Err[Reply](ErrNotReady)
	}

	switch storageFn {
	case "get":
		if err := checkAction(capability.ActionRead); err != nil {
			return fn.Err[Reply](err)
		}
		val, err := a.store.Get(ctx, ns, string(args))
		if err != nil {
			return fn.Err[Reply](err)
		}
		return fn.Ok(Reply{Result: Encode(codec, val)})

	case "set":
		if err := checkAction(capability.ActionWrite); err != nil {
			return fn.Err[Reply](err)
		}
		key, value, ok := bytes.Cut(args, []byte{0})
		if !ok {
			return fn.Err[Reply](fmt.Errorf("component: malformed storage:set args"))
		}
		if err := a.store.Set(ctx, ns, string(key), value); err != nil {
			return fn.Err[Reply](err)
		}
		return fn.Ok(Reply{Result: Encode(codec, nil)})

	case "delete":
		if err := checkAction(capability.ActionWrite); err != nil {
			return fn.Err[Reply](err)
		}
		if err := a.store.Delete(ctx, ns, string(args)); err != nil {
			return fn.Err[Reply](err)
		}
		return fn.Ok(Reply{Result: Encode(codec, nil)})

	case "list-keys":
		if err := checkAction(capability.ActionRead); err != nil {
			return fn.Err[Reply](err)
		}
		keys, err := a.store.ListKeys(ctx, ns)
		if err != nil {
			return fn.Err[Reply](err)
		}
		return fn.Ok(Reply{Result: Encode(codec, []byte(strings.Join(keys, "\n")))})

	default:
		return fn.Err[Reply](fmt.Errorf("%w: %q", ErrUnknownStorageFunction, storageFn))
	}
}

// handleInterComponent runs a capability check before the payload
// reaches handle-message: the guard in ctx (this receiving component's
// own, installed by Receive) must hold a topic read grant over the
// namespace "component.<this id>". The sender's identity and grants are
// not checked.
func (a *Actor) handleInterComponent(ctx context.Context, msg Message) fn.Result[Reply] {
	a.mu.RLock()
	handle := a.handle
	a.mu.RUnlock()

	if handle == nil {
		return fn.Err[Reply](ErrNotReady)
	}

	resource := fmt.Sprintf("component.%s", a.ID.String())
	if err := security.CheckContext(ctx, capability.KindTopic, resource, capability.ActionRead); err != nil {
		return fn.Err[Reply](err)
	}

	_, decoded, err := Decode(msg.Payload)
	if err != nil {
		log.DebugS(ctx, "component: discarding undecodable InterComponent payload",
			"component", a.ID.String(), "sender", msg.Sender.String(), "err", err)
		return fn.Ok(Reply{})
	}

	_, err = a.engine.Execute(ctx, handle, exportHandleMessage, decoded, a.Metadata.executionContext())
	if err != nil {
		log.DebugS(ctx, "component: handle-message export not present or failed, discarding",
			"component", a.ID.String(), "err", err)
	}

	return fn.Ok(Reply{})
}

// handleCallback delivers a Messenger.Request's correlated reply to this
// component's handle-callback export. A missing export is log-and-discard,
// same as handleInterComponent's handle-message fallback.
func (a *Actor) handleCallback(ctx context.Context, msg Message) fn.Result[Reply] {
	a.mu.RLock()
	handle := a.handle
	a.mu.RUnlock()

	if handle == nil {
		return fn.Err[Reply](ErrNotReady)
	}

	payload := msg.CallbackResult
	if msg.CallbackErr != "" {
		payload = []byte(msg.CallbackErr)
	}

	_, err := a.engine.Execute(ctx, handle, exportHandleCallback, payload, a.Metadata.executionContext())
	if err != nil {
		log.DebugS(ctx, "component: handle-callback export not present or failed, discarding",
			"component", a.ID.String(), "correlation", string(msg.CorrelationID), "err", err)
	}

	return fn.Ok(Reply{})
}

func (a *Actor) handleHealthCheck(ctx context.Context) fn.Result[Reply] {
	a.mu.RLock()
	handle := a.handle
	loaded := handle != nil
	a.mu.RUnlock()

	if !loaded {
		return fn.Ok(Reply{Status: supervisor.HealthUnresponsive})
	}

	out, err := a.engine.Execute(ctx, handle, exportHealth, nil, a.Metadata.executionContext())
	if err != nil {
		// No _health export (or it failed): fall back to load-state.
		return fn.Ok(Reply{Status: supervisor.HealthHealthy})
	}

	if len(out) > 0 && out[0] == 0 {
		a.healthFailures.Add(1)
		return fn.Ok(Reply{Status: supervisor.HealthUnresponsive})
	}

	a.healthFailures.Store(0)
	return fn.Ok(Reply{Status: supervisor.HealthHealthy})
}

// OnStop implements actorcore.Stoppable, releasing the engine-side handle
// when the actor's receive loop ends.
func (a *Actor) OnStop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = StateTerminated
	if a.handle == nil {
		return nil
	}

	err := a.engine.Unload(a.handle)
	a.handle = nil
	return err
}
