package component

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
	"github.com/roasbeef/substrate-rt/internal/broker"
	"github.com/roasbeef/substrate-rt/internal/capability"
	"github.com/roasbeef/substrate-rt/internal/registry"
	"github.com/roasbeef/substrate-rt/internal/runtime"
	"github.com/roasbeef/substrate-rt/internal/storage"
	"github.com/roasbeef/substrate-rt/internal/supervisor"
)

func newTestHost() *Host {
	return &Host{
		Sys:      actorcore.NewSystem(actorcore.DefaultSystemConfig()),
		Registry: registry.New(),
		Broker:   broker.New(),
		Engine:   runtime.NewNoopEngine(),
		Storage:  storage.NewMemoryBackend(),
	}
}

func TestSpawnUnsupervisedStartsInStubMode(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	id := actorcore.NewComponentID("calc")

	handle, err := Spawn(h, id, Manifest{Name: "calc"}, nil)
	require.NoError(t, err)
	require.Equal(t, StateCreated, handle.Actor.State())

	_, err = h.Registry.ResolveByRoutingKey(id.String())
	require.NoError(t, err, "spawn must register the component's address")
}

func TestSpawnRejectsUngrantedWantedCapability(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	id := actorcore.NewComponentID("writer")

	manifest := Manifest{
		Name:              "writer",
		WantsCapabilities: []string{"filesystem:/tmp/out/:write"},
	}

	_, err := Spawn(h, id, manifest, nil)
	require.Error(t, err)

	var denied *ErrWantedCapabilityNotGranted
	require.ErrorAs(t, err, &denied)
}

func TestInvokeNotReadyBeforeLoad(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	id := actorcore.NewComponentID("calc")

	handle, err := Spawn(h, id, Manifest{Name: "calc"}, nil)
	require.NoError(t, err)

	future := handle.Ref.Ask(context.Background(), Invoke("add", Encode(CodecBorsh, []byte("1,2"))))
	result := future.Await(context.Background())

	_, err = result.Unpack()
	require.ErrorIs(t, err, ErrNotReady)
}

func TestInvokeAfterLoadEchoesThroughNoopEngine(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	id := actorcore.NewComponentID("calc")

	handle, err := Spawn(h, id, Manifest{Name: "calc"}, nil)
	require.NoError(t, err)
	require.NoError(t, handle.Actor.LoadInto([]byte("fake wasm bytes")))

	payload := Encode(CodecMessagePack, []byte("hello"))
	future := handle.Ref.Ask(context.Background(), Invoke("greet", payload))
	result := future.Await(context.Background())

	reply, err := result.Unpack()
	require.NoError(t, err)
	require.Equal(t, payload, reply.Result)
}

func TestInterComponentDeniedWithoutCapability(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	targetID := actorcore.NewComponentID("target")
	senderID := actorcore.NewComponentID("sender")

	// Target has no Topic capability granting senders access to it.
	handle, err := Spawn(h, targetID, Manifest{Name: "target"}, nil)
	require.NoError(t, err)
	require.NoError(t, handle.Actor.LoadInto([]byte("wasm")))

	future := handle.Ref.Ask(
		context.Background(),
		InterComponentMsg(senderID, Encode(CodecBorsh, []byte("hi"))),
	)
	_, err = future.Await(context.Background()).Unpack()
	require.Error(t, err)
}

func TestInterComponentAllowedWithCapability(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	targetID := actorcore.NewComponentID("target")
	senderID := actorcore.NewComponentID("sender")

	grants := capability.Set{
		capability.New(capability.KindTopic, "component."+targetID.String(), capability.ActionRead),
	}

	handle, err := Spawn(h, targetID, Manifest{Name: "target"}, grants)
	require.NoError(t, err)
	require.NoError(t, handle.Actor.LoadInto([]byte("wasm")))

	future := handle.Ref.Ask(
		context.Background(),
		InterComponentMsg(senderID, Encode(CodecBorsh, []byte("hi"))),
	)
	_, err = future.Await(context.Background()).Unpack()
	require.NoError(t, err)
}

func TestHealthCheckUnresponsiveBeforeLoad(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	id := actorcore.NewComponentID("calc")

	handle, err := Spawn(h, id, Manifest{Name: "calc"}, nil)
	require.NoError(t, err)

	future := handle.Ref.Ask(context.Background(), HealthCheck())
	reply, err := future.Await(context.Background()).Unpack()
	require.NoError(t, err)
	require.Equal(t, supervisor.HealthUnresponsive, reply.Status)
}

func TestMessengerSendRequiresRegisteredTarget(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	m := NewMessenger(h.Registry, h.Broker)

	err := m.Send(context.Background(), actorcore.NewComponentID("a"), actorcore.NewComponentID("ghost"), nil)
	require.Error(t, err)
}

func TestStorageCallDeniedWithoutCapability(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	id := actorcore.NewComponentID("calc")

	handle, err := Spawn(h, id, Manifest{Name: "calc"}, nil)
	require.NoError(t, err)
	require.NoError(t, handle.Actor.LoadInto([]byte("wasm")))

	future := handle.Ref.Ask(context.Background(), Invoke("storage:set", Encode(CodecBorsh, []byte("k\x00v"))))
	_, err = future.Await(context.Background()).Unpack()
	require.Error(t, err)
}

func TestStorageSetThenGetRoundTripsThroughHostFunction(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	id := actorcore.NewComponentID("calc")

	grants := capability.Set{
		capability.New(capability.KindStorage, "component:"+id.String(), capability.ActionRead, capability.ActionWrite),
	}

	handle, err := Spawn(h, id, Manifest{Name: "calc"}, grants)
	require.NoError(t, err)
	require.NoError(t, handle.Actor.LoadInto([]byte("wasm")))

	ctx := context.Background()

	setFuture := handle.Ref.Ask(ctx, Invoke("storage:set", Encode(CodecBorsh, []byte("counter\x0042"))))
	_, err = setFuture.Await(ctx).Unpack()
	require.NoError(t, err)

	getFuture := handle.Ref.Ask(ctx, Invoke("storage:get", Encode(CodecBorsh, []byte("counter"))))
	reply, err := getFuture.Await(ctx).Unpack()
	require.NoError(t, err)

	_, val, err := Decode(reply.Result)
	require.NoError(t, err)
	require.Equal(t, []byte("42"), val)

	listFuture := handle.Ref.Ask(ctx, Invoke("storage:list-keys", Encode(CodecBorsh, nil)))
	reply, err = listFuture.Await(ctx).Unpack()
	require.NoError(t, err)

	_, keys, err := Decode(reply.Result)
	require.NoError(t, err)
	require.Equal(t, "counter", string(keys))
}

func TestMessengerRequestRoundTrips(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	m := NewMessenger(h.Registry, h.Broker)

	targetID := actorcore.NewComponentID("calc")
	handle, err := Spawn(h, targetID, Manifest{Name: "calc"}, nil)
	require.NoError(t, err)
	require.NoError(t, handle.Actor.LoadInto([]byte("wasm")))

	reply, err := m.Request(
		context.Background(), actorcore.NewComponentID("caller"), targetID,
		"add", Encode(CodecBincode, []byte("1,2")), time.Second,
	)
	require.NoError(t, err)
	require.Equal(t, Encode(CodecBincode, []byte("1,2")), reply.Result)
}

func TestMessengerRequestDuplicateCorrelationIDFailsDelivery(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	m := NewMessenger(h.Registry, h.Broker)

	targetID := actorcore.NewComponentID("calc")
	handle, err := Spawn(h, targetID, Manifest{Name: "calc"}, nil)
	require.NoError(t, err)
	require.NoError(t, handle.Actor.LoadInto([]byte("wasm")))

	id := NewCorrelationID()

	ch, err := m.registerCorrelation(id)
	require.NoError(t, err)
	defer m.dropCorrelation(id)

	_, err = m.requestWithID(
		context.Background(), id, actorcore.NewComponentID("caller"), targetID,
		"add", nil, time.Second,
	)
	require.ErrorIs(t, err, ErrDeliveryFailed)

	// The pre-existing registration is untouched by the failed attempt.
	require.NotNil(t, ch)
	m.mu.Lock()
	_, stillPending := m.pending[id]
	m.mu.Unlock()
	require.True(t, stillPending, "pre-existing correlation must stay registered")
}

func TestMessengerRequestTimesOutAndDropsCorrelation(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	m := NewMessenger(h.Registry, h.Broker)

	targetID := actorcore.NewComponentID("slow")
	ref := actorcore.Spawn[Message, Reply](h.Sys, targetID.String(),
		actorcore.FunctionBehavior[Message, Reply](
			func(ctx context.Context, _ Message) fn.Result[Reply] {
				<-ctx.Done()
				return fn.Err[Reply](ctx.Err())
			}))
	h.Registry.RegisterRoutingKey(targetID.String(), ref)

	id := NewCorrelationID()
	_, err := m.requestWithID(
		context.Background(), id, actorcore.NewComponentID("caller"), targetID,
		"add", nil, 10*time.Millisecond,
	)
	require.ErrorIs(t, err, ErrCorrelationTimeout)

	m.mu.Lock()
	_, stillPending := m.pending[id]
	m.mu.Unlock()
	require.False(t, stillPending, "timed-out correlation must be dropped from the pending tracker")
}

func TestMessengerRequestDeliversCallbackToSender(t *testing.T) {
	t.Parallel()

	h := newTestHost()
	m := NewMessenger(h.Registry, h.Broker)

	targetID := actorcore.NewComponentID("calc")
	target, err := Spawn(h, targetID, Manifest{Name: "calc"}, nil)
	require.NoError(t, err)
	require.NoError(t, target.Actor.LoadInto([]byte("wasm")))

	callerID := actorcore.NewComponentID("caller")
	caller, err := Spawn(h, callerID, Manifest{Name: "caller"}, nil)
	require.NoError(t, err)
	require.NoError(t, caller.Actor.LoadInto([]byte("wasm")))

	reply, err := m.Request(
		context.Background(), callerID, targetID,
		"add", Encode(CodecBincode, []byte("1,2")), time.Second,
	)
	require.NoError(t, err)
	require.Equal(t, Encode(CodecBincode, []byte("1,2")), reply.Result)

	// The callback delivery to caller's own handle-callback export is
	// fire-and-forget; wait until the caller's engine has executed it
	// (the no-op engine charges fuel for the callback's payload bytes).
	require.Eventually(t, func() bool {
		caller.Actor.mu.RLock()
		hdl := caller.Actor.handle
		caller.Actor.mu.RUnlock()

		u, err := h.Engine.ResourceUsage(hdl)
		return err == nil && u.FuelConsumed > 0
	}, time.Second, time.Millisecond)
}
