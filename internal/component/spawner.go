package component

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
	"github.com/roasbeef/substrate-rt/internal/broker"
	"github.com/roasbeef/substrate-rt/internal/capability"
	"github.com/roasbeef/substrate-rt/internal/registry"
	"github.com/roasbeef/substrate-rt/internal/runtime"
	"github.com/roasbeef/substrate-rt/internal/storage"
	"github.com/roasbeef/substrate-rt/internal/supervisor"
)

// Host owns everything a component needs wired at spawn time: the actor
// system to spawn into, the registry to publish its address under, the
// broker for pub/sub, the engine that loads its WASM bytes, and the
// storage backend its "storage:" host functions read and write. Storage
// may be nil for hosts whose components never request the storage
// capability.
type Host struct {
	Sys      *actorcore.System
	Registry *registry.Registry
	Broker   *broker.Broker
	Engine   runtime.Engine
	Storage  storage.Backend
}

// Handle is what the spawner hands back: the component's actor logic
// (for tests and direct LoadInto calls) and its ref (for sending
// messages). Other components reach it through the registry.
type Handle struct {
	Actor *Actor
	Ref   actorcore.ActorRef[Message, Reply]
}

// ErrWantedCapabilityNotGranted is returned by Spawn when the manifest
// declares a capability the caller didn't actually grant. The component
// is not spawned, so the mismatch is surfaced up front rather than
// discovered the first time the component tries to use it.
type ErrWantedCapabilityNotGranted struct{ Pattern string }

func (e *ErrWantedCapabilityNotGranted) Error() string {
	return fmt.Sprintf("component: manifest wants capability %q that was not granted", e.Pattern)
}

// Spawn implements the unsupervised half of the 4-step component spawn
// process (spec §4.7): build the actor with its granted capabilities and
// broker bridge, spawn it through the actor system, and register its
// address in the component registry. It does not load any WASM bytes —
// the actor starts in stub mode (StateCreated) until LoadInto is called,
// matching "registered but Child::start not yet called".
func Spawn(
	h *Host, id actorcore.ComponentID, manifest Manifest, grants capability.Set,
) (*Handle, error) {

	if err := validateGrants(manifest, grants); err != nil {
		return nil, err
	}

	actor := NewActor(id, manifest, grants, h.Engine, h.Broker, h.Storage)

	ref := actorcore.Spawn[Message, Reply](
		h.Sys, "/components/"+id.String(), actor,
	)

	h.Registry.RegisterRoutingKey(id.String(), ref)

	return &Handle{Actor: actor, Ref: ref}, nil
}

// SpawnSupervised is the supervised half of the 4-step process: it
// additionally registers a supervisor.ChildSpec so the supervisor can
// drive the actor's WASM load (via Start) and restart it per policy on
// exit, per spec's "registration and start are two steps because the
// manager wants to know the component exists before it is running".
func SpawnSupervised(
	h *Host, sup *supervisor.Supervisor, id actorcore.ComponentID,
	manifest Manifest, wasmBytes []byte, grants capability.Set,
	policy supervisor.RestartPolicy, backoff supervisor.ExponentialBackoff,
	limiter *supervisor.SlidingWindowLimiter, recoveryThreshold time.Duration,
) (*Handle, *supervisor.ChildHandle, error) {

	if err := validateGrants(manifest, grants); err != nil {
		return nil, nil, err
	}

	actor := NewActor(id, manifest, grants, h.Engine, h.Broker, h.Storage)

	spec := supervisor.ChildSpec{
		Name:   id.String(),
		Policy: policy,
		Start: func(ctx context.Context) (func(), <-chan struct{}) {
			ref, done := actorcore.SpawnSupervised[Message, Reply](
				h.Sys, "/components/"+id.String(), actor,
			)

			h.Registry.RegisterRoutingKey(id.String(), ref)

			if err := actor.LoadInto(wasmBytes); err != nil {
				log.ErrorS(ctx, "component: failed to load WASM bytes", err,
					"component", id.String())
			}

			stop := func() {
				h.Registry.UnregisterRoutingKey(id.String())
				ref.Tell(context.Background(), Shutdown())
			}

			return stop, done
		},
	}

	handle := sup.AddChild(spec, backoff, limiter, recoveryThreshold)

	// AddChild's Start callback runs synchronously before AddChild
	// returns, so the routing-key registration above has already
	// happened by this point.
	var ref actorcore.ActorRef[Message, Reply]
	if base, err := h.Registry.ResolveByRoutingKey(id.String()); err == nil {
		ref, _ = base.(actorcore.ActorRef[Message, Reply])
	}

	return &Handle{Actor: actor, Ref: ref}, handle, nil
}

func validateGrants(manifest Manifest, grants capability.Set) error {
	for _, want := range manifest.WantsCapabilities {
		kind, pattern, action, err := ParseCapabilityWant(want)
		if err != nil {
			return err
		}

		if !grants.Allows(kind, pattern, action) {
			return &ErrWantedCapabilityNotGranted{Pattern: want}
		}
	}

	return nil
}

// ParseCapabilityWant parses a manifest's "kind:pattern:action" capability
// want string (e.g. "filesystem:/data/*.json:read"). Only the first and
// last colon are treated as separators, since pattern itself may contain
// colons — a storage namespace pattern like "component:calc" inside
// "storage:component:calc:write" must survive intact.
func ParseCapabilityWant(want string) (capability.Kind, string, capability.Action, error) {
	firstColon := strings.IndexByte(want, ':')
	lastColon := strings.LastIndexByte(want, ':')
	if firstColon < 0 || lastColon <= firstColon {
		return 0, "", 0, fmt.Errorf(
			"component: malformed capability want %q, expected kind:pattern:action", want,
		)
	}

	kindStr := want[:firstColon]
	pattern := want[firstColon+1 : lastColon]
	actionStr := want[lastColon+1:]

	if pattern == "" {
		return 0, "", 0, fmt.Errorf(
			"component: malformed capability want %q, expected kind:pattern:action", want,
		)
	}

	kind, err := parseCapabilityKind(kindStr)
	if err != nil {
		return 0, "", 0, err
	}

	action, err := parseCapabilityAction(actionStr)
	if err != nil {
		return 0, "", 0, err
	}

	return kind, pattern, action, nil
}

func parseCapabilityKind(s string) (capability.Kind, error) {
	switch s {
	case "filesystem":
		return capability.KindFilesystem, nil
	case "network":
		return capability.KindNetwork, nil
	case "topic":
		return capability.KindTopic, nil
	case "storage":
		return capability.KindStorage, nil
	default:
		return 0, fmt.Errorf("component: unknown capability kind %q", s)
	}
}

func parseCapabilityAction(s string) (capability.Action, error) {
	switch s {
	case "read":
		return capability.ActionRead, nil
	case "write":
		return capability.ActionWrite, nil
	case "execute":
		return capability.ActionExecute, nil
	default:
		return 0, fmt.Errorf("component: unknown capability action %q", s)
	}
}
