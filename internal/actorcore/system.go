package actorcore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// stoppable is satisfied by any managed actor.
type stoppable interface {
	Stop()
}

// SystemContext is the minimal surface actors and supporting packages
// (registry, broker, supervisor) need from a System, enabling unit tests
// to substitute a fake without constructing a full System.
type SystemContext interface {
	// DeadLetters returns a reference to the dead letter actor.
	DeadLetters() ActorRef[Message, any]

	// Context returns the system's root lifecycle context; it is
	// cancelled at the start of Shutdown.
	Context() context.Context
}

// SystemConfig configures a System.
type SystemConfig struct {
	// MailboxCapacity is the default per-priority-level mailbox
	// capacity for actors spawned via Spawn.
	MailboxCapacity int

	// MailboxPolicy is the default backpressure policy for actors
	// spawned via Spawn.
	MailboxPolicy BackpressurePolicy
}

// DefaultSystemConfig returns sane defaults: a 100-message-per-priority
// mailbox with blocking backpressure, matching the teacher's original
// single-priority default of 100.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		MailboxCapacity: 100,
		MailboxPolicy:   PolicyBlock,
	}
}

// System owns the lifecycle of every actor spawned through it: it
// provides the dead letter office undeliverable messages drain to, and
// coordinates a single, ordered Shutdown across all managed actors.
type System struct {
	actors map[ActorID]stoppable
	mu     sync.RWMutex

	deadLetters ActorRef[Message, any]

	config SystemConfig

	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// NewSystem creates a System with the given configuration.
func NewSystem(cfg SystemConfig) *System {
	ctx, cancel := context.WithCancel(context.Background())

	sys := &System{
		actors: make(map[ActorID]stoppable),
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	dlBehavior := FunctionBehavior[Message, any](
		func(_ context.Context, msg Message) fn.Result[any] {
			log.WarnS(ctx, "Message undeliverable",
				errors.New("no recipient"),
				"msg_type", msg.MessageType())

			return fn.Err[any](errors.New(
				"message undeliverable: " + msg.MessageType(),
			))
		},
	)

	dlActor := NewActor[Message, any](ActorConfig[Message, any]{
		Address:         ActorAddress{ID: NewActorID(), Path: "/dead-letters"},
		Behavior:        dlBehavior,
		MailboxCapacity: cfg.MailboxCapacity,
		MailboxPolicy:   cfg.MailboxPolicy,
		Wg:              &sys.wg,
	})
	dlActor.Start()

	sys.deadLetters = dlActor.Ref()
	sys.actors[dlActor.Address().ID] = dlActor

	return sys
}

// Context returns the system's root context.
func (sys *System) Context() context.Context {
	return sys.ctx
}

// DeadLetters returns the dead letter office actor reference.
func (sys *System) DeadLetters() ActorRef[Message, any] {
	return sys.deadLetters
}

// Spawn creates, starts, and registers a new actor under the given path,
// wiring it to this system's dead letter office and default mailbox
// config. It returns a stopped, always-erroring ref if the system is
// already shutting down, so callers never need a nil check.
func Spawn[M Message, R any](
	sys *System, path string, behavior ActorBehavior[M, R],
	opts ...SpawnOption,
) ActorRef[M, R] {

	ref, _ := spawn[M, R](sys, path, behavior, opts...)
	return ref
}

// SpawnSupervised is Spawn plus a Done channel closed when the spawned
// actor's receive loop fully exits, for callers (the supervisor, the
// component spawner) that need to learn of an actor's exit without
// polling — spec's Child watch/restart path needs exactly this signal.
func SpawnSupervised[M Message, R any](
	sys *System, path string, behavior ActorBehavior[M, R],
	opts ...SpawnOption,
) (ActorRef[M, R], <-chan struct{}) {

	return spawn[M, R](sys, path, behavior, opts...)
}

func spawn[M Message, R any](
	sys *System, path string, behavior ActorBehavior[M, R],
	opts ...SpawnOption,
) (ActorRef[M, R], <-chan struct{}) {

	if sys.ctx.Err() != nil {
		return deadRef[M, R](path)
	}

	var cfg spawnConfig
	cfg.mailboxCapacity = sys.config.MailboxCapacity
	cfg.mailboxPolicy = sys.config.MailboxPolicy
	for _, opt := range opts {
		opt(&cfg)
	}

	actorCfg := ActorConfig[M, R]{
		Address:         ActorAddress{ID: NewActorID(), Path: path},
		Behavior:        behavior,
		DLO:             sys.deadLetters,
		MailboxCapacity: cfg.mailboxCapacity,
		MailboxPolicy:   cfg.mailboxPolicy,
		Wg:              &sys.wg,
		CleanupTimeout:  cfg.cleanupTimeout,
	}
	a := NewActor(actorCfg)
	a.Start()

	sys.mu.Lock()
	sys.actors[a.Address().ID] = a
	sys.mu.Unlock()

	return a.Ref(), a.Done()
}

// SpawnOption customizes a single Spawn call.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	mailboxCapacity int
	mailboxPolicy   BackpressurePolicy
	cleanupTimeout  fn.Option[time.Duration]
}

// WithMailboxCapacity overrides the spawned actor's per-priority mailbox
// capacity.
func WithMailboxCapacity(n int) SpawnOption {
	return func(c *spawnConfig) { c.mailboxCapacity = n }
}

// WithMailboxPolicy overrides the spawned actor's backpressure policy.
func WithMailboxPolicy(p BackpressurePolicy) SpawnOption {
	return func(c *spawnConfig) { c.mailboxPolicy = p }
}

// WithCleanupTimeout overrides the spawned actor's OnStop deadline.
func WithCleanupTimeout(d time.Duration) SpawnOption {
	return func(c *spawnConfig) { c.cleanupTimeout = fn.Some(d) }
}

// deadRef returns an ActorRef (and its already-closed Done channel) whose
// every call fails with ErrActorTerminated, used so Spawn never needs to
// return nil.
func deadRef[M Message, R any](path string) (ActorRef[M, R], <-chan struct{}) {
	a := NewActor[M, R](ActorConfig[M, R]{
		Address: ActorAddress{ID: NewActorID(), Path: path},
	})
	// Start then immediately Stop so process() actually runs to
	// completion (and closes Done) instead of leaving an unstarted
	// actor whose Done channel would never close.
	a.Start()
	a.Stop()

	return a.Ref(), a.Done()
}

// StopAndRemove stops the actor with the given ID and removes it from
// system management. Returns false if no such actor is tracked.
func (sys *System) StopAndRemove(id ActorID) bool {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	a, ok := sys.actors[id]
	if !ok {
		return false
	}

	a.Stop()
	delete(sys.actors, id)

	return true
}

// Shutdown cancels the system's root context (blocking further Spawn
// calls), stops every managed actor, and waits for their receive loops to
// exit or ctx to expire, whichever comes first.
func (sys *System) Shutdown(ctx context.Context) error {
	sys.cancel()

	sys.mu.Lock()
	toStop := make([]stoppable, 0, len(sys.actors))
	for _, a := range sys.actors {
		toStop = append(toStop, a)
	}
	sys.actors = nil
	sys.mu.Unlock()

	log.InfoS(ctx, "Actor system shutting down", "num_actors", len(toStop))

	for _, a := range toStop {
		a.Stop()
	}

	done := make(chan struct{})
	go func() {
		sys.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.InfoS(ctx, "Actor system shutdown complete")
		return nil

	case <-ctx.Done():
		log.ErrorS(ctx, "Actor system shutdown incomplete", ctx.Err())
		return ctx.Err()
	}
}

// FunctionBehavior adapts a plain function to the ActorBehavior interface,
// for simple actors (the dead letter office, test doubles) that don't
// warrant a dedicated type.
type FunctionBehavior[M Message, R any] func(context.Context, M) fn.Result[R]

// Receive implements ActorBehavior.
func (f FunctionBehavior[M, R]) Receive(ctx context.Context, msg M) fn.Result[R] {
	return f(ctx, msg)
}
