package actorcore

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// mergeContexts returns a context that cancels when either ctx1 or ctx2
// does, preserving whichever deadline is earlier. A background goroutine
// propagates cancellation and exits as soon as either parent (or the
// merged context itself) is done.
func mergeContexts(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	deadline1, hasDeadline1 := ctx1.Deadline()
	deadline2, hasDeadline2 := ctx2.Deadline()

	baseCtx := ctx1
	if hasDeadline2 && (!hasDeadline1 || deadline2.Before(deadline1)) {
		baseCtx = ctx2
	}

	mergedCtx, cancel := context.WithCancel(baseCtx)

	go func() {
		select {
		case <-ctx1.Done():
			cancel()
		case <-ctx2.Done():
			cancel()
		case <-mergedCtx.Done():
		}
	}()

	return mergedCtx, cancel
}

// ActorBehavior defines how an actor reacts to messages of type M,
// producing a result of type R. The context passed to Receive merges the
// actor's lifecycle context with the caller's request context.
type ActorBehavior[M Message, R any] interface {
	Receive(ctx context.Context, msg M) fn.Result[R]
}

// Stoppable is implemented by behaviors that need to release external
// resources (file handles, engine instances, DB connections) when their
// actor stops.
type Stoppable interface {
	// OnStop runs after the receive loop exits but before the actor's
	// goroutine terminates. ctx carries a cleanup deadline.
	OnStop(ctx context.Context) error
}

// BaseActorRef is the non-generic handle every ActorRef satisfies,
// allowing heterogeneous references (e.g. in the registry's address map)
// to be stored together.
type BaseActorRef interface {
	ID() ActorID
}

// TellOnlyRef restricts callers to fire-and-forget messaging.
type TellOnlyRef[M Message] interface {
	BaseActorRef

	// Tell sends msg without waiting for a response.
	Tell(ctx context.Context, msg M)
}

// ActorRef is a full reference supporting both Tell and Ask.
type ActorRef[M Message, R any] interface {
	TellOnlyRef[M]

	// Ask sends msg and returns a Future for the eventual response.
	Ask(ctx context.Context, msg M) Future[R]
}

// ActorConfig configures a new Actor.
type ActorConfig[M Message, R any] struct {
	// Address is this actor's externally visible identity.
	Address ActorAddress

	// Behavior implements the actor's message-handling logic.
	Behavior ActorBehavior[M, R]

	// DLO receives undeliverable messages (mailbox closed or full under
	// a drop policy). May be nil.
	DLO ActorRef[Message, any]

	// MailboxCapacity is the per-priority-level buffer size.
	MailboxCapacity int

	// MailboxPolicy governs backpressure behavior on a full sub-queue.
	MailboxPolicy BackpressurePolicy

	// Wg, if non-nil, is Add(1)'d on Start and Done()'d when the
	// receive loop exits, for deterministic system shutdown.
	Wg *sync.WaitGroup

	// CleanupTimeout bounds OnStop; defaults to 5s if None.
	CleanupTimeout fn.Option[time.Duration]
}

// Actor runs a single ActorBehavior against messages drawn from its
// mailbox, one at a time, in its own goroutine.
type Actor[M Message, R any] struct {
	address ActorAddress

	behavior ActorBehavior[M, R]
	mailbox  *PriorityMailbox[M, R]

	ctx    context.Context
	cancel context.CancelFunc

	dlo ActorRef[Message, any]
	wg  *sync.WaitGroup

	cleanupTimeout time.Duration

	startOnce sync.Once
	stopOnce  sync.Once

	ref ActorRef[M, R]

	done chan struct{}
}

// NewActor constructs an Actor from cfg. Start must be called to begin
// processing.
func NewActor[M Message, R any](cfg ActorConfig[M, R]) *Actor[M, R] {
	ctx, cancel := context.WithCancel(context.Background())

	capacity := cfg.MailboxCapacity
	if capacity <= 0 {
		capacity = 1
	}

	a := &Actor[M, R]{
		address:        cfg.Address,
		behavior:       cfg.Behavior,
		mailbox:        NewPriorityMailbox[M, R](ctx, capacity, cfg.MailboxPolicy),
		ctx:            ctx,
		cancel:         cancel,
		dlo:            cfg.DLO,
		wg:             cfg.Wg,
		cleanupTimeout: cfg.CleanupTimeout.UnwrapOr(5 * time.Second),
		done:           make(chan struct{}),
	}
	a.ref = &actorRefImpl[M, R]{actor: a}

	return a
}

// Start begins the actor's receive loop. Safe to call more than once;
// only the first call has effect.
func (a *Actor[M, R]) Start() {
	a.startOnce.Do(func() {
		log.DebugS(a.ctx, "Starting actor", "actor", a.address.String())

		if a.wg != nil {
			a.wg.Add(1)
		}
		go a.process()
	})
}

func (a *Actor[M, R]) process() {
	if a.wg != nil {
		defer a.wg.Done()
	}

	for env := range a.mailbox.Receive(a.ctx) {
		var processCtx context.Context
		var cancel context.CancelFunc
		if env.promise != nil {
			processCtx, cancel = mergeContexts(a.ctx, env.callerCtx)
		} else {
			processCtx, cancel = a.ctx, func() {}
		}

		log.TraceS(processCtx, "Actor processing message",
			"actor", a.address.String(),
			"msg_type", env.message.MessageType(),
			"is_ask", env.promise != nil)

		result := a.behavior.Receive(processCtx, env.message)
		cancel()

		if env.promise != nil {
			env.promise.Complete(result)
		}
	}

	a.mailbox.Close()

	drained := 0
	for env := range a.mailbox.Drain() {
		drained++

		if a.dlo != nil {
			a.dlo.Tell(context.Background(), env.message)
		}
		completeDrainedAskWithTermination(env)
	}

	if stoppable, ok := a.behavior.(Stoppable); ok {
		cleanupCtx, cancel := context.WithTimeout(
			context.Background(), a.cleanupTimeout,
		)
		defer cancel()

		if err := stoppable.OnStop(cleanupCtx); err != nil {
			log.WarnS(a.ctx, "Actor cleanup error", err,
				"actor", a.address.String())
		}
	}

	log.DebugS(a.ctx, "Actor terminated",
		"actor", a.address.String(), "drained", drained)

	close(a.done)
}

// Stop cancels the actor's context, causing the receive loop to exit,
// the mailbox to close, and any queued messages to drain to the DLO.
func (a *Actor[M, R]) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
	})
}

// Done returns a channel closed once the actor's receive loop has fully
// exited (mailbox drained, OnStop run). Supervisors use this to learn an
// actor's exit is complete rather than polling or racing Stop's
// cancellation with process() still running.
func (a *Actor[M, R]) Done() <-chan struct{} {
	return a.done
}

// Address returns this actor's address.
func (a *Actor[M, R]) Address() ActorAddress {
	return a.address
}

// Ref returns a full ActorRef for this actor.
func (a *Actor[M, R]) Ref() ActorRef[M, R] {
	return a.ref
}

// TellRef returns a Tell-only reference for this actor.
func (a *Actor[M, R]) TellRef() TellOnlyRef[M] {
	return a.ref
}

type actorRefImpl[M Message, R any] struct {
	actor *Actor[M, R]
}

func (ref *actorRefImpl[M, R]) ID() ActorID {
	return ref.actor.address.ID
}

func (ref *actorRefImpl[M, R]) Tell(ctx context.Context, msg M) {
	env := envelope[M, R]{message: msg, callerCtx: ctx}
	ok := ref.actor.mailbox.Send(ctx, env)
	if !ok && (ctx.Err() == nil || ref.actor.ctx.Err() != nil) {
		ref.trySendToDLO(msg)
	}
}

func (ref *actorRefImpl[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	promise := NewPromise[R]()

	if ref.actor.ctx.Err() != nil {
		promise.Complete(fn.Err[R](ErrActorTerminated))
		return promise.Future()
	}

	env := envelope[M, R]{message: msg, promise: promise, callerCtx: ctx}
	ok := ref.actor.mailbox.Send(ctx, env)
	if !ok {
		if ref.actor.ctx.Err() != nil {
			promise.Complete(fn.Err[R](ErrActorTerminated))
		} else {
			err := ctx.Err()
			if err == nil {
				err = ErrActorTerminated
			}
			promise.Complete(fn.Err[R](err))
		}
	}

	return promise.Future()
}

func (ref *actorRefImpl[M, R]) trySendToDLO(msg M) {
	if ref.actor.dlo != nil {
		ref.actor.dlo.Tell(context.Background(), msg)
	}
}
