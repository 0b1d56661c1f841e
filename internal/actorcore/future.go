package actorcore

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Future represents the result of an asynchronous computation. Consumers
// can block for the result (Await), transform it (ThenApply), or register
// a callback for when it arrives (OnComplete).
type Future[T any] interface {
	// Await blocks until the result is available or ctx is cancelled.
	Await(ctx context.Context) fn.Result[T]

	// ThenApply returns a new Future whose result is fn applied to this
	// Future's result. If ctx is cancelled first, the new Future
	// completes with ctx's error.
	ThenApply(ctx context.Context, fn func(T) T) Future[T]

	// OnComplete registers fn to run when the result is ready, or when
	// ctx is cancelled (with a context error result), whichever is
	// first.
	OnComplete(ctx context.Context, fn func(fn.Result[T]))
}

// Promise is the write side of a Future. The actor runtime completes a
// Promise exactly once per "ask" operation.
type Promise[T any] interface {
	// Future returns the read side of this Promise.
	Future() Future[T]

	// Complete sets the result. Returns true if this call was the first
	// to complete the Promise, false if it was already completed.
	Complete(result fn.Result[T]) bool
}

// promiseImpl is a channel-backed Promise/Future pair. The done channel is
// closed exactly once, by whichever Complete call wins the race (guarded
// by once), after storing the result so every Await/OnComplete observer
// sees a consistent value.
type promiseImpl[T any] struct {
	once   sync.Once
	done   chan struct{}
	result fn.Result[T]
}

// NewPromise creates an incomplete Promise.
func NewPromise[T any]() Promise[T] {
	return &promiseImpl[T]{
		done: make(chan struct{}),
	}
}

func (p *promiseImpl[T]) Future() Future[T] {
	return p
}

func (p *promiseImpl[T]) Complete(result fn.Result[T]) bool {
	completed := false
	p.once.Do(func() {
		p.result = result
		close(p.done)
		completed = true
	})

	return completed
}

func (p *promiseImpl[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-p.done:
		return p.result
	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

func (p *promiseImpl[T]) ThenApply(
	ctx context.Context, apply func(T) T,
) Future[T] {

	derived := NewPromise[T]()

	go func() {
		result := p.Await(ctx)

		val, err := result.Unpack()
		if err != nil {
			derived.Complete(fn.Err[T](err))
			return
		}

		derived.Complete(fn.Ok(apply(val)))
	}()

	return derived.Future()
}

func (p *promiseImpl[T]) OnComplete(ctx context.Context, fn func(fn.Result[T])) {
	go func() {
		fn(p.Await(ctx))
	}()
}
