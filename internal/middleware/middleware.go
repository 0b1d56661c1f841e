// Package middleware implements the ordered operation pipeline (spec
// §4.8): every operation a component or the host performs passes through
// a priority-ordered chain of Middleware, each able to inspect or veto it
// before execution, observe it while in flight, react to its result, and
// decide whether a failure is worth retrying.
package middleware

import (
	"context"
	"sort"
	"time"

	"github.com/roasbeef/substrate-rt/internal/capability"
	"github.com/roasbeef/substrate-rt/internal/rterrors"
)

// Operation describes the unit of work flowing through a Pipeline: a
// name for logging/metrics, the resource it touches, and the capability
// kind+action a SecurityPolicy-flavored Middleware would check against.
// It carries no payload of its own — the actual work is the exec func
// passed to Execute.
type Operation struct {
	Name     string
	Resource string
	Kind     capability.Kind
	Action   capability.Action
}

// Middleware is one link in the pipeline. Every hook receives the
// Operation plus whatever state is relevant at that point; before_execution
// can veto by returning an error, during_execution observes without
// being able to alter outcome, after_execution reacts to a completed
// (possibly failed) operation, and handle_error gets the final say on
// retry before Execute gives up.
//
// A Middleware implementation that only cares about some hooks should
// embed NoopMiddleware and override what it needs.
type Middleware interface {
	// Name identifies this middleware for logging and Pipeline.Remove.
	Name() string

	// Enabled reports whether this middleware's hooks should run at
	// all; a disabled middleware is skipped entirely, as if absent.
	Enabled() bool

	// Priority orders this middleware relative to its siblings; lower
	// runs earlier for before_execution/during_execution, and later
	// (reverse order) for after_execution/handle_error, matching the
	// onion-layering a reader expects from "lower number = earlier".
	Priority() int

	// BeforeExecution runs prior to exec; returning an error aborts the
	// operation without ever calling exec.
	BeforeExecution(ctx context.Context, op Operation) error

	// DuringExecution runs concurrently with exec's observation window
	// (called once, right before exec, for middleware that wants to
	// start a timer, emit a metric, or otherwise instrument the call —
	// it cannot alter or delay exec itself).
	DuringExecution(ctx context.Context, op Operation)

	// AfterExecution runs once exec has returned, successfully or not.
	AfterExecution(ctx context.Context, op Operation, err error)

	// HandleError runs only when exec (or a prior BeforeExecution hook)
	// returned a non-nil error; it returns the error the pipeline should
	// report to the caller, letting middleware annotate or reclassify
	// it. Returning nil swallows the error: the remaining HandleError
	// hooks are skipped and the attempt counts as a success. Otherwise
	// Execute's retry loop decides whether to try again based on
	// rterrors.CategoryOf(err) applied to HandleError's return value.
	HandleError(ctx context.Context, op Operation, err error) error
}

// NoopMiddleware is embeddable by implementations that only override a
// subset of Middleware's hooks.
type NoopMiddleware struct{}

func (NoopMiddleware) BeforeExecution(context.Context, Operation) error { return nil }
func (NoopMiddleware) DuringExecution(context.Context, Operation)       {}
func (NoopMiddleware) AfterExecution(context.Context, Operation, error) {}
func (NoopMiddleware) HandleError(_ context.Context, _ Operation, err error) error {
	return err
}

// RetryPolicy bounds how many times Execute retries a NonFatal or
// Timeout failure, and how long it waits between attempts.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first;
	// 1 means no retry.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// DefaultRetryPolicy retries twice more (3 attempts total) with a 50ms
// delay, the shape used for the storage and broker dependencies that are
// the pipeline's main source of transient NonFatal errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 50 * time.Millisecond}
}

// Pipeline is an ordered, mutable collection of Middleware that Execute
// runs every Operation through.
type Pipeline struct {
	middlewares []Middleware
	retry       RetryPolicy
}

// NewPipeline constructs an empty Pipeline with the given retry policy.
func NewPipeline(retry RetryPolicy) *Pipeline {
	return &Pipeline{retry: retry}
}

// Use appends m to the pipeline and re-sorts by Priority (ties broken by
// insertion order, via a stable sort).
func (p *Pipeline) Use(m Middleware) {
	p.middlewares = append(p.middlewares, m)
	sort.SliceStable(p.middlewares, func(i, j int) bool {
		return p.middlewares[i].Priority() < p.middlewares[j].Priority()
	})
}

// Remove drops the middleware registered under name, if present.
func (p *Pipeline) Remove(name string) {
	kept := p.middlewares[:0]
	for _, m := range p.middlewares {
		if m.Name() != name {
			kept = append(kept, m)
		}
	}
	p.middlewares = kept
}

// enabled returns the subset of p.middlewares currently enabled, in
// pipeline order.
func (p *Pipeline) enabled() []Middleware {
	out := make([]Middleware, 0, len(p.middlewares))
	for _, m := range p.middlewares {
		if m.Enabled() {
			out = append(out, m)
		}
	}
	return out
}

// Execute runs op through p's enabled middleware and exec, retrying exec
// per p's RetryPolicy when the error that survives HandleError is
// categorized NonFatal or Timeout. SecurityViolation and any other
// category stop the pipeline immediately, never retried, per spec §7's
// "security violations are always fatal to the current operation".
//
// R is a type parameter on the function, not a method, because Go
// doesn't allow generic methods — Pipeline itself stays a plain,
// non-generic type so one Pipeline can run operations with different
// result types.
func Execute[R any](
	ctx context.Context, p *Pipeline, op Operation, exec func(context.Context) (R, error),
) (R, error) {

	chain := p.enabled()

	var attempt int
	for {
		attempt++

		result, err := runOnce(ctx, chain, op, exec)
		if err == nil {
			return result, nil
		}

		category := rterrors.CategoryOf(err)
		if category != rterrors.NonFatal && category != rterrors.Timeout {
			return result, err
		}

		if attempt >= p.retry.MaxAttempts {
			return result, err
		}

		log.DebugS(ctx, "middleware: retrying operation",
			"operation", op.Name, "attempt", attempt, "category", category.String())

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(p.retry.Delay):
		}
	}
}

// runOnce drives a single attempt: before_execution in ascending
// priority order (any veto short-circuits), during_execution, exec
// itself, then after_execution and handle_error in descending priority
// order (the reverse, onion-unwinding order a reader expects from
// middleware stacks).
func runOnce[R any](
	ctx context.Context, chain []Middleware, op Operation, exec func(context.Context) (R, error),
) (R, error) {

	var zero R

	for _, m := range chain {
		if err := m.BeforeExecution(ctx, op); err != nil {
			return zero, unwindError(ctx, chain, op, err)
		}
	}

	for _, m := range chain {
		m.DuringExecution(ctx, op)
	}

	result, err := exec(ctx)

	for i := len(chain) - 1; i >= 0; i-- {
		chain[i].AfterExecution(ctx, op, err)
	}

	if err != nil {
		return result, unwindError(ctx, chain, op, err)
	}

	return result, nil
}

// unwindError runs handle_error across the chain in descending priority
// order, letting each middleware annotate, reclassify, or swallow it.
// Each hook sees the previous hook's return; the first middleware that
// swallows the error (returns nil) ends the unwinding, and the pipeline
// reports success-with-nil-error, which is
// the explicit "this middleware decided the failure doesn't matter"
// escape hatch.
func unwindError(ctx context.Context, chain []Middleware, op Operation, err error) error {
	for i := len(chain) - 1; i >= 0; i-- {
		err = chain[i].HandleError(ctx, op, err)
		if err == nil {
			return nil
		}
	}
	return err
}
