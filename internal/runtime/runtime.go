// Package runtime defines the WASM component host's engine abstraction
// (spec C14): the core never talks to a concrete WASM engine directly, it
// talks to the RuntimeEngine interface, so the engine implementation
// (wasmer-backed or a no-op test double) is swappable without touching
// ComponentActor or the spawner.
package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
)

// Execution-path errors. These are the sentinel set the component actor
// maps onto ComponentOutput/error replies; engines return one of these
// (or wrap one with errors.Join/fmt.Errorf %w) rather than inventing
// ad-hoc error strings, so callers can branch with errors.Is.
var (
	ErrComponentLoadFailed   = errors.New("runtime: component load failed")
	ErrExecutionFailed       = errors.New("runtime: execution failed")
	ErrTrapped               = errors.New("runtime: component trapped")
	ErrExecutionTimeout      = errors.New("runtime: execution timed out")
	ErrResourceLimitExceeded = errors.New("runtime: resource limit exceeded")
	ErrCanceled              = errors.New("runtime: execution canceled")
	ErrNotLoaded             = errors.New("runtime: component not loaded")
)

// ComponentHandle is an opaque, cheaply-cloneable reference to a compiled
// component. Only a RuntimeEngine implementation may produce one; its
// concrete type is engine-specific and unexported so nothing outside the
// engine package can depend on how a particular engine represents a
// compiled module.
type ComponentHandle interface {
	// ComponentID is the id the handle was loaded under, kept on the
	// handle itself so callers never need a side table to go from
	// handle back to id.
	ComponentID() actorcore.ComponentID

	isComponentHandle()
}

// ResourceLimits bounds a single execute call. Both engines enforce
// MaxFuel, surfacing ErrResourceLimitExceeded; the timeout error
// (ErrExecutionTimeout) comes from ExecutionContext.TimeoutMs. Neither
// engine checks MaxMemoryBytes or MaxExecutionMs.
type ResourceLimits struct {
	MaxMemoryBytes uint64
	MaxFuel        uint64
	MaxExecutionMs uint64
}

// ExecutionContext carries the limits and deadline for one Execute call.
type ExecutionContext struct {
	Limits    ResourceLimits
	TimeoutMs uint64
}

// Deadline returns the point in time after which Execute must be treated
// as timed out, relative to start.
func (c ExecutionContext) Deadline(start time.Time) time.Time {
	if c.TimeoutMs == 0 {
		return start.Add(24 * time.Hour) // effectively unbounded
	}
	return start.Add(time.Duration(c.TimeoutMs) * time.Millisecond)
}

// ComponentOutput is the raw (still codec-encoded) result of a function
// call; the component actor is responsible for decoding/encoding with the
// multicodec prefix, the engine only moves bytes.
type ComponentOutput []byte

// Usage reports a handle's cumulative resource consumption since load.
type Usage struct {
	MemoryBytes     uint64
	FuelConsumed    uint64
	ExecutionTimeMs uint64
}

// Engine abstracts over the underlying WASM engine with the three
// operations the core needs (spec §4.7). Compilation (LoadComponent) must
// be deterministic: identical bytes produce equivalent handles.
type Engine interface {
	// LoadComponent compiles bytes into a ComponentHandle. Returns
	// ErrComponentLoadFailed (wrapped with detail) on malformed input.
	LoadComponent(id actorcore.ComponentID, bytes []byte) (ComponentHandle, error)

	// Execute calls function on the component behind handle with input
	// as its argument, bounded by execCtx's limits and deadline, and
	// cooperatively cancellable via ctx.
	Execute(
		ctx context.Context, handle ComponentHandle, function string,
		input []byte, execCtx ExecutionContext,
	) (ComponentOutput, error)

	// ResourceUsage reports handle's cumulative usage.
	ResourceUsage(handle ComponentHandle) (Usage, error)

	// Unload releases engine-side resources for handle. Idempotent.
	Unload(handle ComponentHandle) error
}
