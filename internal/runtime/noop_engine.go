package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
)

// noopHandle is the NoopEngine's ComponentHandle: it keeps the raw bytes
// around (for an echo-style Execute) instead of compiling anything.
type noopHandle struct {
	id    actorcore.ComponentID
	bytes []byte
}

func (h *noopHandle) ComponentID() actorcore.ComponentID { return h.id }
func (h *noopHandle) isComponentHandle()                 {}

// NoopEngine is a RuntimeEngine test double with no cgo dependency: it
// "loads" by storing the bytes unchanged and "executes" by echoing the
// input back as output, charging one unit of fuel per byte of
// input so resource-limit tests have something to exceed. It exists so
// internal/component's tests (and any caller that wants a component host
// without a real WASM toolchain on PATH) can exercise the full actor/
// registry/capability wiring without linking wasmer-go.
type NoopEngine struct {
	mu    sync.Mutex
	usage map[actorcore.ComponentID]Usage
}

// NewNoopEngine constructs an empty NoopEngine.
func NewNoopEngine() *NoopEngine {
	return &NoopEngine{usage: make(map[actorcore.ComponentID]Usage)}
}

// LoadComponent implements Engine.
func (e *NoopEngine) LoadComponent(id actorcore.ComponentID, bytes []byte) (ComponentHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.usage[id] = Usage{MemoryBytes: uint64(len(bytes))}
	return &noopHandle{id: id, bytes: bytes}, nil
}

// Execute implements Engine. It ignores function entirely (there is
// nothing to dispatch to) and returns input unchanged, subject to the
// execCtx's timeout and fuel limits.
func (e *NoopEngine) Execute(
	ctx context.Context, handle ComponentHandle, function string,
	input []byte, execCtx ExecutionContext,
) (ComponentOutput, error) {
	h, ok := handle.(*noopHandle)
	if !ok {
		return nil, ErrNotLoaded
	}

	start := time.Now()
	fuel := uint64(len(input))
	if execCtx.Limits.MaxFuel != 0 && fuel > execCtx.Limits.MaxFuel {
		return nil, ErrResourceLimitExceeded
	}

	deadline := execCtx.Deadline(start)
	select {
	case <-ctx.Done():
		return nil, ErrCanceled
	default:
	}
	if time.Now().After(deadline) {
		return nil, ErrExecutionTimeout
	}

	e.mu.Lock()
	u := e.usage[h.id]
	u.FuelConsumed += fuel
	u.ExecutionTimeMs += uint64(time.Since(start).Milliseconds())
	e.usage[h.id] = u
	e.mu.Unlock()

	return ComponentOutput(input), nil
}

// ResourceUsage implements Engine.
func (e *NoopEngine) ResourceUsage(handle ComponentHandle) (Usage, error) {
	h, ok := handle.(*noopHandle)
	if !ok {
		return Usage{}, ErrNotLoaded
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usage[h.id], nil
}

// Unload implements Engine.
func (e *NoopEngine) Unload(handle ComponentHandle) error {
	h, ok := handle.(*noopHandle)
	if !ok {
		return ErrNotLoaded
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.usage, h.id)
	return nil
}
