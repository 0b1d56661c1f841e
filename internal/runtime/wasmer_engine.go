package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
)

// wasmerHandle wraps a compiled module and a single instance of it.
// wasmer-go modules are safe to instantiate repeatedly and cheap to
// clone (they wrap a reference-counted Rust object underneath); this
// host keeps exactly one live instance per handle, matching the spec's
// "one ComponentHandle per running component" model rather than
// pooling instances.
type wasmerHandle struct {
	id       actorcore.ComponentID
	module   *wasmer.Module
	instance *wasmer.Instance
	store    *wasmer.Store

	memBytes  atomic.Uint64
	fuelSpent atomic.Uint64
	execMs    atomic.Uint64
}

func (h *wasmerHandle) ComponentID() actorcore.ComponentID { return h.id }
func (h *wasmerHandle) isComponentHandle()                 {}

// WasmerEngine is the production Engine backed by wasmer-go. Each engine
// instance owns its own wasmer.Engine/Store pair; handles loaded through
// it are not portable to a different WasmerEngine.
//
// wasmer-go v1 has no fuel-metering hook (that is a wasmtime-specific
// feature); ExecutionContext.Limits.MaxFuel is checked against wall-clock
// execution time as the fuel proxy (one "fuel unit" per microsecond of
// wall time). The check runs only after the exported function returns:
// an over-budget call reports ErrResourceLimitExceeded, but a running
// call is not interrupted by it. Only the TimeoutMs deadline ends the
// wait for a running call, and the call itself keeps running after that.
type WasmerEngine struct {
	mu     sync.Mutex
	engine *wasmer.Engine
}

// NewWasmerEngine constructs a WasmerEngine with a fresh wasmer.Engine.
func NewWasmerEngine() *WasmerEngine {
	return &WasmerEngine{engine: wasmer.NewEngine()}
}

// LoadComponent implements Engine.
func (e *WasmerEngine) LoadComponent(id actorcore.ComponentID, bytes []byte) (ComponentHandle, error) {
	store := wasmer.NewStore(e.engine)

	module, err := wasmer.NewModule(store, bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComponentLoadFailed, err)
	}

	importObject := wasmer.NewImportObject()
	instance, err := wasmer.NewInstance(module, importObject)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComponentLoadFailed, err)
	}

	h := &wasmerHandle{id: id, module: module, instance: instance, store: store}

	if mem, err := instance.Exports.GetMemory("memory"); err == nil {
		h.memBytes.Store(uint64(len(mem.Data())))
	}

	return h, nil
}

// Execute implements Engine. function must be exported with a signature
// of (ptr i32, len i32) -> i64, where the returned i64 packs a result
// pointer/length pair as (ptr<<32 | len) into the component's own linear
// memory; this is the same convention componentActor's codec layer
// expects when it writes the decoded multicodec payload into memory
// before calling.
func (e *WasmerEngine) Execute(
	ctx context.Context, handle ComponentHandle, function string,
	input []byte, execCtx ExecutionContext,
) (ComponentOutput, error) {
	h, ok := handle.(*wasmerHandle)
	if !ok {
		return nil, ErrNotLoaded
	}

	fn, err := h.instance.Exports.GetFunction(function)
	if err != nil {
		return nil, fmt.Errorf("%w: export %q not found: %v", ErrExecutionFailed, function, err)
	}

	mem, err := h.instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, fmt.Errorf("%w: no exported memory: %v", ErrExecutionFailed, err)
	}

	ptr, err := writeToMemory(h.instance, mem, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	start := time.Now()
	resultCh := make(chan struct {
		packed int64
		err    error
	}, 1)

	go func() {
		packed, callErr := fn(ptr, len(input))
		if callErr != nil {
			resultCh <- struct {
				packed int64
				err    error
			}{0, callErr}
			return
		}
		v, _ := packed.(int64)
		resultCh <- struct {
			packed int64
			err    error
		}{v, nil}
	}()

	deadline := execCtx.Deadline(start)
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ErrCanceled

	case <-timer.C:
		return nil, ErrExecutionTimeout

	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTrapped, res.err)
		}

		elapsed := time.Since(start)
		h.execMs.Add(uint64(elapsed.Milliseconds()))

		fuel := uint64(elapsed.Microseconds())
		h.fuelSpent.Add(fuel)
		if execCtx.Limits.MaxFuel != 0 && fuel > execCtx.Limits.MaxFuel {
			return nil, ErrResourceLimitExceeded
		}

		resultPtr := int32(res.packed >> 32)
		resultLen := int32(res.packed & 0xffffffff)
		return readFromMemory(mem, resultPtr, resultLen)
	}
}

// ResourceUsage implements Engine.
func (e *WasmerEngine) ResourceUsage(handle ComponentHandle) (Usage, error) {
	h, ok := handle.(*wasmerHandle)
	if !ok {
		return Usage{}, ErrNotLoaded
	}

	return Usage{
		MemoryBytes:     h.memBytes.Load(),
		FuelConsumed:    h.fuelSpent.Load(),
		ExecutionTimeMs: h.execMs.Load(),
	}, nil
}

// Unload implements Engine.
func (e *WasmerEngine) Unload(handle ComponentHandle) error {
	h, ok := handle.(*wasmerHandle)
	if !ok {
		return ErrNotLoaded
	}

	h.instance.Close()
	h.module.Close()
	h.store.Close()
	return nil
}

// writeToMemory grows mem if needed and copies data into it starting at
// the end of whatever the component has already claimed, returning the
// offset written to. Components that manage their own allocator would
// normally export an "alloc" function instead; this host falls back to
// appending at the current data length when no allocator is exported,
// which is sufficient for single-shot invoke/response calls.
func writeToMemory(instance *wasmer.Instance, mem *wasmer.Memory, data []byte) (int32, error) {
	if alloc, err := instance.Exports.GetFunction("alloc"); err == nil {
		res, err := alloc(len(data))
		if err != nil {
			return 0, err
		}
		ptr, _ := res.(int32)
		copy(mem.Data()[ptr:], data)
		return ptr, nil
	}

	raw := mem.Data()
	offset := len(raw) - len(data)
	if offset < 0 {
		return 0, fmt.Errorf("component memory too small for %d-byte input", len(data))
	}
	copy(raw[offset:], data)
	return int32(offset), nil
}

func readFromMemory(mem *wasmer.Memory, ptr, length int32) (ComponentOutput, error) {
	raw := mem.Data()
	if int(ptr) < 0 || int(ptr)+int(length) > len(raw) {
		return nil, fmt.Errorf("result pointer/length out of bounds")
	}

	out := make([]byte, length)
	copy(out, raw[ptr:ptr+length])
	return out, nil
}
