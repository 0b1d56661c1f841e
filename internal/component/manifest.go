package component

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/roasbeef/substrate-rt/internal/runtime"
)

// Manifest describes a component's installable metadata: identity,
// resource limits, and the capability grants it declares it needs (the
// spawner cross-checks these declared wants against what an operator
// actually grants before spawning — declaring a want is not the same as
// receiving the grant).
type Manifest struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`

	MaxMemoryBytes uint64 `toml:"max_memory_bytes"`
	MaxFuel        uint64 `toml:"max_fuel"`
	MaxExecutionMs uint64 `toml:"max_execution_ms"`
	TimeoutMs      uint64 `toml:"timeout_ms"`

	// WantsCapabilities lists the capability patterns, in
	// "kind:pattern:action" form (e.g. "filesystem:/data/*.json:read"),
	// the component declares it needs. Purely informational to the
	// spawner's validation step; actual enforcement always uses the
	// grants passed to NewActor, never this list.
	WantsCapabilities []string `toml:"wants_capabilities"`
}

// ParseManifest decodes TOML manifest bytes (spec's "TOML manifest
// parsing" is explicitly an external collaborator's concern — this is the
// thin decode step the spawner calls before validation).
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return Manifest{}, fmt.Errorf("component: invalid manifest: %w", err)
	}

	if m.Name == "" {
		return Manifest{}, fmt.Errorf("component: manifest missing required name")
	}

	return m, nil
}

// executionContext builds the runtime.ExecutionContext every engine call
// for this component is bounded by.
func (m Manifest) executionContext() runtime.ExecutionContext {
	return runtime.ExecutionContext{
		Limits: runtime.ResourceLimits{
			MaxMemoryBytes: m.MaxMemoryBytes,
			MaxFuel:        m.MaxFuel,
			MaxExecutionMs: m.MaxExecutionMs,
		},
		TimeoutMs: m.TimeoutMs,
	}
}
