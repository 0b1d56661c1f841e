package lifecycle

import (
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
)

// ErrAlreadyRegistered is returned by Registry.Register when componentID
// already has an FSM.
var ErrAlreadyRegistered = fmt.Errorf("lifecycle: component already registered")

// ErrNotRegistered is returned by Registry.Get when componentID has no
// FSM.
var ErrNotRegistered = fmt.Errorf("lifecycle: component not registered")

// Registry is the management registry that owns every installed
// component's lifecycle FSM, external to the actor-mailbox hot path.
type Registry struct {
	mu   sync.RWMutex
	fsms map[actorcore.ComponentID]*FSM
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{fsms: make(map[actorcore.ComponentID]*FSM)}
}

// Register creates and stores a new FSM for componentID in the
// Uninstalled state.
func (r *Registry) Register(componentID actorcore.ComponentID) (*FSM, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.fsms[componentID]; exists {
		return nil, ErrAlreadyRegistered
	}

	f := New(componentID)
	r.fsms[componentID] = f

	return f, nil
}

// Get returns the FSM for componentID.
func (r *Registry) Get(componentID actorcore.ComponentID) (*FSM, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fsms[componentID]
	if !ok {
		return nil, ErrNotRegistered
	}

	return f, nil
}

// Forget removes componentID's FSM entirely. Callers should only do this
// after the FSM has reached Uninstalled.
func (r *Registry) Forget(componentID actorcore.ComponentID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.fsms, componentID)
}

// List returns every registered FSM's current state, keyed by component
// ID.
func (r *Registry) List() map[actorcore.ComponentID]State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[actorcore.ComponentID]State, len(r.fsms))
	for id, f := range r.fsms {
		out[id] = f.State()
	}

	return out
}

// auditEntry is the YAML-serializable projection of one FSM's history,
// mirroring the reviewer's YAML frontmatter convention for persisted
// structured data.
type auditEntry struct {
	ComponentID string        `yaml:"component_id"`
	State       string        `yaml:"state"`
	Transitions []auditRecord `yaml:"transitions"`
}

type auditRecord struct {
	From  string    `yaml:"from"`
	To    string    `yaml:"to"`
	Event string    `yaml:"event"`
	At    time.Time `yaml:"at"`
}

// DumpAudit writes every registered component's transition history to w
// as YAML. This is an optional diagnostic export; the registry's
// authoritative state lives in the in-memory FSMs, not in this dump.
func (r *Registry) DumpAudit(w io.Writer) error {
	r.mu.RLock()
	entries := make([]auditEntry, 0, len(r.fsms))
	for id, f := range r.fsms {
		records := f.History()
		out := make([]auditRecord, len(records))
		for i, rec := range records {
			out[i] = auditRecord{
				From:  rec.From.String(),
				To:    rec.To.String(),
				Event: rec.Event,
				At:    rec.At,
			}
		}

		entries = append(entries, auditEntry{
			ComponentID: id.String(),
			State:       f.State().String(),
			Transitions: out,
		})
	}
	r.mu.RUnlock()

	enc := yaml.NewEncoder(w)
	defer enc.Close()

	return enc.Encode(entries)
}
