package actorcore

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrActorTerminated indicates that an operation failed because the target
// actor was terminated or in the process of shutting down.
var ErrActorTerminated = fmt.Errorf("actor terminated")

// ActorID uniquely identifies an actor within a System. It is assigned at
// spawn time and never reused, even after the actor stops.
type ActorID string

// NewActorID generates a fresh, globally unique ActorID.
func NewActorID() ActorID {
	return ActorID(uuid.NewString())
}

// String implements fmt.Stringer.
func (id ActorID) String() string {
	return string(id)
}

// ActorAddress is the externally visible handle to an actor: its identity
// plus the human-assigned path segment used for registry lookups and log
// correlation. Two actors never share an ActorAddress even if one is
// restarted in the place of the other: every spawn mints a new ActorID,
// so an actor started again after a restart gets a fresh address.
type ActorAddress struct {
	// ID is the actor's unique identity.
	ID ActorID

	// Path is the hierarchical name the actor was spawned under, e.g.
	// "/supervisor/worker-pool/worker-3". Paths are used for registry
	// lookups and human-readable logging; they are not guaranteed unique
	// across restarts the way ID is.
	Path string
}

// String implements fmt.Stringer.
func (a ActorAddress) String() string {
	return fmt.Sprintf("%s#%s", a.Path, a.ID)
}

// ComponentID uniquely identifies a loaded WASM component instance. It is
// distinct from ActorID: a component's ComponentID is stable across actor
// restarts performed by its supervisor (the component identity survives a
// crash-restart even though the underlying ComponentActor's ActorID does
// not). Unlike ActorID, a ComponentID is operator/manifest-assigned (a
// human-meaningful name such as "image-resizer"), not generated.
type ComponentID string

// NewComponentID wraps name as a ComponentID. If name is empty, a fresh
// UUID is generated instead so callers that don't care about a
// human-readable identity (tests, anonymous spawns) still get a unique
// one.
func NewComponentID(name string) ComponentID {
	if name == "" {
		return ComponentID(uuid.NewString())
	}
	return ComponentID(name)
}

// String implements fmt.Stringer.
func (id ComponentID) String() string {
	return string(id)
}

// BaseMessage is a helper struct that can be embedded in message types
// defined outside this package to satisfy Message's unexported marker
// method.
type BaseMessage struct{}

// messageMarker implements the unexported method for the Message interface.
func (BaseMessage) messageMarker() {}

// Message is a sealed interface for actor messages. Only types embedding
// BaseMessage (or defined in this package) can satisfy it.
type Message interface {
	messageMarker()

	// MessageType returns the type name of the message for routing,
	// logging, and dead-letter reporting.
	MessageType() string
}

// MessagePriority classifies the urgency of a message for mailbox
// scheduling. Higher priorities preempt lower ones: a mailbox always
// offers the highest non-empty priority sub-queue to the actor's receive
// loop before considering a lower one.
type MessagePriority int

const (
	// PriorityLow is for best-effort, deferrable traffic (e.g. periodic
	// health pings).
	PriorityLow MessagePriority = iota

	// PriorityNormal is the default priority for ordinary application
	// messages.
	PriorityNormal

	// PriorityHigh is for messages that should jump ahead of routine
	// traffic (e.g. a capability revocation).
	PriorityHigh

	// PriorityCritical is for messages that must be handled before
	// anything else queued for the actor (e.g. a supervisor-issued
	// Shutdown).
	PriorityCritical
)

// String implements fmt.Stringer.
func (p MessagePriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// PriorityMessage is an extension of Message for messages that carry an
// explicit priority. Messages that don't implement this interface are
// treated as PriorityNormal.
type PriorityMessage interface {
	Message

	// Priority returns the processing priority of this message.
	Priority() MessagePriority
}

// priorityOf returns msg's declared priority, defaulting to PriorityNormal
// for messages that don't implement PriorityMessage.
func priorityOf(msg Message) MessagePriority {
	if pm, ok := msg.(PriorityMessage); ok {
		return pm.Priority()
	}

	return PriorityNormal
}
