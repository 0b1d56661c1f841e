package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/roasbeef/substrate-rt/internal/actorcore"
)

// Event is a sealed interface for transitions fed into (*FSM).ProcessEvent.
type Event interface{ lifecycleEventMarker() }

type baseEvent struct{}

func (baseEvent) lifecycleEventMarker() {}

// InstallRequestedEvent begins fetching and validating src.
type InstallRequestedEvent struct {
	baseEvent
	Source InstallationSource
}

// InstalledEvent reports a completed, validated installation.
type InstalledEvent struct {
	baseEvent
	Version VersionInfo
}

// StartRequestedEvent begins the component actor's start-up sequence.
type StartRequestedEvent struct{ baseEvent }

// StartedEvent reports the component actor is live.
type StartedEvent struct{ baseEvent }

// UpdateRequestedEvent begins replacing the installed version.
type UpdateRequestedEvent struct {
	baseEvent
	Strategy   UpdateStrategy
	NewVersion VersionInfo
}

// UpdatedEvent reports a completed update, returning to Running.
type UpdatedEvent struct{ baseEvent }

// StopRequestedEvent begins shutting the component actor down.
type StopRequestedEvent struct{ baseEvent }

// StoppedEvent reports the component actor has exited.
type StoppedEvent struct{ baseEvent }

// FailedEvent reports an unrecoverable error during install, start, or
// update.
type FailedEvent struct {
	baseEvent
	Reason string
}

// UninstallRequestedEvent moves an Installed, Stopped or Failed
// installation to Uninstalled; Registry.Forget drops the record itself.
type UninstallRequestedEvent struct{ baseEvent }

// ErrInvalidTransition is returned when an event does not apply to the
// FSM's current state.
var ErrInvalidTransition = fmt.Errorf("lifecycle: invalid state transition")

// Record is one audit entry: the state transition and the event that
// caused it.
type Record struct {
	From  State
	To    State
	Event string
	At    time.Time
}

// FSM tracks one component's install-level state machine. Transitions
// are validated against the current state, mirroring
// supervisor.ChildHandle's precondition-checked event processing, and
// every transition is appended to an audit history.
type FSM struct {
	mu sync.Mutex

	componentID actorcore.ComponentID

	state   State
	version VersionInfo
	history []Record
}

// New creates an FSM for componentID in the Uninstalled state.
func New(componentID actorcore.ComponentID) *FSM {
	return &FSM{componentID: componentID, state: Uninstalled}
}

// ComponentID returns the component this FSM tracks.
func (f *FSM) ComponentID() actorcore.ComponentID {
	return f.componentID
}

// State returns the current lifecycle state.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

// Version returns the VersionInfo set by the most recent InstalledEvent
// or UpdateRequestedEvent.
func (f *FSM) Version() VersionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.version
}

// History returns a copy of the recorded transitions, oldest first.
func (f *FSM) History() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Record, len(f.history))
	copy(out, f.history)

	return out
}

// ProcessEvent validates and applies ev against the FSM's current state,
// recording the transition. Invalid transitions leave the state unchanged
// and return ErrInvalidTransition.
func (f *FSM) ProcessEvent(ev Event, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := f.state
	to, ok := f.nextState(from, ev)
	if !ok {
		return fmt.Errorf("%w: %T from %s", ErrInvalidTransition, ev, from)
	}

	if installed, ok := ev.(InstalledEvent); ok {
		f.version = installed.Version
	}
	if updated, ok := ev.(UpdateRequestedEvent); ok {
		f.version = updated.NewVersion
	}

	f.state = to
	f.history = append(f.history, Record{
		From:  from,
		To:    to,
		Event: fmt.Sprintf("%T", ev),
		At:    now,
	})

	return nil
}

func (f *FSM) nextState(from State, ev Event) (State, bool) {
	switch ev.(type) {
	case InstallRequestedEvent:
		if from == Uninstalled {
			return Installing, true
		}

	case InstalledEvent:
		if from == Installing {
			return Installed, true
		}

	case StartRequestedEvent:
		if from == Installed || from == Stopped {
			return Starting, true
		}

	case StartedEvent:
		if from == Starting {
			return Running, true
		}

	case UpdateRequestedEvent:
		if from == Running {
			return Updating, true
		}

	case UpdatedEvent:
		if from == Updating {
			return Running, true
		}

	case StopRequestedEvent:
		if from == Running || from == Updating {
			return Stopping, true
		}

	case StoppedEvent:
		if from == Stopping {
			return Stopped, true
		}

	case FailedEvent:
		switch from {
		case Installing, Starting, Updating:
			return Failed, true
		}

	case UninstallRequestedEvent:
		switch from {
		case Stopped, Failed, Installed:
			return Uninstalled, true
		}
	}

	return from, false
}
