package poll

import (
	"time"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
)

// EventKind identifies the type of a polling event.
type EventKind int

const (
	EventInfo             EventKind = iota // General informational message
	EventSample                            // Degree read successfully
	EventNotAuthenticated                  // Upstream rejected the credentials
	EventError                             // Any other failed tick
	EventStopped                           // Loop stopped (context cancelled)
)

func (k EventKind) String() string {
	switch k {
	case EventInfo:
		return "info"
	case EventSample:
		return "sample"
	case EventNotAuthenticated:
		return "not-authenticated"
	case EventError:
		return "error"
	case EventStopped:
		return "stopped"
	}
	return "unknown"
}

// State is the loop's authentication state.
type State int

const (
	// StateNormal: the last tick was not rejected for authentication.
	StateNormal State = iota
	// StateSuppressedNotAuthenticated: not-authenticated was already
	// reported and further ones are not logged until a tick succeeds.
	StateSuppressedNotAuthenticated
)

func (s State) String() string {
	if s == StateSuppressedNotAuthenticated {
		return "not-authenticated"
	}
	return "normal"
}

// Event is emitted once per tick (and on start/stop). When Loop.Events is
// set, events are sent there for TUI consumption; hooks receive every event
// synchronously.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	Message   string

	// Room is the directory name of the room the tick sampled.
	Room string

	// Sample fields
	Value    float32
	Recorded bool

	// Failure fields
	ErrKind    fault.Kind
	Suppressed bool // not logged because the same condition was already reported

	// State after the event.
	State State
}
