package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/engine"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/poll"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/tui/components"
)

// maxLogLines bounds the scrollback kept by the event log.
const maxLogLines = 2000

// Model is the bubbletea model for the recorder dashboard.
type Model struct {
	events <-chan poll.Event
	theme  Theme
	log    components.EventLog

	width  int
	height int

	room       string
	value      float32
	hasValue   bool
	lastSample time.Time
	state      poll.State
	failures   int
	now        time.Time
	done       bool
}

// New creates a dashboard that consumes events from the given channel and
// starts from the engine's current status.
func New(events <-chan poll.Event, accentColor string, status engine.Status) Model {
	m := Model{
		events:   events,
		theme:    NewTheme(accentColor),
		width:    80,
		height:   24,
		room:     status.Room.DirName(),
		value:    status.LastValue,
		hasValue: status.HasValue,
		now:      time.Now(),
	}
	m.log = components.NewEventLog(m.width, m.logHeight(), maxLogLines)
	return m
}

// Init starts listening for events and the clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), tick())
}

// Done reports whether the event stream has ended.
func (m Model) Done() bool { return m.done }

// logHeight is the space left between the header and footer bars.
func (m Model) logHeight() int {
	h := m.height - 2
	if h < 1 {
		h = 1
	}
	return h
}

// waitForEvent returns a command that blocks on the event channel.
func waitForEvent(ch <-chan poll.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
