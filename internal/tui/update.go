package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/poll"
)

// Update handles incoming messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.log = m.log.Resize(m.width, m.logHeight())
		return m, nil

	case eventMsg:
		return m.handleEvent(poll.Event(msg))

	case eventsClosedMsg:
		m.done = true
		return m, tea.Quit

	case tickMsg:
		m.now = time.Time(msg)
		return m, tick()
	}

	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "f":
		m.log = m.log.SetPaused(!m.log.Paused())
		return m, nil
	}
	var cmd tea.Cmd
	m.log, cmd = m.log.Update(msg)
	return m, cmd
}

func (m Model) handleEvent(ev poll.Event) (tea.Model, tea.Cmd) {
	if ev.Room != "" {
		m.room = ev.Room
	}
	m.state = ev.State
	switch ev.Kind {
	case poll.EventSample:
		m.value, m.hasValue = ev.Value, true
		m.lastSample = ev.Timestamp
		m.failures = 0
	case poll.EventNotAuthenticated, poll.EventError:
		m.failures++
	}

	if !ev.Suppressed {
		m.log = m.log.Append(m.theme.RenderEvent(ev, m.width))
	}
	return m, waitForEvent(m.events)
}
