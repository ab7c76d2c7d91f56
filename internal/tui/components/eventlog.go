// Package components holds reusable bubbletea widgets.
package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// EventLog is a scrollback of pre-rendered lines on top of a bubbles
// viewport. It keeps at most limit lines and sticks to the newest one until
// the user scrolls away. Lines that arrive while paused are counted so the
// dashboard can show how far behind the view is.
type EventLog struct {
	vp     viewport.Model
	lines  []string
	limit  int // 0 keeps everything
	paused bool
	unseen int
}

// NewEventLog returns an empty, following log of the given size.
func NewEventLog(width, height, limit int) EventLog {
	return EventLog{vp: viewport.New(width, height), limit: limit}
}

// Append adds one line, dropping the oldest past the limit.
func (l EventLog) Append(line string) EventLog {
	l.lines = append(l.lines, line)
	if l.limit > 0 && len(l.lines) > l.limit {
		l.lines = append([]string(nil), l.lines[len(l.lines)-l.limit:]...)
	}
	if l.paused {
		l.unseen++
	}
	l.vp.SetContent(strings.Join(l.lines, "\n"))
	if !l.paused {
		l.vp.GotoBottom()
	}
	return l
}

// Len is the number of lines held.
func (l EventLog) Len() int { return len(l.lines) }

// Paused reports whether the view has stopped following new lines.
func (l EventLog) Paused() bool { return l.paused }

// Unseen is the number of lines appended since the view was paused.
func (l EventLog) Unseen() int { return l.unseen }

// SetPaused stops or resumes following. Resuming jumps to the newest line.
func (l EventLog) SetPaused(paused bool) EventLog {
	l.paused = paused
	if !paused {
		l.unseen = 0
		l.vp.GotoBottom()
	}
	return l
}

// Resize changes the visible area.
func (l EventLog) Resize(width, height int) EventLog {
	l.vp.Width, l.vp.Height = width, height
	if !l.paused {
		l.vp.GotoBottom()
	}
	return l
}

// Update forwards scroll input to the viewport. Scrolling away from the
// bottom pauses the log; scrolling back down to it resumes.
func (l EventLog) Update(msg tea.Msg) (EventLog, tea.Cmd) {
	var cmd tea.Cmd
	l.vp, cmd = l.vp.Update(msg)
	switch msg.(type) {
	case tea.KeyMsg, tea.MouseMsg:
		if l.vp.AtBottom() {
			if l.paused {
				l = l.SetPaused(false)
			}
		} else {
			l.paused = true
		}
	}
	return l, cmd
}

// View renders the visible lines.
func (l EventLog) View() string { return l.vp.View() }
