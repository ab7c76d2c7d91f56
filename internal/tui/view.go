package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the dashboard: header bar, scrollable event log, footer bar.
func (m Model) View() string {
	return m.renderHeader() + "\n" + m.log.View() + "\n" + m.renderFooter()
}

func (m Model) renderHeader() string {
	value := "—"
	if m.hasValue {
		value = fmt.Sprintf("%.2f", m.value)
	}
	room := m.room
	if room == "" {
		room = "—"
	}

	sep := m.theme.accentStyle.Render("  │  ")
	content := m.theme.accentStyle.Render("⚡ ECNU Power") + sep +
		m.theme.accentStyle.Render("room: "+room) + sep +
		m.theme.accentStyle.Render("degree: ") + m.theme.valueStyle.Render(value) + sep +
		stateStyle(m.state).Inherit(m.theme.accentStyle).Render(m.state.String())

	gap := m.width - lipgloss.Width(content)
	if gap > 0 {
		content += m.theme.accentStyle.Render(strings.Repeat(" ", gap))
	}
	return content
}

func (m Model) renderFooter() string {
	last := "no sample yet"
	if !m.lastSample.IsZero() {
		last = fmt.Sprintf("last sample %s (%s ago)", m.lastSample.Format("15:04:05"), ago(m.now.Sub(m.lastSample)))
	}
	left := last
	if m.failures > 0 {
		left += fmt.Sprintf("  failures: %d", m.failures)
	}

	right := "f:follow  ↑/↓:scroll  q:quit"
	if m.log.Paused() {
		right = fmt.Sprintf("paused (%d new)  ", m.log.Unseen()) + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}
	return footerStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// ago formats d coarsely: seconds, then minutes, then hours.
func ago(d time.Duration) string {
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
