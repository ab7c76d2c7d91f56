// Package tui provides a bubbletea + lipgloss dashboard for a running
// recorder: the active room, the latest degree and a scrolling event log.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/poll"
)

// defaultAccentColor is the default accent color (indigo).
const defaultAccentColor = "#7D56F4"

var (
	colorWhite  = lipgloss.Color("#FAFAFA")
	colorGray   = lipgloss.Color("#888888")
	colorGreen  = lipgloss.Color("#6BCB77")
	colorYellow = lipgloss.Color("#FFD93D")
	colorRed    = lipgloss.Color("#FF6B6B")
	colorOrange = lipgloss.Color("#FFA54F")
)

var (
	footerStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	timestampStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	sampleStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	unchangedStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	authStyle = lipgloss.NewStyle().
			Foreground(colorOrange)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorWhite)
)

// stateStyle returns the header style for the loop's auth state.
func stateStyle(s poll.State) lipgloss.Style {
	if s == poll.StateSuppressedNotAuthenticated {
		return warnStyle
	}
	return sampleStyle
}
