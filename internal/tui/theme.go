package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/poll"
)

// Theme holds accent-color-derived styles.
type Theme struct {
	accentStyle lipgloss.Style // header bar
	valueStyle  lipgloss.Style // the degree in the header
}

// NewTheme creates a Theme from a hex accent color string (e.g. "#7D56F4").
// If accentColor is empty, the default accent color is used.
func NewTheme(accentColor string) Theme {
	color := defaultAccentColor
	if accentColor != "" {
		color = accentColor
	}
	c := lipgloss.Color(color)
	return Theme{
		accentStyle: lipgloss.NewStyle().
			Background(c).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true),
		valueStyle: lipgloss.NewStyle().
			Background(c).
			Foreground(colorYellow).
			Bold(true),
	}
}

// RenderEvent renders a poll event as a single terminal line of at most
// width columns of message text.
func (t Theme) RenderEvent(ev poll.Event, width int) string {
	ts := timestampStyle.Render(fmt.Sprintf("[%s]", ev.Timestamp.Format("15:04:05")))
	msg := clip(singleLine(ev.Message), width-13)

	switch ev.Kind {
	case poll.EventSample:
		if ev.Recorded {
			return fmt.Sprintf("%s  %s", ts, sampleStyle.Render("● "+msg))
		}
		return fmt.Sprintf("%s  %s", ts, unchangedStyle.Render("· "+msg))
	case poll.EventNotAuthenticated:
		return fmt.Sprintf("%s  %s", ts, authStyle.Render("🔒 "+msg))
	case poll.EventError:
		return fmt.Sprintf("%s  %s", ts, errorStyle.Render("✗ "+msg))
	case poll.EventStopped:
		return fmt.Sprintf("%s  %s", ts, errorStyle.Render("⏹ "+msg))
	default:
		return fmt.Sprintf("%s  %s", ts, infoStyle.Render(msg))
	}
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// clip shortens s to max runes, marking the cut with an ellipsis.
func clip(s string, max int) string {
	if max < 20 {
		max = 20
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
