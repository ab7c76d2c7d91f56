package tui

import (
	"time"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/poll"
)

// eventMsg wraps a poll.Event as a bubbletea message.
type eventMsg poll.Event

// eventsClosedMsg signals the event channel has closed.
type eventsClosedMsg struct{}

// tickMsg is sent every second for the "ago" display.
type tickMsg time.Time
