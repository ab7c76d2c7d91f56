// Package status persists the polling loop's health so that `epu status`
// can report on a running server from another process.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fsutil"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/poll"
)

// FileName is the state file inside the config directory.
const FileName = "poll-state.json"

// State tracks the poller's operational state.
type State struct {
	PID             int       `json:"pid"`
	Room            string    `json:"room"`
	LastValue       float32   `json:"last_value"`
	HasValue        bool      `json:"has_value"`
	LastSuccessAt   time.Time `json:"last_success_at"`
	LastErrorAt     time.Time `json:"last_error_at"`
	LastError       string    `json:"last_error,omitempty"`
	ConsecutiveErrs int       `json:"consecutive_errors"`
	Auth            string    `json:"auth_state"`
	StartedAt       time.Time `json:"started_at"`
	StoppedAt       time.Time `json:"stopped_at"`
}

// Running reports whether the state describes a poller that has not
// recorded a stop.
func (s State) Running() bool {
	return s.PID != 0 && s.StoppedAt.IsZero()
}

// Load reads the state from dir. A missing file yields a zero State.
func Load(dir string) (State, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("status: read state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("status: parse state: %w", err)
	}
	return s, nil
}

// Save writes the state to dir atomically.
func Save(dir string, s State) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("status: create state dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("status: marshal state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, FileName), data); err != nil {
		return fmt.Errorf("status: save state: %w", err)
	}
	return nil
}

// Tracker folds poll events into a State and saves it after each one. It is
// meant to be installed as a poll.Loop hook.
type Tracker struct {
	mu      sync.Mutex
	dir string
	state   State
	// OnSaveError, if set, is called when persisting fails.
	OnSaveError func(error)
}

// NewTracker starts tracking a poller running as pid.
func NewTracker(dir string, pid int, now time.Time) *Tracker {
	return &Tracker{
		dir: dir,
		state: State{
			PID:       pid,
			StartedAt: now,
			Auth:      poll.StateNormal.String(),
		},
	}
}

// State returns a copy of the tracked state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Update applies ev and persists the result.
func (t *Tracker) Update(ev poll.Event) {
	t.mu.Lock()
	s := &t.state
	if ev.Room != "" {
		s.Room = ev.Room
	}
	s.Auth = ev.State.String()
	switch ev.Kind {
	case poll.EventSample:
		s.LastValue, s.HasValue = ev.Value, true
		s.LastSuccessAt = ev.Timestamp
		s.ConsecutiveErrs = 0
		s.LastError = ""
	case poll.EventNotAuthenticated, poll.EventError:
		s.LastErrorAt = ev.Timestamp
		s.LastError = ev.Message
		s.ConsecutiveErrs++
	case poll.EventStopped:
		s.StoppedAt = ev.Timestamp
	}
	snapshot := *s
	t.mu.Unlock()

	if err := Save(t.dir, snapshot); err != nil && t.OnSaveError != nil {
		t.OnSaveError(err)
	}
}
