package status

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/poll"
)

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 25, 17, 30, 0, 0, time.UTC)

	original := State{
		PID:             4242,
		Room:            "D1_1_1_101",
		LastValue:       33.64,
		HasValue:        true,
		LastSuccessAt:   now,
		ConsecutiveErrs: 2,
		Auth:            "normal",
		StartedAt:       now.Add(-time.Hour),
	}
	if err := Save(dir, original); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.PID != original.PID || loaded.Room != original.Room {
		t.Errorf("loaded = %+v, want %+v", loaded, original)
	}
	if loaded.LastValue != original.LastValue || !loaded.HasValue {
		t.Errorf("LastValue = %v/%v, want %v/true", loaded.LastValue, loaded.HasValue, original.LastValue)
	}
	if !loaded.LastSuccessAt.Equal(now) {
		t.Errorf("LastSuccessAt = %v, want %v", loaded.LastSuccessAt, now)
	}
	if loaded.ConsecutiveErrs != 2 {
		t.Errorf("ConsecutiveErrs = %d, want 2", loaded.ConsecutiveErrs)
	}
	if !loaded.Running() {
		t.Error("Running() = false, want true")
	}
}

func TestLoadNoFile(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load with no file should not error: %v", err)
	}
	if s.PID != 0 || s.Running() {
		t.Errorf("expected zero state, got %+v", s)
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTrackerFoldsEvents(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 1, 25, 8, 0, 0, 0, time.UTC)
	tr := NewTracker(dir, 99, start)

	events := []poll.Event{
		{Kind: poll.EventSample, Timestamp: start.Add(time.Minute), Room: "D1_1_1_101", Value: 40, Recorded: true},
		{Kind: poll.EventError, Timestamp: start.Add(2 * time.Minute), Room: "D1_1_1_101", Message: "degree query failed"},
		{Kind: poll.EventNotAuthenticated, Timestamp: start.Add(3 * time.Minute), Room: "D1_1_1_101", Message: "permission denied", State: poll.StateSuppressedNotAuthenticated},
	}
	for _, ev := range events {
		tr.Update(ev)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.PID != 99 || !got.StartedAt.Equal(start) {
		t.Errorf("PID/StartedAt = %d/%v", got.PID, got.StartedAt)
	}
	if got.ConsecutiveErrs != 2 {
		t.Errorf("ConsecutiveErrs = %d, want 2", got.ConsecutiveErrs)
	}
	if got.LastValue != 40 || !got.LastSuccessAt.Equal(start.Add(time.Minute)) {
		t.Errorf("last success = %v at %v", got.LastValue, got.LastSuccessAt)
	}
	if got.Auth != "not-authenticated" {
		t.Errorf("Auth = %q, want not-authenticated", got.Auth)
	}
	if got.LastError != "permission denied" {
		t.Errorf("LastError = %q", got.LastError)
	}

	tr.Update(poll.Event{Kind: poll.EventSample, Timestamp: start.Add(4 * time.Minute), Value: 39.5})
	if s := tr.State(); s.ConsecutiveErrs != 0 || s.LastError != "" || s.Auth != "normal" {
		t.Errorf("after success: %+v", s)
	}

	tr.Update(poll.Event{Kind: poll.EventStopped, Timestamp: start.Add(5 * time.Minute)})
	got, _ = Load(dir)
	if got.Running() {
		t.Error("Running() = true after stop")
	}
}

func TestTrackerReportsSaveError(t *testing.T) {
	dir := t.TempDir()
	// A directory where the state file should go makes the rename fail.
	if err := os.Mkdir(filepath.Join(dir, FileName), 0o755); err != nil {
		t.Fatal(err)
	}
	var saveErr error
	tr := NewTracker(dir, 1, time.Now())
	tr.OnSaveError = func(err error) { saveErr = err }
	tr.Update(poll.Event{Kind: poll.EventSample, Value: 1})
	if saveErr == nil {
		t.Fatal("expected OnSaveError to be called")
	}
}
