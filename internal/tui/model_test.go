package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/engine"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/poll"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/room"
)

func newTestModel(ch chan poll.Event) Model {
	status := engine.Status{
		Room:      room.Identity{RoomNo: "D1_1_1_101", Area: 2, Building: "B1"},
		LastValue: 40.5,
		HasValue:  true,
	}
	return New(ch, "", status)
}

func TestNew(t *testing.T) {
	m := newTestModel(make(chan poll.Event, 1))
	if m.width != 80 || m.height != 24 {
		t.Errorf("default size = %dx%d, want 80x24", m.width, m.height)
	}
	if m.room != "D1_1_1_101" {
		t.Errorf("room = %q", m.room)
	}
	if !m.hasValue || m.value != 40.5 {
		t.Errorf("value = %v/%v, want 40.5/true", m.value, m.hasValue)
	}
	if m.Done() {
		t.Error("expected done to be false")
	}
	if m.Init() == nil {
		t.Error("Init should return a non-nil command")
	}
}

func TestUpdateWindowSize(t *testing.T) {
	m := newTestModel(make(chan poll.Event, 1))
	updated, cmd := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model := updated.(Model)
	if cmd != nil {
		t.Error("window size should not produce a command")
	}
	if model.width != 120 || model.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", model.width, model.height)
	}
}

func TestUpdateSampleEvent(t *testing.T) {
	ch := make(chan poll.Event, 1)
	m := newTestModel(ch)
	m.failures = 3

	ev := poll.Event{Kind: poll.EventSample, Timestamp: time.Date(2026, 1, 25, 12, 0, 1, 0, time.Local),
		Room: "D1_1_1_101", Value: 33.64, Recorded: true, Message: "degree 33.64 recorded"}
	updated, cmd := m.Update(eventMsg(ev))
	model := updated.(Model)

	if cmd == nil {
		t.Error("event should re-arm the listener")
	}
	if model.value != 33.64 || model.failures != 0 {
		t.Errorf("value/failures = %v/%d", model.value, model.failures)
	}
	if !model.lastSample.Equal(ev.Timestamp) {
		t.Errorf("lastSample = %v", model.lastSample)
	}
	if model.log.Len() != 1 {
		t.Errorf("log lines = %d, want 1", model.log.Len())
	}
	if !strings.Contains(model.View(), "33.64") {
		t.Error("view does not show the new degree")
	}
}

func TestUpdateFailureEvents(t *testing.T) {
	m := newTestModel(make(chan poll.Event, 1))

	events := []poll.Event{
		{Kind: poll.EventNotAuthenticated, Message: "permission denied", State: poll.StateSuppressedNotAuthenticated},
		{Kind: poll.EventNotAuthenticated, Message: "permission denied", State: poll.StateSuppressedNotAuthenticated, Suppressed: true},
		{Kind: poll.EventError, Message: "degree query failed"},
	}
	var model tea.Model = m
	for _, ev := range events {
		model, _ = model.Update(eventMsg(ev))
	}
	got := model.(Model)
	if got.failures != 3 {
		t.Errorf("failures = %d, want 3", got.failures)
	}
	if got.log.Len() != 2 {
		t.Errorf("log lines = %d, want 2 (suppressed event hidden)", got.log.Len())
	}
	if !strings.Contains(got.renderFooter(), "failures: 3") {
		t.Errorf("footer = %q", got.renderFooter())
	}
}

func TestUpdateEventsClosed(t *testing.T) {
	m := newTestModel(make(chan poll.Event))
	updated, cmd := m.Update(eventsClosedMsg{})
	if !updated.(Model).Done() {
		t.Error("expected done after channel close")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestWaitForEvent(t *testing.T) {
	ch := make(chan poll.Event, 1)
	ch <- poll.Event{Kind: poll.EventInfo, Message: "hello"}
	msg := waitForEvent(ch)()
	ev, ok := msg.(eventMsg)
	if !ok || ev.Message != "hello" {
		t.Fatalf("msg = %#v", msg)
	}
	close(ch)
	if _, ok := waitForEvent(ch)().(eventsClosedMsg); !ok {
		t.Error("closed channel should yield eventsClosedMsg")
	}
}

func TestHandleKey(t *testing.T) {
	m := newTestModel(make(chan poll.Event, 1))

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	if !updated.(Model).log.Paused() {
		t.Error("f should pause following")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestTickUpdatesClock(t *testing.T) {
	m := newTestModel(make(chan poll.Event, 1))
	now := time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC)
	updated, cmd := m.Update(tickMsg(now))
	if !updated.(Model).now.Equal(now) {
		t.Error("tick should update the clock")
	}
	if cmd == nil {
		t.Error("tick should re-arm")
	}
}

func TestAgo(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{5 * time.Second, "5s"},
		{3 * time.Minute, "3m"},
		{2*time.Hour + 5*time.Minute, "2h05m"},
	}
	for _, tt := range tests {
		if got := ago(tt.d); got != tt.want {
			t.Errorf("ago(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRenderEvent(t *testing.T) {
	theme := NewTheme("")
	ts := time.Date(2026, 1, 25, 9, 8, 7, 0, time.Local)
	tests := []struct {
		name string
		ev   poll.Event
		want string
	}{
		{"recorded", poll.Event{Kind: poll.EventSample, Recorded: true, Message: "degree 1.00 recorded"}, "degree 1.00 recorded"},
		{"unchanged", poll.Event{Kind: poll.EventSample, Message: "degree 1.00 unchanged"}, "unchanged"},
		{"auth", poll.Event{Kind: poll.EventNotAuthenticated, Message: "permission\ndenied"}, "permission denied"},
		{"error", poll.Event{Kind: poll.EventError, Message: "boom"}, "boom"},
		{"stopped", poll.Event{Kind: poll.EventStopped, Message: "polling stopped"}, "polling stopped"},
		{"info", poll.Event{Kind: poll.EventInfo, Message: "polling every 10s"}, "polling every 10s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.ev.Timestamp = ts
			got := theme.RenderEvent(tt.ev, 80)
			if !strings.Contains(got, tt.want) {
				t.Errorf("RenderEvent = %q, want it to contain %q", got, tt.want)
			}
			if !strings.Contains(got, "09:08:07") {
				t.Errorf("RenderEvent = %q, missing timestamp", got)
			}
		})
	}
}

func TestClip(t *testing.T) {
	long := strings.Repeat("a", 50)
	if got := clip(long, 30); len([]rune(got)) != 30 || !strings.HasSuffix(got, "…") {
		t.Errorf("clip = %q", got)
	}
	if got := clip("short", 30); got != "short" {
		t.Errorf("clip(short) = %q", got)
	}
}
