package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/record"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/room"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/session"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/status"
)

type fakeTarget struct {
	room     room.Identity
	switches []room.Identity
	creds    []session.Credentials
	cleared  int
}

func (f *fakeTarget) Room() room.Identity { return f.room }

func (f *fakeTarget) SwitchRoom(_ context.Context, id room.Identity) error {
	f.switches = append(f.switches, id)
	f.room = id
	return nil
}

func (f *fakeTarget) SetCredentials(c session.Credentials) { f.creds = append(f.creds, c) }

func (f *fakeTarget) ClearCredentials() { f.cleared++ }

func newWatcherFixture(t *testing.T) (*settingsWatcher, *fakeTarget, *observer.ObservedLogs) {
	t.Helper()
	dir := t.TempDir()
	core, logs := observer.New(zapcore.DebugLevel)
	target := &fakeTarget{}
	w := newSettingsWatcher(
		filepath.Join(dir, room.ConfigFileName),
		filepath.Join(dir, session.FileName),
		target,
		zap.New(core).Sugar(),
	)
	return w, target, logs
}

// touch moves path's modification time forward so the watcher sees an edit
// even on file systems with coarse timestamps.
func touch(t *testing.T, path string, offset time.Duration) {
	t.Helper()
	ts := time.Now().Add(offset)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatal(err)
	}
}

func TestSettingsWatcherCredentials(t *testing.T) {
	w, target, _ := newWatcherFixture(t)

	w.sync(context.Background())
	if target.cleared != 1 || len(target.creds) != 0 {
		t.Fatalf("first sync without a file: cleared=%d set=%d, want 1 and 0", target.cleared, len(target.creds))
	}
	w.sync(context.Background())
	if target.cleared != 1 {
		t.Errorf("unchanged file applied again: cleared=%d", target.cleared)
	}

	c := session.Credentials{JSessionID: "JS", Cookie: "CK", CSRFToken: "TOK"}
	if err := session.Save(w.credsPath, c); err != nil {
		t.Fatal(err)
	}
	touch(t, w.credsPath, time.Minute)
	w.sync(context.Background())
	if len(target.creds) != 1 || target.creds[0] != c {
		t.Errorf("credentials applied = %v, want [%v]", target.creds, c)
	}
}

func TestSettingsWatcherRoom(t *testing.T) {
	w, target, _ := newWatcherFixture(t)
	w.sync(context.Background())
	if len(target.switches) != 0 {
		t.Fatalf("switched without a room file: %v", target.switches)
	}

	id := room.Identity{RoomNo: testRoomNo, Area: 2, Building: "B12"}
	if err := room.Save(w.roomPath, id); err != nil {
		t.Fatal(err)
	}
	touch(t, w.roomPath, time.Minute)
	w.sync(context.Background())
	if len(target.switches) != 1 || target.switches[0] != id {
		t.Fatalf("switches = %v, want [%v]", target.switches, id)
	}

	// Rewriting the same room is not a switch.
	touch(t, w.roomPath, 2*time.Minute)
	w.sync(context.Background())
	if len(target.switches) != 1 {
		t.Errorf("same room switched again: %v", target.switches)
	}
}

func TestSettingsWatcherIgnoresUnreadableRoom(t *testing.T) {
	w, target, logs := newWatcherFixture(t)
	if err := os.WriteFile(w.roomPath, []byte("room_no = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	touch(t, w.roomPath, time.Minute)
	w.sync(context.Background())

	if len(target.switches) != 0 {
		t.Errorf("switched on an unreadable file: %v", target.switches)
	}
	if logs.FilterMessage("ignoring unreadable room config").Len() != 1 {
		t.Errorf("expected one warning, got %v", logs.All())
	}
}

func TestRunServeRecordsUntilCancelled(t *testing.T) {
	srv := degreeServer(t, `{"retcode":0,"retmsg":"成功","restElecDegree":33.63}`)
	s := newTestSetup(t, srv.URL)
	s.mustRun(t, "room", "set", testRoomNo, "2", "B12")
	s.mustRun(t, "cookies", "set", "--jsessionid", "JS", "--cookie", "CK", "--csrf", "TOK")

	e, err := loadEnv(&globalOpts{configPath: s.configPath}, logServe, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	defer e.close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(500*time.Millisecond, cancel)
	if err := runServe(ctx, e, false); err != nil {
		t.Fatalf("runServe: %v", err)
	}

	samples, err := record.ReadFile(filepath.Join(s.roomDir(), record.FileName))
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 || samples[0].Value != 33.63 {
		t.Errorf("recorded %v, want one sample of 33.63", samples)
	}

	st, err := status.Load(s.configDir)
	if err != nil {
		t.Fatal(err)
	}
	if st.Running() || st.PID != os.Getpid() {
		t.Errorf("poll state = %+v, want stopped with our pid", st)
	}
	if !st.HasValue || st.LastValue != 33.63 {
		t.Errorf("poll state value = %v (has %v), want 33.63", st.LastValue, st.HasValue)
	}
	if _, err := os.Stat(filepath.Join(s.root, "logs", "server.log")); err != nil {
		t.Errorf("server log not written: %v", err)
	}
}
