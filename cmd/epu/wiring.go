package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/engine"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/notify"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/poll"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/room"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/session"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/status"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/tui"
)

// runServe owns the data directory and polls until ctx is cancelled (or the
// dashboard is closed).
func runServe(ctx context.Context, e *env, useTUI bool) error {
	cfg := e.cfg
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	eng, err := e.openEngine()
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			e.logger.Warnw("closing engine", "error", err)
		}
	}()
	e.logger.Infow("serving",
		"config", cfg.Path,
		"data_dir", cfg.Storage.DataDir,
		"config_dir", cfg.Storage.ConfigDir,
		"log_dir", cfg.Storage.LogDir)

	watcher := newSettingsWatcher(e.roomConfigPath(), e.credentialsPath(), eng, e.logger)

	tracker := status.NewTracker(cfg.Storage.ConfigDir, os.Getpid(), time.Now())
	tracker.OnSaveError = func(err error) { e.logger.Warnw("saving poll state", "error", err) }
	hooks := []func(poll.Event){tracker.Update}

	var notifier *notify.Notifier
	if cfg.Notifications.URL != "" {
		notifier = notify.New(cfg.Notifications.URL, "ECNU power", notify.Options{
			LowDegree: cfg.Notifications.Threshold,
			Interval:  cfg.NotifyInterval(),
			OnAuth:    cfg.Notifications.OnAuth,
			OnStop:    cfg.Notifications.OnStop,
		})
		hooks = append(hooks, notifier.Hook)
		defer notifier.Wait()
	}

	lp := &poll.Loop{
		Sampler:    eng,
		Interval:   cfg.PollInterval(),
		Timeout:    cfg.PollTimeout(),
		Logger:     e.logger,
		Hooks:      hooks,
		BeforeTick: watcher.sync,
	}

	if !useTUI {
		return ignoreCanceled(lp.Run(ctx))
	}
	return runWithTUI(ctx, lp, cfg.TUI.AccentColor, eng.Snapshot())
}

// runWithTUI runs the loop in the background and the dashboard in the
// foreground. Closing the dashboard stops the loop; stopping the loop closes
// the dashboard.
func runWithTUI(ctx context.Context, lp *poll.Loop, accent string, initial engine.Status) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan poll.Event, 128)
	lp.Events = events

	loopDone := make(chan error, 1)
	go func() {
		defer close(events)
		loopDone <- lp.Run(ctx)
	}()

	program := tea.NewProgram(tui.New(events, accent, initial), tea.WithAltScreen())
	_, tuiErr := program.Run()
	cancel()
	loopErr := <-loopDone

	if tuiErr != nil {
		return fmt.Errorf("tui: %w", tuiErr)
	}
	return ignoreCanceled(loopErr)
}

// ignoreCanceled treats cancellation as a normal shutdown.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// settingsTarget is the part of the engine the watcher drives.
type settingsTarget interface {
	Room() room.Identity
	SwitchRoom(ctx context.Context, id room.Identity) error
	SetCredentials(c session.Credentials)
	ClearCredentials()
}

// settingsWatcher applies edits of room.toml and credentials.toml made by
// other epu invocations to the running engine. It compares modification
// times on every poll tick.
type settingsWatcher struct {
	roomPath  string
	credsPath string
	target    settingsTarget
	logger    *zap.SugaredLogger

	roomMod    time.Time
	credsMod   time.Time
	credsKnown bool
}

// newSettingsWatcher assumes target already runs the persisted room;
// credentials are applied on the first sync.
func newSettingsWatcher(roomPath, credsPath string, target settingsTarget, logger *zap.SugaredLogger) *settingsWatcher {
	return &settingsWatcher{
		roomPath:  roomPath,
		credsPath: credsPath,
		target:    target,
		logger:    logger,
		roomMod:   modTime(roomPath),
	}
}

func (w *settingsWatcher) sync(ctx context.Context) {
	if mod := modTime(w.credsPath); !w.credsKnown || !mod.Equal(w.credsMod) {
		w.credsMod, w.credsKnown = mod, true
		w.applyCredentials()
	}
	if mod := modTime(w.roomPath); !mod.Equal(w.roomMod) {
		w.roomMod = mod
		w.applyRoom(ctx)
	}
}

func (w *settingsWatcher) applyCredentials() {
	c, err := session.Load(w.credsPath)
	if err != nil {
		w.logger.Warnw("ignoring unreadable credentials", "path", w.credsPath, "error", err)
		return
	}
	if c.Empty() {
		w.target.ClearCredentials()
		return
	}
	w.target.SetCredentials(c)
}

func (w *settingsWatcher) applyRoom(ctx context.Context) {
	id, err := room.Load(w.roomPath)
	if err != nil {
		w.logger.Warnw("ignoring unreadable room config", "path", w.roomPath, "error", err)
		return
	}
	if id == w.target.Room() {
		return
	}
	if err := w.target.SwitchRoom(ctx, id); err != nil {
		w.logger.Errorw("switching room", "room", id.String(), "error", err)
		return
	}
	// SwitchRoom rewrites the file; do not treat that as another edit.
	w.roomMod = modTime(w.roomPath)
}

// modTime returns path's modification time, or the zero time if it cannot
// be stat'ed.
func modTime(path string) time.Time {
	info, err := os.Stat(filepath.Clean(path))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
