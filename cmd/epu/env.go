package main

import (
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/config"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/ecnu"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/engine"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/logging"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/record"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/room"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/session"
)

// env is the loaded configuration and logger of one command invocation.
type env struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	closeLog func() error
}

// logMode selects where an invocation logs.
type logMode int

const (
	logConsole    logMode = iota // stderr only; one-shot commands
	logServe                     // stderr and the rolling file
	logServeQuiet                // rolling file only; the TUI owns the terminal
)

// loadEnv loads and validates the configuration and builds the logger.
func loadEnv(opts *globalOpts, mode logMode, stderr io.Writer) (*env, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	lo := logging.FromConfig(cfg)
	lo.Console = stderr
	switch mode {
	case logConsole:
		lo.Dir = ""
	case logServeQuiet:
		lo.Console = nil
	}
	logger, closeLog, err := logging.New(lo)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, closeLog: closeLog}, nil
}

func (e *env) close() { _ = e.closeLog() }

func (e *env) roomConfigPath() string {
	return filepath.Join(e.cfg.Storage.ConfigDir, room.ConfigFileName)
}

func (e *env) credentialsPath() string {
	return filepath.Join(e.cfg.Storage.ConfigDir, session.FileName)
}

// room returns the persisted room selection and its directory.
func (e *env) room() (room.Identity, string, error) {
	id, err := room.Load(e.roomConfigPath())
	if err != nil {
		return room.Identity{}, "", err
	}
	dir, err := id.Dir(e.cfg.Storage.DataDir)
	if err != nil {
		return room.Identity{}, "", err
	}
	return id, dir, nil
}

// history reads the persisted room's log without taking the engine lock.
func (e *env) history() ([]record.Sample, error) {
	_, dir, err := e.room()
	if err != nil {
		return nil, err
	}
	return record.ReadFile(filepath.Join(dir, record.FileName))
}

func (e *env) client() *ecnu.Client {
	return ecnu.New(e.cfg.Upstream.BaseURL, e.cfg.UpstreamTimeout(), e.logger)
}

// openEngine takes ownership of the data directory. It fails with
// engine.ErrLocked while `epu serve` is running.
func (e *env) openEngine() (*engine.Engine, error) {
	client := e.client()
	eng, err := engine.New(engine.Options{
		DataDir:   e.cfg.Storage.DataDir,
		ConfigDir: e.cfg.Storage.ConfigDir,
		Source:    client,
		Resolver:  room.NewResolver(client, 0),
		Logger:    e.logger,
	})
	if err != nil {
		return nil, err
	}
	creds, err := session.Load(e.credentialsPath())
	if err != nil {
		_ = eng.Close()
		return nil, err
	}
	if !creds.Empty() {
		eng.SetCredentials(creds)
	}
	return eng, nil
}
