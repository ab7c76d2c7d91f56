// Package logging builds the process logger: human-readable console output
// on stderr teed with JSON lines in a size-rotated server.log.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/config"
)

// FileName is the log file inside the log directory.
const FileName = "server.log"

// EnvLevel overrides log.level.
const EnvLevel = "EPU_LOG"

// Options selects the logger's outputs.
type Options struct {
	Level string
	// Dir receives the rolling log file; empty disables it.
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Console receives the console encoding; nil disables it.
	Console io.Writer
}

// FromConfig derives Options from cfg with the console on stderr.
func FromConfig(cfg *config.Config) Options {
	return Options{
		Level:      cfg.Log.Level,
		Dir:        cfg.Storage.LogDir,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    os.Stderr,
	}
}

// New builds the logger. The returned close function syncs the logger and
// closes the log file.
func New(opts Options) (*zap.SugaredLogger, func() error, error) {
	levelName := opts.Level
	if env := os.Getenv(EnvLevel); env != "" {
		levelName = env
	}
	level, err := ParseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}

	var cores []zapcore.Core
	if opts.Console != nil {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(opts.Console), level))
	}

	var rolling *lumberjack.Logger
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		rolling = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, FileName),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			LocalTime:  true,
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rolling), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar()
	closeFn := func() error {
		_ = logger.Sync() // stderr cannot be synced on some platforms
		if rolling != nil {
			return rolling.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}

// ParseLevel maps a level name to a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return level, fmt.Errorf("logging: invalid level %q", name)
	}
	return level, nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger { return zap.NewNop().Sugar() }
