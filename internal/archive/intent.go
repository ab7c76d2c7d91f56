package archive

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fsutil"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/record"
)

// IntentFileName is the commit journal kept in the room directory while a
// commit is in flight.
const IntentFileName = "archive-intent.toml"

// Commit phases recorded in the intent file.
const (
	// PhaseBegun: archive files may be partially written, the log is
	// untouched. Recovery rolls back.
	PhaseBegun = "begun"
	// PhaseStaged: archive files are complete and the retained samples are
	// staged next to the log. Recovery rolls forward.
	PhaseStaged = "staged"
)

type intent struct {
	ID        string    `toml:"id"`
	Phase     string    `toml:"phase"`
	Name      string    `toml:"archive_name"`
	Log       string    `toml:"log"`
	CreatedAt time.Time `toml:"created_at"`
}

func newIntent(name, logPath string, now time.Time) intent {
	return intent{
		ID:        uuid.NewString(),
		Phase:     PhaseBegun,
		Name:      name,
		Log:       filepath.Base(logPath),
		CreatedAt: now,
	}
}

func intentPath(roomDir string) string { return filepath.Join(roomDir, IntentFileName) }

func writeIntent(roomDir string, in intent) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(in); err != nil {
		return fmt.Errorf("archive: encode intent: %w", err)
	}
	return fsutil.WriteFileAtomic(intentPath(roomDir), buf.Bytes())
}

func readIntent(roomDir string) (intent, bool, error) {
	var in intent
	if _, err := toml.DecodeFile(intentPath(roomDir), &in); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return intent{}, false, nil
		}
		return intent{}, false, fmt.Errorf("archive: read intent: %w", err)
	}
	return in, true, nil
}

func removeIntent(roomDir string) error {
	if err := os.Remove(intentPath(roomDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("archive: remove intent: %w", err)
	}
	return nil
}

// Recover finishes or undoes a commit that was interrupted in roomDir. It
// must run before the room's log is opened. It reports whether an
// interrupted commit was found.
func Recover(roomDir string, logger *zap.SugaredLogger) (bool, error) {
	in, ok, err := readIntent(roomDir)
	if err != nil {
		return false, fault.Wrap(fault.Consistency, "recover", err)
	}
	if !ok {
		return false, nil
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logPath := filepath.Join(roomDir, in.Log)
	if in.Log == "" {
		logPath = filepath.Join(roomDir, record.FileName)
	}

	switch in.Phase {
	case PhaseStaged:
		moved, err := record.PromoteStaged(logPath)
		if err != nil {
			return true, fault.Wrap(fault.Consistency, "recover", err)
		}
		logger.Infow("archive commit rolled forward",
			"intent", in.ID, "archive", in.Name, "log_swapped", moved)
	default:
		if err := rollback(roomDir, in.Name, logPath); err != nil {
			return true, fault.Wrap(fault.Consistency, "recover", err)
		}
		logger.Infow("archive commit rolled back", "intent", in.ID, "archive", in.Name, "phase", in.Phase)
	}
	if err := removeIntent(roomDir); err != nil {
		return true, fault.Wrap(fault.Consistency, "recover", err)
	}
	return true, nil
}

// rollback removes every file a commit of name may have created.
func rollback(roomDir, name, logPath string) error {
	var errs []error
	if name != "" && fsutil.ValidName(name) == nil {
		dir := filepath.Join(roomDir, DirName)
		for _, p := range []string{filepath.Join(dir, name+dataExt), filepath.Join(dir, name+metaExt)} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
	}
	if err := record.DiscardStaged(logPath); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
