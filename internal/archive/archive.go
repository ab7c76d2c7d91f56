package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fsutil"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/record"
)

// Handle is a prepared split of a log into the samples an archive will take
// and the samples the log keeps. Nothing on disk changes until Commit.
//
// The caller must hold exclusive access to the log from Begin through
// Commit.
type Handle struct {
	log      *record.Log
	span     record.TimeSpan
	archived []record.Sample
	retained []record.Sample
	now      func() time.Time
	logger   *zap.SugaredLogger
}

// Option configures a Handle.
type Option func(*Handle)

// WithClock overrides the clock used for the default name and the intent.
func WithClock(now func() time.Time) Option {
	return func(h *Handle) { h.now = now }
}

// WithLogger sets the logger that reports rollback failures.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(h *Handle) { h.logger = l }
}

// Begin reads the whole log and partitions it by span. Samples inside span
// (both bounds inclusive) are archived, sorted by time; the rest are
// retained in log order.
func Begin(log *record.Log, span record.TimeSpan, opts ...Option) (*Handle, error) {
	samples, err := log.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("archive: begin: %w", err)
	}
	h := &Handle{log: log, span: span, now: time.Now, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(h)
	}
	h.archived, h.retained = span.Partition(samples)
	record.SortByTime(h.archived)
	return h, nil
}

// Span returns the span the handle was begun with.
func (h *Handle) Span() record.TimeSpan { return h.span }

// Archived returns the samples the archive will hold.
func (h *Handle) Archived() []record.Sample { return h.archived }

// Retained returns the samples the log will keep.
func (h *Handle) Retained() []record.Sample { return h.retained }

// Empty reports whether there is nothing to archive.
func (h *Handle) Empty() bool { return len(h.archived) == 0 }

// DefaultName returns the name Commit uses when given an empty name.
func (h *Handle) DefaultName() string {
	start, end, ok := record.Bounds(h.archived)
	if !ok {
		return ""
	}
	return DefaultName(start, end, h.now())
}

// Meta returns the metadata a commit under name would record.
func (h *Handle) Meta(name string) Meta {
	start, end, _ := record.Bounds(h.archived)
	return Meta{StartTime: start, EndTime: end, Name: name, Count: len(h.archived)}
}

// Commit writes the archive into roomDir/archives under name (DefaultName
// when empty) and then rewrites the log to hold only the retained samples.
//
// ctx is consulted only before the first write. From then on the sequence
// runs to completion, journaled in roomDir/archive-intent.toml so Recover
// can finish or undo it after a crash. On error the archive files are
// removed again; if that cleanup fails the error is a Consistency fault.
// An error returned together with a non-zero Meta means the archive was
// committed but the rewritten log could not be reopened.
func (h *Handle) Commit(ctx context.Context, roomDir, name string) (Meta, error) {
	if h.Empty() {
		return Meta{}, fault.New(fault.EmptyArchive, "commit")
	}
	if name == "" {
		name = h.DefaultName()
	}
	if err := ValidateName(name); err != nil {
		return Meta{}, err
	}

	dir := filepath.Join(roomDir, DirName)
	dataPath := filepath.Join(dir, name+dataExt)
	metaPath := filepath.Join(dir, name+metaExt)
	if fsutil.Exists(metaPath) || fsutil.Exists(dataPath) {
		return Meta{}, fault.Newf(fault.DuplicatedArchive, "commit", "%q", name)
	}

	meta := h.Meta(name)
	var data, metaData bytes.Buffer
	if err := record.Encode(&data, h.archived); err != nil {
		return Meta{}, fault.Wrap(fault.Storage, "commit", err)
	}
	if err := toml.NewEncoder(&metaData).Encode(meta); err != nil {
		return Meta{}, fault.Wrap(fault.Storage, "commit", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Meta{}, fault.Wrap(fault.Storage, "commit", err)
	}

	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}

	in := newIntent(name, h.log.Path(), h.now())
	if err := writeIntent(roomDir, in); err != nil {
		return Meta{}, fault.Wrap(fault.Storage, "commit", err)
	}

	if err := fsutil.WriteFileExclusive(dataPath, data.Bytes()); err != nil {
		return Meta{}, h.abort(roomDir, in, fault.Wrap(fault.Storage, "commit", err))
	}
	if err := fsutil.WriteFileExclusive(metaPath, metaData.Bytes()); err != nil {
		return Meta{}, h.abort(roomDir, in, fault.Wrap(fault.Storage, "commit", err))
	}
	if err := h.log.Stage(h.retained); err != nil {
		return Meta{}, h.abort(roomDir, in, err)
	}

	in.Phase = PhaseStaged
	if err := writeIntent(roomDir, in); err != nil {
		return Meta{}, h.abort(roomDir, in, fault.Wrap(fault.Storage, "commit", err))
	}

	if err := h.log.Swap(); err != nil {
		if fsutil.Exists(record.StagedPath(h.log.Path())) {
			// The rename did not happen; the log is still the old one.
			return Meta{}, h.abort(roomDir, in, err)
		}
		// The new log is in place but could not be reopened.
		if rmErr := removeIntent(roomDir); rmErr != nil {
			h.logger.Warnw("archive intent not removed", "intent", in.ID, "error", rmErr)
		}
		return meta, err
	}

	if err := removeIntent(roomDir); err != nil {
		// Recovery of a staged intent with no staged file only removes it.
		h.logger.Warnw("archive intent not removed", "intent", in.ID, "error", err)
	}
	return meta, nil
}

// abort undoes a commit that has not swapped the log and returns cause, or
// a Consistency fault if the undo itself failed.
func (h *Handle) abort(roomDir string, in intent, cause error) error {
	err := rollback(roomDir, in.Name, h.log.Path())
	if err == nil {
		err = removeIntent(roomDir)
	}
	if err != nil {
		h.logger.Errorw("archive commit rollback failed",
			"intent", in.ID, "archive", in.Name, "cause", cause, "error", err)
		return &fault.Error{Kind: fault.Consistency, Op: "commit", Msg: in.Name, Err: errors.Join(cause, err)}
	}
	return cause
}
