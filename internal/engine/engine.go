// Package engine owns the recorder's mutable state: the active room, its
// record log and the upstream credentials. All public operations of the
// recorder go through an *Engine.
//
// Locking: Engine.mu guards which room is active and the credentials. Each
// active room has its own RWMutex around its log; appends, commits and
// deletes take it exclusively, reads take it shared. A room switch prepares
// the new room without any lock held, swaps it in under Engine.mu, and then
// closes the old room under the old room's write lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/archive"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/record"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/room"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/session"
)

// LockFileName is the lock held in the data directory by a running engine.
const LockFileName = ".epu.lock"

// ErrLocked is returned by New when another process owns the data directory.
var ErrLocked = errors.New("engine: data directory is in use by another epu process")

// DegreeSource supplies the current remaining degree of a room.
type DegreeSource interface {
	Degree(ctx context.Context, id room.Identity, creds session.Credentials) (float32, error)
}

// Options configures New.
type Options struct {
	DataDir   string
	ConfigDir string
	Source    DegreeSource
	Resolver  *room.Resolver
	Logger    *zap.SugaredLogger
	// Now defaults to time.Now.
	Now func() time.Time
}

// activeRoom is one opened room directory and its log.
type activeRoom struct {
	mu     sync.RWMutex
	name   string // directory name under the data dir
	dir    string
	log    *record.Log
	closed bool
}

func (a *activeRoom) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.log.Close()
}

// Engine is the recorder core. Create it with New and release it with Close.
type Engine struct {
	opts Options
	log  *zap.SugaredLogger
	lock *dirLock

	// switchMu serialises room switches.
	switchMu sync.Mutex

	mu    sync.RWMutex
	cur   *activeRoom
	id    room.Identity
	creds session.Credentials
}

// New opens the room persisted in ConfigDir (or the unknown room) and
// returns an Engine owning DataDir. It fails with ErrLocked if another
// process already owns DataDir.
func New(opts Options) (*Engine, error) {
	if opts.DataDir == "" || opts.ConfigDir == "" {
		return nil, errors.New("engine: data and config directories are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fault.Wrap(fault.Storage, "engine", err)
	}
	lock, err := acquireLock(filepath.Join(opts.DataDir, LockFileName))
	if err != nil {
		return nil, err
	}

	e := &Engine{opts: opts, log: opts.Logger, lock: lock}
	id, err := room.Load(e.roomConfigPath())
	if err != nil {
		lock.release()
		return nil, &fault.Error{Kind: fault.InvalidRoomConfig, Op: "engine", Err: err}
	}
	a, err := e.openRoom(id)
	if err != nil {
		lock.release()
		return nil, err
	}
	e.cur, e.id = a, id
	e.log.Infow("engine ready", "room", id.DirName(), "dir", a.dir)
	return e, nil
}

func (e *Engine) roomConfigPath() string {
	return filepath.Join(e.opts.ConfigDir, room.ConfigFileName)
}

// openRoom prepares id's directory and log without touching engine state.
func (e *Engine) openRoom(id room.Identity) (*activeRoom, error) {
	dir, err := id.Dir(e.opts.DataDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fault.Wrap(fault.RoomDir, "open room", err)
	}
	recovered, err := archive.Recover(dir, e.log)
	if err != nil {
		return nil, err
	}
	if recovered {
		e.log.Warnw("finished an interrupted archive commit", "room", id.DirName())
	}
	l, err := record.Open(filepath.Join(dir, record.FileName), record.WithClock(e.opts.Now))
	if err != nil {
		return nil, err
	}
	return &activeRoom{name: id.DirName(), dir: dir, log: l}, nil
}

// SwitchRoom makes id the active room. The new room's directory and log are
// prepared and id is persisted before anything visible changes; on failure
// the previous room stays active.
func (e *Engine) SwitchRoom(ctx context.Context, id room.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.switchMu.Lock()
	defer e.switchMu.Unlock()

	e.mu.RLock()
	old := e.cur
	e.mu.RUnlock()

	if old != nil && old.name == id.DirName() {
		// Same directory: keep the open log.
		if err := room.Save(e.roomConfigPath(), id); err != nil {
			return err
		}
		e.mu.Lock()
		e.id = id
		e.mu.Unlock()
		e.log.Infow("room updated", "room", id.String())
		return nil
	}

	a, err := e.openRoom(id)
	if err != nil {
		return err
	}
	if err := room.Save(e.roomConfigPath(), id); err != nil {
		_ = a.log.Close()
		return err
	}

	e.mu.Lock()
	e.cur, e.id = a, id
	e.mu.Unlock()

	if old != nil {
		if err := old.close(); err != nil {
			e.log.Warnw("closing previous room log", "room", old.name, "error", err)
		}
	}
	e.log.Infow("room switched", "room", id.String(), "dir", a.dir)
	return nil
}

// ClearRoom switches to the unknown room and persists the empty selection.
func (e *Engine) ClearRoom(ctx context.Context) error {
	return e.SwitchRoom(ctx, room.Identity{})
}

// Room returns the active room identity.
func (e *Engine) Room() room.Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.id
}

// RoomDir returns the directory of the active room.
func (e *Engine) RoomDir() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cur == nil {
		return ""
	}
	return e.cur.dir
}

// SetCredentials replaces the upstream credentials after sanitising them.
func (e *Engine) SetCredentials(c session.Credentials) {
	c = c.Sanitize()
	e.mu.Lock()
	e.creds = c
	e.mu.Unlock()
	e.log.Infow("credentials refreshed", "credentials", c.String())
}

// ClearCredentials forgets the upstream credentials.
func (e *Engine) ClearCredentials() {
	e.mu.Lock()
	e.creds = session.Credentials{}
	e.mu.Unlock()
	e.log.Info("credentials cleared")
}

func (e *Engine) snapshot() (*activeRoom, room.Identity, session.Credentials) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cur, e.id, e.creds
}

// withRoom runs fn on the active room under its lock, exclusive when write
// is set. If the room is switched away while waiting for the lock, fn runs
// on the new room instead.
func (e *Engine) withRoom(write bool, fn func(a *activeRoom) error) error {
	for {
		a, _, _ := e.snapshot()
		if a == nil {
			return errClosed
		}
		if write {
			a.mu.Lock()
		} else {
			a.mu.RLock()
		}
		if a.closed {
			if write {
				a.mu.Unlock()
			} else {
				a.mu.RUnlock()
			}
			e.mu.RLock()
			same := e.cur == a
			e.mu.RUnlock()
			if same {
				return errClosed
			}
			continue
		}
		err := fn(a)
		if write {
			a.mu.Unlock()
		} else {
			a.mu.RUnlock()
		}
		return err
	}
}

var errClosed = errors.New("engine: closed")

// CurrentValue queries the degree of the active room without recording it.
func (e *Engine) CurrentValue(ctx context.Context) (float32, error) {
	_, id, creds := e.snapshot()
	return e.query(ctx, id, creds)
}

func (e *Engine) query(ctx context.Context, id room.Identity, creds session.Credentials) (float32, error) {
	if !id.Valid() {
		return 0, fault.New(fault.RoomConfigMissing, "degree")
	}
	if e.opts.Source == nil {
		return 0, fault.Newf(fault.Upstream, "degree", "no degree source configured")
	}
	return e.opts.Source.Degree(ctx, id, creds)
}

// Reading is the outcome of one Sample call.
type Reading struct {
	Room     room.Identity
	Value    float32
	Time     time.Time
	Recorded bool
}

// Sample queries the active room's degree and appends it to the room's log
// unless it equals the last recorded value. A reading whose room was
// switched away during the query is dropped.
func (e *Engine) Sample(ctx context.Context) (Reading, error) {
	_, id, creds := e.snapshot()
	v, err := e.query(ctx, id, creds)
	if err != nil {
		return Reading{Room: id}, err
	}
	r := Reading{Room: id, Value: v, Time: e.opts.Now()}
	err = e.withRoom(true, func(a *activeRoom) error {
		if a.name != id.DirName() {
			e.log.Debugw("dropping reading for a room that is no longer active", "room", id.DirName())
			return nil
		}
		var recErr error
		r.Recorded, recErr = a.log.Record(v)
		return recErr
	})
	return r, err
}

// Record appends value to the active room's log with deduplication.
func (e *Engine) Record(value float32) (bool, error) {
	var wrote bool
	err := e.withRoom(true, func(a *activeRoom) error {
		var err error
		wrote, err = a.log.Record(value)
		return err
	})
	return wrote, err
}

// History returns every sample in the active room's log.
func (e *Engine) History() ([]record.Sample, error) {
	var samples []record.Sample
	err := e.withRoom(false, func(a *activeRoom) error {
		var err error
		samples, err = a.log.ReadAll()
		return err
	})
	return samples, err
}

// LastValue returns the last value recorded in the active room.
func (e *Engine) LastValue() (float32, bool) {
	var (
		v  float32
		ok bool
	)
	_ = e.withRoom(false, func(a *activeRoom) error {
		v, ok = a.log.LastValue()
		return nil
	})
	return v, ok
}

// CreateArchive moves the samples within span out of the active log into a
// new archive called name (a dated default when empty). The whole
// begin-and-commit runs under the room's write lock.
func (e *Engine) CreateArchive(ctx context.Context, span record.TimeSpan, name string) (archive.Meta, error) {
	if name != "" {
		if err := archive.ValidateName(name); err != nil {
			return archive.Meta{}, err
		}
	}
	var meta archive.Meta
	err := e.withRoom(true, func(a *activeRoom) error {
		h, err := archive.Begin(a.log, span, archive.WithClock(e.opts.Now), archive.WithLogger(e.log))
		if err != nil {
			return err
		}
		if h.Empty() {
			return fault.Newf(fault.EmptyArchive, "create archive", "no samples in %s", span)
		}
		meta, err = h.Commit(ctx, a.dir, name)
		if err != nil && meta.Name != "" {
			e.log.Errorw("archive committed but the log could not be reopened", "archive", meta.Name, "error", err)
		}
		return err
	})
	if err != nil {
		return meta, err
	}
	e.log.Infow("archive created", "archive", meta.Name, "samples", meta.Count, "span", span.String())
	return meta, nil
}

// ListArchives returns the active room's archives in listing order.
func (e *Engine) ListArchives() ([]archive.Meta, error) {
	var metas []archive.Meta
	err := e.withRoom(false, func(a *activeRoom) error {
		var err error
		metas, err = archive.List(a.dir)
		return err
	})
	return metas, err
}

// ReadArchive returns the samples of the named archive.
func (e *Engine) ReadArchive(name string) ([]record.Sample, error) {
	var samples []record.Sample
	err := e.withRoom(false, func(a *activeRoom) error {
		var err error
		samples, err = archive.Read(a.dir, name)
		return err
	})
	return samples, err
}

// ExportArchive writes the named archive to w in format f.
func (e *Engine) ExportArchive(name string, f archive.Format, w io.Writer) error {
	return e.withRoom(false, func(a *activeRoom) error {
		return archive.Export(a.dir, name, f, w)
	})
}

// DeleteArchive moves the named archive to the room's deleted directory.
func (e *Engine) DeleteArchive(name string) error {
	err := e.withRoom(true, func(a *activeRoom) error {
		return archive.Delete(a.dir, name, e.opts.Now())
	})
	if err == nil {
		e.log.Infow("archive deleted", "archive", name)
	}
	return err
}

// ResolveRoomInfo resolves the active room's location. No engine lock is
// held while the directory is queried.
func (e *Engine) ResolveRoomInfo(ctx context.Context) (room.Info, error) {
	_, id, creds := e.snapshot()
	if id.Empty() {
		return room.Info{}, fault.New(fault.RoomConfigMissing, "room info")
	}
	if e.opts.Resolver == nil {
		return room.Info{}, fault.Newf(fault.Upstream, "room info", "no resolver configured")
	}
	return e.opts.Resolver.Resolve(ctx, id, creds)
}

// Status is a point-in-time view of the engine.
type Status struct {
	Room           room.Identity
	RoomDir        string
	LastValue      float32
	HasValue       bool
	HasCredentials bool
}

// Snapshot returns the engine's current status.
func (e *Engine) Snapshot() Status {
	a, id, creds := e.snapshot()
	s := Status{Room: id, HasCredentials: !creds.Empty()}
	if a != nil {
		s.RoomDir = a.dir
	}
	s.LastValue, s.HasValue = e.LastValue()
	return s
}

// Close releases the active log and the data directory lock.
func (e *Engine) Close() error {
	e.switchMu.Lock()
	defer e.switchMu.Unlock()
	e.mu.Lock()
	a := e.cur
	e.cur = nil
	e.mu.Unlock()

	var errs []error
	if a != nil {
		if err := a.close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: close log: %w", err))
		}
	}
	if err := e.lock.release(); err != nil {
		errs = append(errs, fmt.Errorf("engine: release lock: %w", err))
	}
	return errors.Join(errs...)
}
