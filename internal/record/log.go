package record

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
)

// FileName is the log file name inside a room directory.
const FileName = "records.csv"

// Epsilon is the smallest change in value that Record persists.
const Epsilon = 0.01

// stagedSuffix marks a fully written replacement awaiting rename.
const stagedSuffix = ".next"

// ErrClosed is returned by operations on a closed Log.
var ErrClosed = errors.New("record: log is closed")

// Log is the append-only sample log of one room.
//
// A Log is not safe for concurrent use: the owner serialises Record,
// RecordBatch and Replace, and may run ReadAll concurrently with other
// ReadAll calls only. ReadAll never moves the append cursor.
type Log struct {
	path    string
	file    *os.File
	size    int64 // byte offset just past the last complete line
	last    float32
	hasLast bool
	closed  bool // set by Close; a nil file alone means a failed reopen
	now     func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the wall clock used by Record.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// Open opens or creates the log at path and recovers the last recorded
// value from its final non-empty line. A trailing fragment without a
// newline is a torn write from an interrupted append and is cut off; a
// complete final line that does not parse is a MalformedLog fault.
func Open(path string, opts ...Option) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fault.Wrap(fault.Storage, "open log", fmt.Errorf("mkdir %q: %w", filepath.Dir(path), err))
	}
	l := &Log{path: path, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.reopen(); err != nil {
		return nil, err
	}
	return l, nil
}

// reopen (re)binds l to the file at l.path and rescans it.
func (l *Log) reopen() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fault.Wrap(fault.Storage, "open log", err)
	}
	l.file = f
	if err := l.load(); err != nil {
		_ = f.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Log) load() error {
	info, err := l.file.Stat()
	if err != nil {
		return fault.Wrap(fault.Storage, "open log", err)
	}
	size := info.Size()

	br := bufio.NewReader(io.NewSectionReader(l.file, 0, size))
	var (
		offset   int64
		complete int64
		lastLine string
	)
	for {
		line, readErr := br.ReadString('\n')
		offset += int64(len(line))
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fault.Wrap(fault.Storage, "open log", readErr)
		}
		complete = offset
		if s := strings.TrimSpace(line); s != "" {
			lastLine = s
		}
	}

	if complete < size {
		if err := l.file.Truncate(complete); err != nil {
			return fault.Wrap(fault.Storage, "open log", fmt.Errorf("cut torn tail: %w", err))
		}
	}
	l.size = complete

	l.hasLast = false
	l.last = 0
	if lastLine != "" {
		s, err := ParseLine(lastLine)
		if err != nil {
			return &fault.Error{Kind: fault.MalformedLog, Op: "open log", Msg: l.path, Err: err}
		}
		l.last, l.hasLast = s.Value, true
	}
	return nil
}

// ready rebinds the file when an earlier Swap renamed the replacement into
// place but could not reopen it.
func (l *Log) ready() error {
	if l.closed {
		return ErrClosed
	}
	if l.file == nil {
		return l.reopen()
	}
	return nil
}

// Path returns the file backing the log.
func (l *Log) Path() string { return l.path }

// LastValue returns the most recently written value, if any.
func (l *Log) LastValue() (float32, bool) { return l.last, l.hasLast }

// Changed reports whether next differs from prev by at least Epsilon. The
// difference is rounded to 1e-4 first so that float32 representation error
// cannot hide a reported 0.01 step.
func Changed(prev, next float32) bool {
	d := math.Abs(float64(prev) - float64(next))
	return math.Round(d*1e4) >= Epsilon*1e4
}

// Record appends value stamped with the current time (whole seconds) unless
// it is within Epsilon of the last recorded value. It reports whether a
// line was written.
func (l *Log) Record(value float32) (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	if l.hasLast && !Changed(l.last, value) {
		return false, nil
	}
	if err := l.RecordAt(l.now().Truncate(time.Second), value); err != nil {
		return false, err
	}
	return true, nil
}

// RecordAt appends one sample verbatim.
func (l *Log) RecordAt(t time.Time, value float32) error {
	return l.RecordBatch([]Sample{{Time: t, Value: value}})
}

// RecordBatch appends samples verbatim without deduplication; the caller
// has already filtered them. The last value becomes that of the final
// sample, or is left unchanged for an empty batch.
func (l *Log) RecordBatch(samples []Sample) error {
	if err := l.ready(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, s := range samples {
		buf.WriteString(FormatLine(s))
		buf.WriteByte('\n')
	}
	n, err := l.file.Write(buf.Bytes())
	if err == nil {
		err = l.file.Sync()
	}
	if err != nil {
		if n > 0 {
			// Drop whatever part of the batch reached the file.
			_ = l.file.Truncate(l.size)
		}
		return fault.Wrap(fault.Storage, "append", err)
	}
	l.size += int64(n)
	l.last, l.hasLast = samples[len(samples)-1].Value, true
	return nil
}

// ReadAll parses the whole log. The in-memory state is untouched, including
// on failure. Until a writer reopens a log whose reopen failed, ReadAll
// reads the file by path.
func (l *Log) ReadAll() ([]Sample, error) {
	if l.closed {
		return nil, ErrClosed
	}
	if l.file == nil {
		return ReadFile(l.path)
	}
	samples, err := Decode(io.NewSectionReader(l.file, 0, l.size))
	if err != nil {
		return nil, fmt.Errorf("record: read %s: %w", l.path, err)
	}
	return samples, nil
}

// ReadFile parses the log at path without opening it for writing, so it can
// be used while another process appends. A trailing line without a newline
// is an append in progress and is ignored. A missing file has no samples.
func ReadFile(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fault.Wrap(fault.Storage, "read log", err)
	}
	if i := bytes.LastIndexByte(data, '\n'); i+1 < len(data) {
		data = data[:i+1]
	}
	samples, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("record: read %s: %w", path, err)
	}
	return samples, nil
}

// StagedPath is where Stage writes the replacement contents for the log at
// path.
func StagedPath(path string) string { return path + stagedSuffix }

// Stage writes samples to the staged replacement file and syncs it. The
// live log is not touched until Swap.
func (l *Log) Stage(samples []Sample) error {
	staged := StagedPath(l.path)
	f, err := os.OpenFile(staged, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fault.Wrap(fault.Storage, "stage log", err)
	}
	if err := Encode(f, samples); err != nil {
		_ = f.Close()
		_ = os.Remove(staged)
		return fault.Wrap(fault.Storage, "stage log", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(staged)
		return fault.Wrap(fault.Storage, "stage log", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(staged)
		return fault.Wrap(fault.Storage, "stage log", err)
	}
	return nil
}

// Swap atomically moves the staged replacement over the live log and
// reopens it. The last value is recomputed from the new contents.
func (l *Log) Swap() error {
	if l.closed {
		return ErrClosed
	}
	if err := os.Rename(StagedPath(l.path), l.path); err != nil {
		return fault.Wrap(fault.Storage, "swap log", err)
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	return l.reopen()
}

// Replace rewrites the log to contain exactly samples.
func (l *Log) Replace(samples []Sample) error {
	if err := l.Stage(samples); err != nil {
		return err
	}
	return l.Swap()
}

// DiscardStaged removes a leftover staged replacement for the log at path.
func DiscardStaged(path string) error {
	if err := os.Remove(StagedPath(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("record: discard staged: %w", err)
	}
	return nil
}

// PromoteStaged moves a leftover staged replacement over the log at path.
// It reports false when there was nothing staged.
func PromoteStaged(path string) (bool, error) {
	if err := os.Rename(StagedPath(path), path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("record: promote staged: %w", err)
	}
	return true, nil
}

// Close releases the file. Further operations return ErrClosed.
func (l *Log) Close() error {
	l.closed = true
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
