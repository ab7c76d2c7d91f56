package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fsutil"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/record"
)

// deletedStampLayout stamps soft-deleted files with the deletion minute.
const deletedStampLayout = "20060102-1504"

// List returns the metadata of every archive in roomDir, sorted by Less. A
// room without an archives directory has no archives.
func List(roomDir string) ([]Meta, error) {
	dir := filepath.Join(roomDir, DirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fault.Wrap(fault.Storage, "list archives", err)
	}
	var metas []Meta
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != metaExt {
			continue
		}
		var m Meta
		if _, err := toml.DecodeFile(filepath.Join(dir, name), &m); err != nil {
			return nil, fault.Wrap(fault.Storage, "list archives", fmt.Errorf("%s: %w", name, err))
		}
		metas = append(metas, m)
	}
	Sort(metas)
	return metas, nil
}

// Stat returns the metadata of the archive called name.
func Stat(roomDir, name string) (Meta, error) {
	if err := ValidateName(name); err != nil {
		return Meta{}, err
	}
	var m Meta
	if _, err := toml.DecodeFile(filepath.Join(roomDir, DirName, name+metaExt), &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Meta{}, fault.Newf(fault.ArchiveNotFound, "stat archive", "%q", name)
		}
		return Meta{}, fault.Wrap(fault.Storage, "stat archive", err)
	}
	return m, nil
}

// Read returns the samples of the archive called name.
func Read(roomDir, name string) ([]record.Sample, error) {
	f, err := openData(roomDir, name, "read archive")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	samples, err := record.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", name, err)
	}
	return samples, nil
}

func openData(roomDir, name, op string) (*os.File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(roomDir, DirName, name+dataExt))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Newf(fault.ArchiveNotFound, op, "%q", name)
		}
		return nil, fault.Wrap(fault.Storage, op, err)
	}
	return f, nil
}

// Delete moves the archive called name into roomDir/deleted. Its files are
// renamed to "<file>.<YYYYmmdd-HHMM>.<n>" with n the smallest suffix free
// for both files. A missing archive is an ArchiveNotFound fault and changes
// nothing.
func Delete(roomDir, name string, now time.Time) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	dir := filepath.Join(roomDir, DirName)
	dataPath := filepath.Join(dir, name+dataExt)
	metaPath := filepath.Join(dir, name+metaExt)
	if !fsutil.Exists(dataPath) && !fsutil.Exists(metaPath) {
		return fault.Newf(fault.ArchiveNotFound, "delete archive", "%q", name)
	}

	deleted := filepath.Join(roomDir, DeletedName)
	if err := os.MkdirAll(deleted, 0o755); err != nil {
		return fault.Wrap(fault.Storage, "delete archive", err)
	}
	stamp := now.Format(deletedStampLayout)
	target := func(path string, n int) string {
		return filepath.Join(deleted, fmt.Sprintf("%s.%s.%d", filepath.Base(path), stamp, n))
	}
	n := 0
	for fsutil.Exists(target(dataPath, n)) || fsutil.Exists(target(metaPath, n)) {
		n++
	}

	// The metadata goes first so a half-finished delete never lists an
	// archive whose data is gone.
	for _, p := range []string{metaPath, dataPath} {
		if err := os.Rename(p, target(p, n)); err != nil && !os.IsNotExist(err) {
			return fault.Wrap(fault.Storage, "delete archive", err)
		}
	}
	return nil
}

// Copy streams the stored data file of the archive called name to w.
func Copy(roomDir, name string, w io.Writer) error {
	f, err := openData(roomDir, name, "export archive")
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fault.Wrap(fault.Storage, "export archive", err)
	}
	return nil
}
