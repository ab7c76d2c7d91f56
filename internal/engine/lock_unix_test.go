//go:build unix

package engine

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestNew_DataDirIsExclusive(t *testing.T) {
	base := t.TempDir()
	opts := Options{DataDir: filepath.Join(base, "data"), ConfigDir: filepath.Join(base, "config")}

	first, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(opts); !errors.Is(err, ErrLocked) {
		t.Fatalf("second New = %v, want ErrLocked", err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
	second, err := New(opts)
	if err != nil {
		t.Fatalf("New after Close: %v", err)
	}
	_ = second.Close()
}
