//go:build !unix

package engine

// dirLock is a no-op where flock(2) is unavailable.
type dirLock struct{}

func acquireLock(string) (*dirLock, error) { return &dirLock{}, nil }

func (*dirLock) release() error { return nil }
