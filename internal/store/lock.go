package store

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// flock is a file-level advisory lock guarding mutating sequences. The
// resolution rebuild deletes and re-inserts derived edges non-atomically with
// respect to other writers, so concurrent indexers sharing a database file
// must serialize through this lock.
type flock struct {
	path string

	mu sync.Mutex
	f  *os.File
}

func newFlock(path string) *flock {
	return &flock{path: path}
}

func (l *flock) acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return fmt.Errorf("flock %s: %w", l.path, err)
	}
	l.f = f
	return nil
}

func (l *flock) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	l.f.Close()
	l.f = nil
}

// Lock takes the store's advisory write lock, blocking until available.
func (s *Store) Lock() error {
	return s.lock.acquire()
}

// Unlock releases the advisory write lock.
func (s *Store) Unlock() {
	s.lock.release()
}
