// Package lock provides the non-blocking exclusive lock that serializes gate
// invocations across processes.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// File is an advisory lock on a sentinel file (flock(2) on Unix, LockFileEx on Windows).
// The sentinel is created on demand and never removed. One File also excludes
// goroutines sharing it: flock alone would let the holding handle in again.
type File struct {
	path string
	fl   *flock.Flock

	mu   sync.Mutex
	held bool
}

func NewFile(path string) *File {
	return &File{path: path, fl: flock.New(path)}
}

func (f *File) Path() string { return f.path }

// TryLock attempts to take the lock without blocking.
// (false, nil) means another holder has it.
func (f *File) TryLock() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return false, nil
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("lock dir: %w", err)
		}
	}
	ok, err := f.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", f.path, err)
	}
	f.held = ok
	return ok, nil
}

func (f *File) Unlock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.held {
		return nil
	}
	f.held = false
	if err := f.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", f.path, err)
	}
	return nil
}

// Memory is an in-process lock with the same contract as File.
// Handles created by the same Registry with the same name contend with each other.
type Memory struct {
	reg  *Registry
	name string
	held bool
}

// Registry is a set of named in-memory locks.
type Registry struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{held: map[string]bool{}}
}

// Handle returns a new lock handle for name.
func (r *Registry) Handle(name string) *Memory {
	return &Memory{reg: r, name: name}
}

// Held reports whether name is currently locked.
func (r *Registry) Held(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held[name]
}

func (m *Memory) TryLock() (bool, error) {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	if m.reg.held[m.name] {
		return false, nil
	}
	m.reg.held[m.name] = true
	m.held = true
	return true, nil
}

func (m *Memory) Unlock() error {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	if m.held {
		delete(m.reg.held, m.name)
		m.held = false
	}
	return nil
}
