// Package resilience keeps per-platform circuit breaker and rate limiter state
// in a file shared by every konnector process, guarded by a file lock.
package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

const (
	// StateFileName is the default state file name.
	StateFileName = "state.json"

	// DefaultDirName is the subdirectory within the cache dir.
	DefaultDirName = "resilience"

	// LockTimeout bounds the wait for the file lock. Past it, the operation
	// runs unlocked.
	LockTimeout = 100 * time.Millisecond

	lockPollInterval = 10 * time.Millisecond
)

// Store reads and writes the shared state file.
type Store struct {
	dir string
}

// NewStore returns a store in dir, or in the user cache directory when dir
// is empty.
func NewStore(dir string) *Store {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil || base == "" {
			base = os.TempDir()
		}
		dir = filepath.Join(base, "konnector", DefaultDirName)
	}
	return &Store{dir: dir}
}

// Path returns the full path to the state file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, StateFileName)
}

// withLock runs fn holding the directory lock, or without it once
// LockTimeout passes.
func (s *Store) withLock(fn func() error) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	fl := flock.New(filepath.Join(s.dir, ".lock"))
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, lockPollInterval)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("locking resilience state: %w", err)
	}
	if locked {
		defer func() { _ = fl.Unlock() }()
	}
	return fn()
}

// Load reads the state. A missing, corrupt or outdated file yields an empty
// state.
func (s *Store) Load() (*State, error) {
	var state *State
	err := s.withLock(func() error {
		var err error
		state, err = s.read()
		return err
	})
	return state, err
}

// Save replaces the state file atomically.
func (s *Store) Save(state *State) error {
	return s.withLock(func() error {
		return s.write(state)
	})
}

// Update runs a read-modify-write cycle under one lock. Nothing is written
// when fn fails.
func (s *Store) Update(fn func(*State) error) error {
	return s.withLock(func() error {
		state, err := s.read()
		if err != nil {
			return err
		}
		if err := fn(state); err != nil {
			return err
		}
		return s.write(state)
	})
}

// Clear removes the state file.
func (s *Store) Clear() error {
	return s.withLock(func() error {
		err := os.Remove(s.Path())
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
}

func (s *Store) read() (*State, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return nil, err
	}

	var state State
	if json.Unmarshal(data, &state) != nil || state.Version != StateVersion {
		return NewState(), nil
	}
	if state.Platforms == nil {
		state.Platforms = make(map[string]*PlatformState)
	}
	return &state, nil
}

func (s *Store) write(state *State) error {
	state.Version = StateVersion

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Unique temp name so unlocked writers never collide.
	tmp := fmt.Sprintf("%s.%d.%d.tmp", s.Path(), os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if runtime.GOOS == "windows" {
		_ = os.Remove(s.Path())
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
