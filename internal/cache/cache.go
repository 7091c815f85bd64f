// Package cache stores merged artifacts on disk under deterministic names.
//
// Entries are created lazily and are write-once: an existing entry is never
// replaced unless the caller forces it, and nothing is ever evicted. Writes
// go to a temporary file in the same directory which is flushed and closed
// before it is linked (or, when forced, renamed) into place, so readers never
// observe a partial artifact.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/assetpack/assetpack/internal/config"
)

const (
	tempPrefix = ".tmp-"
	locksDir   = ".locks"

	lockRetryDelay = 25 * time.Millisecond
)

// WriteError is returned when an artifact cannot be persisted. It is fatal to
// the render that triggered the write.
type WriteError struct {
	Name string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write artifact %q: %v", e.Name, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Store is a directory of artifacts.
type Store struct {
	dir string
}

// New opens dir, creating it if needed. A directory that cannot be created is
// reported as a configuration error.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, &config.Error{Field: "assets.base_path", Err: errors.New("cache directory is not set")}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &config.Error{Field: "assets.base_path", Err: fmt.Errorf("unusable cache directory: %w", err)}
	}

	fi, err := os.Stat(dir)
	if err != nil {
		return nil, &config.Error{Field: "assets.base_path", Err: fmt.Errorf("unusable cache directory: %w", err)}
	}
	if !fi.IsDir() {
		return nil, &config.Error{Field: "assets.base_path", Err: fmt.Errorf("unusable cache directory: %s is not a directory", dir)}
	}

	return &Store{dir: dir}, nil
}

// Sub returns the store rooted at a subdirectory.
func (s *Store) Sub(name string) (*Store, error) {
	if err := checkName(name); err != nil {
		return nil, &config.Error{Field: "assets.base_path", Err: err}
	}
	return New(filepath.Join(s.dir, name))
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) Exists(name string) bool {
	if checkName(name) != nil {
		return false
	}
	fi, err := os.Stat(s.Path(name))
	return err == nil && fi.Mode().IsRegular()
}

func (s *Store) Read(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return os.ReadFile(s.Path(name))
}

// Write persists data under name. Without force, an existing entry is kept
// as is, including one that appears concurrently.
func (s *Store) Write(name string, data []byte, force bool) error {
	if err := checkName(name); err != nil {
		return &WriteError{Name: name, Err: err}
	}

	if !force && s.Exists(name) {
		return nil
	}

	tmp, err := s.writeTemp(name, data)
	if err != nil {
		return &WriteError{Name: name, Err: err}
	}
	defer os.Remove(tmp)

	target := s.Path(name)

	if force {
		if err := os.Rename(tmp, target); err != nil {
			return &WriteError{Name: name, Err: err}
		}
		return nil
	}

	err = os.Link(tmp, target)
	switch {
	case err == nil, errors.Is(err, fs.ErrExist):
		return nil
	default:
		// Filesystems without hard links. Concurrent writers produce identical
		// bytes for a name, so losing the race is harmless.
		if err := os.Rename(tmp, target); err != nil {
			return &WriteError{Name: name, Err: err}
		}
		return nil
	}
}

func (s *Store) writeTemp(name string, data []byte) (string, error) {
	f, err := os.CreateTemp(s.dir, tempPrefix+name+"-*")
	if err != nil {
		return "", err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}

	if err := f.Chmod(0644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

// Lock takes an exclusive cross-process lock for building name. The returned
// function releases it.
func (s *Store) Lock(ctx context.Context, name string) (func(), error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.dir, locksDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, name+".lock"))
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire lock for %q: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lock for %q: %w", name, ctx.Err())
	}

	return func() { _ = lock.Unlock() }, nil
}

type Stats struct {
	Artifacts int
	Bytes     int64
}

// Stats counts the stored entries, including those in subdirectories.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != s.dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		st.Artifacts++
		st.Bytes += fi.Size()
		return nil
	})
	return st, err
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}
