// Package region holds the detection region of interest and persists it
// across restarts. The polygon is replaced wholesale, never edited in place,
// and persistence I/O happens outside the lock so pipeline reads are never
// blocked on disk.
package region

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fenceline/catsentry/internal/fsutil"
	"github.com/fenceline/catsentry/internal/geometry"
	"github.com/fenceline/catsentry/internal/security"
)

// record is the on-disk representation of the region file.
type record struct {
	Points geometry.Polygon `json:"points"`
}

// Store holds the current region polygon and its backing file.
type Store struct {
	path string
	fs   fsutil.FileSystem

	mu     sync.RWMutex
	points geometry.Polygon
}

// NewStore creates a Store backed by the given file path. A relative path
// must stay inside the working directory; absolute paths are taken as given.
// The parent directory is created if missing. A nil filesystem defaults to
// the real one.
func NewStore(path string, filesystem fsutil.FileSystem) (*Store, error) {
	if filesystem == nil {
		filesystem = fsutil.OSFileSystem{}
	}
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		if err := security.ValidatePathWithinDirectory(path, cwd); err != nil {
			return nil, fmt.Errorf("region file path: %w", err)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := filesystem.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create region directory %s: %w", dir, err)
		}
	}
	return &Store{path: path, fs: filesystem}, nil
}

// Load reads the persisted polygon into memory. A missing file is not an
// error and leaves the region empty. A malformed file returns an error and
// leaves the in-memory region unchanged; callers log and continue.
func (s *Store) Load() error {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read region file %s: %w", s.path, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("parse region file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.points = rec.Points
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current polygon.
func (s *Store) Get() geometry.Polygon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points.Clone()
}

// Len returns the number of points in the current polygon.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Replace persists the given polygon and then swaps it in as the current
// region. If the write fails the in-memory region is left unchanged, so
// memory and disk cannot silently diverge after a failed save.
func (s *Store) Replace(points geometry.Polygon) error {
	saved := points.Clone()
	data, err := json.Marshal(record{Points: saved})
	if err != nil {
		return fmt.Errorf("encode region: %w", err)
	}
	if err := s.fs.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write region file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.points = saved
	s.mu.Unlock()
	return nil
}

// Clear empties the in-memory region and removes the backing file. The
// in-memory region is cleared even if the file removal fails; a missing
// file is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.points = nil
	s.mu.Unlock()

	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove region file %s: %w", s.path, err)
	}
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }
