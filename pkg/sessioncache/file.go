// Package sessioncache persists the raw login response of an Elvis session so
// later client instances can skip the network login. It stores opaque JSON
// documents and knows nothing about their contents, which keeps it a leaf
// package importable by the SDK and by host applications alike.
//
// Both stores are first-writer-wins: Save never replaces an existing document.
package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultPath is the cache location used when none is configured.
const DefaultPath = "elviscache.idv"

// FilePerms restricts cache files to owner-only read/write. The document
// carries a live session id or CSRF token.
const FilePerms = 0o600

// DirPerms is used when creating parent directories of the cache file.
const DirPerms = 0o700

// FileStore keeps the session document in a single JSON file.
//
// There is no locking across processes. Two instances racing a first login
// both talk to the service; the atomic create-if-absent in Save guarantees
// one complete document wins and the other is discarded.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore returns a store for path. An empty path selects DefaultPath.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if path == "" {
		path = DefaultPath
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &FileStore{path: path, logger: logger}
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the cached document. Returns (nil, nil) if the file does not exist.
func (s *FileStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("sessioncache: reading %s: %w", s.path, err)
	}

	return data, nil
}

// Save writes doc only if no cache file exists yet and reports whether this
// call created it. The document is written to a temp file in the same
// directory and hard-linked into place, so readers never observe a partial
// file and an existing file is never replaced.
func (s *FileStore) Save(_ context.Context, doc []byte) (bool, error) {
	if _, err := os.Stat(s.path); err == nil {
		s.logger.Debug("session cache already present, not overwriting",
			slog.String("path", s.path),
		)

		return false, nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return false, fmt.Errorf("sessioncache: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".elviscache-*.tmp")
	if err != nil {
		return false, fmt.Errorf("sessioncache: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return false, fmt.Errorf("sessioncache: setting permissions: %w", err)
	}

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return false, fmt.Errorf("sessioncache: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, fmt.Errorf("sessioncache: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("sessioncache: closing: %w", err)
	}

	// link(2) fails with EEXIST instead of replacing, unlike rename(2).
	if err := os.Link(tmpPath, s.path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			s.logger.Debug("lost session cache race, keeping existing file",
				slog.String("path", s.path),
			)

			return false, nil
		}

		return false, fmt.Errorf("sessioncache: installing %s: %w", s.path, err)
	}

	s.logger.Info("session cache written", slog.String("path", s.path))

	return true, nil
}

// Clear removes the cache file. No error if it does not exist.
func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sessioncache: removing %s: %w", s.path, err)
	}

	return nil
}
