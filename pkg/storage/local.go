// Package storage persists archived export files on local disk and issues
// HMAC-signed download tokens so archives can be fetched without a session.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore keeps archive files under a single base directory.
type LocalStore struct {
	baseDir string
}

// NewLocalStore ensures the base directory exists and returns a handle.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = "./data/exports"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Save writes the archive bytes under the base directory and returns the
// stored filename.
func (s *LocalStore) Save(filename string, data []byte) (string, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write archive file: %w", err)
	}
	return filename, nil
}

// Open returns a read handle for a stored archive.
func (s *LocalStore) Open(filename string) (io.ReadCloser, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive file: %w", err)
	}
	return file, nil
}

// Remove deletes a stored archive. Missing files are not an error.
func (s *LocalStore) Remove(filename string) error {
	path, err := s.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete archive file: %w", err)
	}
	return nil
}

// Sweep deletes archives older than the retention window and reports how
// many were removed.
func (s *LocalStore) Sweep(retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	removed := 0
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep archives: %w", err)
	}
	return removed, nil
}

// resolve joins the filename onto the base directory, rejecting anything
// that would escape it. Tokens carry filenames verbatim so traversal must
// be blocked here.
func (s *LocalStore) resolve(filename string) (string, error) {
	cleaned := filepath.Clean(filename)
	if cleaned == "." || filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid archive filename %q", filename)
	}
	return filepath.Join(s.baseDir, cleaned), nil
}
