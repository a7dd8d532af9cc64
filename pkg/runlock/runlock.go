// Package runlock implements cooperative cancellation through a marker file.
// The run continues while the file exists; removing it by any means asks
// the run to stop after the sample in progress.
package runlock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const marker = "LOCK"

// Lock tracks an external marker file
type Lock struct {
	path string
}

// New creates a lock for path. Nothing is touched on disk.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the marker path
func (l *Lock) Path() string {
	return l.path
}

// Acquire writes the marker unless it already exists
func (l *Lock) Acquire() error {
	if l.Held() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock folder: %w", err)
	}
	if err := os.WriteFile(l.path, []byte(marker), 0o644); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// Held reports whether the marker is present
func (l *Lock) Held() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// Release removes the marker if present
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
