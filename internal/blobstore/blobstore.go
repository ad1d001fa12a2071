// Package blobstore persists the normalized text of each archived document
// as a write-once file.
//
// Writes go to a temp file in the target directory, are fsynced, and are
// then published under their final name with a hard link that refuses to
// overwrite. A reader never sees a partially written blob, and two saves
// never share a path.
package blobstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxNameAttempts = 8

// IOError reports a failed filesystem operation on a blob.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("blobstore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store writes blobs under a single directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory blobs are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Write stores content under name and returns the path it was published at.
// If name is taken, a short random suffix is added before the extension.
func (s *Store) Write(name, content string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", &IOError{Op: "write", Path: name, Err: errors.New("invalid blob name")}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", &IOError{Op: "mkdir", Path: s.dir, Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, ".blob-*.tmp")
	if err != nil {
		return "", &IOError{Op: "create", Path: s.dir, Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", &IOError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", &IOError{Op: "fsync", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &IOError{Op: "close", Path: tmpPath, Err: err}
	}

	candidate := name
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		final := filepath.Join(s.dir, candidate)
		err := os.Link(tmpPath, final)
		if err == nil {
			return final, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", &IOError{Op: "publish", Path: final, Err: err}
		}
		candidate = withSuffix(name, uuid.New().String()[:8])
	}
	return "", &IOError{Op: "publish", Path: filepath.Join(s.dir, name), Err: os.ErrExist}
}

// Read returns the content of the blob at path.
func (s *Store) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &IOError{Op: "read", Path: path, Err: err}
	}
	return string(data), nil
}

// Remove deletes the blob at path. A missing blob is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// withSuffix turns "20240101_000000_notes.md" into "20240101_000000_notes_1a2b3c4d.md".
func withSuffix(name, suffix string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + suffix + ext
}
