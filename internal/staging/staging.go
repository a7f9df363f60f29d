// Package staging implements the Staging Store: a randomly-named on-disk
// scratch directory that materializes archive streams to private files,
// and the divergence algorithm that decides when a lookup entry can be
// repurposed in place versus when it must split into a new entry
// (SPEC_FULL.md §4.3, the core algorithm).
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/wimfuse/wimfuse/internal/catalog"
)

// NameSource supplies the randomness the divergence algorithm needs:
// staging filename suffixes and placeholder content hashes. It is an
// interface so tests can inject deterministic sequences instead of real
// UUIDs.
type NameSource interface {
	NewSuffix() string
	NewPlaceholderHash() catalog.Hash
}

// UUIDNameSource is the production NameSource, backed by
// github.com/google/uuid.
type UUIDNameSource struct{}

func (UUIDNameSource) NewSuffix() string {
	return uuid.NewString()
}

func (UUIDNameSource) NewPlaceholderHash() catalog.Hash {
	// A placeholder hash only needs to be unique until commit rehashes
	// it (§9); two concatenated UUIDs give ample width over the 20
	// hash bytes.
	a := uuid.New()
	b := uuid.New()
	var h catalog.Hash
	copy(h[:16], a[:])
	copy(h[16:], b[:4])
	return h
}

// Store owns one mount's staging directory.
type Store struct {
	dir   string
	names NameSource
}

// NewStore creates a fresh, randomly-suffixed staging directory under
// baseDir (the process's initial working directory, per §3).
func NewStore(baseDir string, names NameSource) (*Store, error) {
	dir, err := os.MkdirTemp(baseDir, "wimfuse-staging-*")
	if err != nil {
		return nil, fmt.Errorf("staging: create staging directory: %w", err)
	}
	return &Store{dir: dir, names: names}, nil
}

// Dir returns the staging directory's path.
func (s *Store) Dir() string {
	return s.dir
}

// Close removes the staging directory recursively, regardless of commit
// outcome (§4.7 step 4).
func (s *Store) Close() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("staging: remove staging directory: %w", err)
	}
	return nil
}

// createFile creates a new, empty staging file with a randomly
// generated name suffix, retrying on name collision, opened for
// read-write with mode 0600 (§4.3 step 1).
func (s *Store) createFile() (*os.File, string, error) {
	for {
		path := filepath.Join(s.dir, s.names.NewSuffix())
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("staging: create staging file: %w", err)
		}
		return f, path, nil
	}
}

// CloseError distinguishes a staging-file write failure from a later
// close failure on the same file descriptor (§9c): Cause is the original
// write error (nil if the write succeeded), CloseErr is the error
// returned by Close.
type CloseError struct {
	Cause    error
	CloseErr error
}

func (e *CloseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("staging: close after failed write: write error: %v; close error: %v", e.Cause, e.CloseErr)
	}
	return fmt.Sprintf("staging: close: %v", e.CloseErr)
}

func (e *CloseError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Cause, e.CloseErr}
	}
	return []error{e.CloseErr}
}

// CloseFile closes f. If the close fails, the result is a *CloseError
// carrying both the prior write error (writeErr, possibly nil) and the
// close error, so callers never lose one in favor of the other; if only
// the write failed, writeErr is returned as is.
func CloseFile(f *os.File, writeErr error) error {
	closeErr := f.Close()
	if writeErr == nil && closeErr == nil {
		return nil
	}
	if closeErr == nil {
		return writeErr
	}
	return &CloseError{Cause: writeErr, CloseErr: closeErr}
}
