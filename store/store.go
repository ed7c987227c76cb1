// Package store provides persist.Store implementations for save slots:
// in memory, on disk, in SQLite and in Redis.
package store

import (
	"strings"

	"github.com/oriumgames/persist"
	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound is returned for missing blobs. It matches
	// persist.ErrBlobNotFound with errors.Is.
	ErrNotFound = persist.ErrBlobNotFound

	// ErrInvalidName is returned for blob names that cannot be stored.
	ErrInvalidName = eris.New("store: invalid blob name")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = eris.New("store: closed")
)

// validName rejects names that would escape a directory or key space.
func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\\x00") {
		return eris.Wrapf(ErrInvalidName, "%q", name)
	}
	return nil
}

// notFound wraps ErrNotFound with the blob name.
func notFound(name string) error {
	return eris.Wrapf(ErrNotFound, "blob %q", name)
}
