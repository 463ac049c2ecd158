package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a fileID has no row in the manifest.
	ErrNotFound = errors.New("file not found in manifest")
	// ErrNotAvailable is returned when a manifest entry exists but its
	// content cannot be produced: the blob is missing from the store
	// (sparse backup) or the store is encrypted. Callers should treat
	// this as an expected, recoverable condition.
	ErrNotAvailable = errors.New("content not available")
)

// StoreCorruptError means the backup's manifest index itself could not
// be opened or queried. An empty query result is NOT this error.
type StoreCorruptError struct {
	Path string
	Err  error
}

func (e *StoreCorruptError) Error() string {
	return fmt.Sprintf("backup store corrupt at %s: %v", e.Path, e.Err)
}

func (e *StoreCorruptError) Unwrap() error {
	return e.Err
}
