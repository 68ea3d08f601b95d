package persist

import (
	"context"
	"errors"
)

// Storage defines the interface for snapshot backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Save stores data under name, overwriting any previous snapshot.
	Save(ctx context.Context, name string, data []byte) error

	// Load returns the snapshot stored under name.
	// Returns (nil, nil) if there is none.
	Load(ctx context.Context, name string) ([]byte, error)

	// Delete removes the snapshot. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context, name string) error

	// Close releases resources held by the storage. It does not close
	// clients passed in by the caller.
	Close() error
}

// ErrStorageClosed is returned when operations are attempted on a closed
// storage.
var ErrStorageClosed = errors.New("persist: storage is closed")
