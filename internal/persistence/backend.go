package persistence

//go:generate mockgen -source=backend.go -destination=./mocks/mock_backend.go -package=mocks

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no current state has been saved yet.
var ErrNotFound = errors.New("persistence: no saved state")

// File names shared by the backends.
const (
	currentName = "status.cf"
	tempName    = "~status.cf"
	historyDir  = "history"
)

// Backend stores serialized collector state. Implementations must be safe
// for concurrent use.
type Backend interface {
	// Load returns the current state, or ErrNotFound if none exists.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the current state. Readers never observe a partial write.
	Save(ctx context.Context, data []byte) error

	// SaveSnapshot stores an immutable history entry named after timestamp.
	// Saving the same timestamp twice overwrites the entry.
	SaveSnapshot(ctx context.Context, timestamp string, data []byte) error
}

// Snapshotter produces the serialized state to persist.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

func historyName(timestamp string) string {
	return "status_" + timestamp + ".cf"
}
