// Package store persists room snapshots so shared state survives relay
// restarts and outlives the participants that wrote it.
package store

import (
	"context"

	"github.com/pkg/errors"

	"phasesync/internal/domain"
)

// Store errors
var (
	ErrNotFound    = errors.New("snapshot not found")
	ErrInvalidCode = errors.New("invalid room code")
)

// Store loads and saves room snapshots by room code
type Store interface {
	Load(ctx context.Context, roomCode string) (domain.Snapshot, error)
	Save(ctx context.Context, roomCode string, snapshot domain.Snapshot) error
	Delete(ctx context.Context, roomCode string) error
	List(ctx context.Context) ([]string, error)
}
