package store

import (
	"context"
	"sort"
	"sync"

	"phasesync/internal/domain"
)

// MemoryStore keeps snapshots in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.Snapshot
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]domain.Snapshot),
	}
}

// Load returns a copy of the snapshot saved for roomCode
func (s *MemoryStore) Load(_ context.Context, roomCode string) (domain.Snapshot, error) {
	if roomCode == "" {
		return domain.Snapshot{}, ErrInvalidCode
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[roomCode]
	if !ok {
		return domain.Snapshot{}, ErrNotFound
	}
	return snapshot.Clone(), nil
}

// Save stores a copy of snapshot
func (s *MemoryStore) Save(_ context.Context, roomCode string, snapshot domain.Snapshot) error {
	if roomCode == "" {
		return ErrInvalidCode
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[roomCode] = snapshot.Clone()
	return nil
}

// Delete removes the snapshot for roomCode
func (s *MemoryStore) Delete(_ context.Context, roomCode string) error {
	if roomCode == "" {
		return ErrInvalidCode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[roomCode]; !ok {
		return ErrNotFound
	}
	delete(s.snapshots, roomCode)
	return nil
}

// List returns every stored room code, sorted
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.snapshots))
	for code := range s.snapshots {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}
