package app

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"phasesync/internal/domain"
	"phasesync/internal/store"
)

// chanSubscriber collects room events on a channel
type chanSubscriber struct {
	events chan *domain.RoomEvent
	mu     sync.Mutex
	closed bool
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{events: make(chan *domain.RoomEvent, 64)}
}

func (s *chanSubscriber) Send(event *domain.RoomEvent) error {
	s.events <- event
	return nil
}

func (s *chanSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *chanSubscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// next waits for the next event of type want, skipping others
func (s *chanSubscriber) next(t *testing.T, want domain.EventType) *domain.RoomEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event := <-s.events:
			if event.Type == want {
				return event
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", want)
			return nil
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRoom(t *testing.T, settings RoomSettings) (*Room, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	room := NewRoom("ROOM01", domain.NewSnapshot(), settings, st, discardLogger())
	t.Cleanup(room.Close)
	return room, st
}

// failingSubscriber refuses every event
type failingSubscriber struct {
	err error
}

func (s failingSubscriber) Send(*domain.RoomEvent) error { return s.err }
func (s failingSubscriber) Close() error                 { return nil }
