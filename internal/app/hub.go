package app

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"phasesync/internal/domain"
	"phasesync/internal/metrics"
	"phasesync/internal/store"
)

const (
	// DefaultRoomCodeLength is the default length for room codes
	DefaultRoomCodeLength = 6

	// DefaultStaleRoomTimeout is how long an empty room stays in memory
	DefaultStaleRoomTimeout = 2 * time.Hour

	// DefaultCleanupInterval is how often stale rooms are evicted
	DefaultCleanupInterval = 10 * time.Minute
)

// RoomCodeChars are characters used for room codes (no ambiguous chars)
const RoomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// HubSettings configures a Hub
type HubSettings struct {
	RoomCodeLength   int
	StaleRoomTimeout time.Duration
	CleanupInterval  time.Duration
	Room             RoomSettings
}

// DefaultHubSettings returns the default hub settings
func DefaultHubSettings() HubSettings {
	return HubSettings{
		RoomCodeLength:   DefaultRoomCodeLength,
		StaleRoomTimeout: DefaultStaleRoomTimeout,
		CleanupInterval:  DefaultCleanupInterval,
		Room:             DefaultRoomSettings(),
	}
}

// Hub manages the rooms held in memory and restores persisted ones on demand
type Hub struct {
	rooms    map[string]*Room
	mu       sync.RWMutex
	store    store.Store
	settings HubSettings
	logger   *slog.Logger
	done     chan struct{}
	once     sync.Once
}

// NewHub creates a new room hub
func NewHub(st store.Store, settings HubSettings, logger *slog.Logger) *Hub {
	hub := &Hub{
		rooms:    make(map[string]*Room),
		store:    st,
		settings: settings,
		logger:   logger,
		done:     make(chan struct{}),
	}

	// Start cleanup goroutine
	if settings.CleanupInterval > 0 {
		go hub.cleanupLoop()
	}

	return hub
}

// CreateRoom creates a new room with empty shared state
func (h *Hub) CreateRoom(ctx context.Context) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Generate unique room code
	var roomCode string
	unique := false
	for attempts := 0; attempts < 10 && !unique; attempts++ {
		roomCode = h.generateRoomCode()
		unique = !h.existsLocked(ctx, roomCode)
	}
	if !unique {
		return nil, errors.New("failed to generate unique room code")
	}

	snapshot := domain.NewSnapshot()
	if err := h.store.Save(ctx, roomCode, snapshot); err != nil {
		return nil, errors.Wrap(err, "persist new room")
	}

	room := NewRoom(roomCode, snapshot, h.settings.Room, h.store, h.logger)
	h.rooms[roomCode] = room
	metrics.RoomOpened()

	h.logger.Info("room created", "roomCode", roomCode)

	return room, nil
}

// GetRoom returns a room by code, restoring it from the store if needed
func (h *Hub) GetRoom(ctx context.Context, roomCode string) (*Room, error) {
	h.mu.RLock()
	room, ok := h.rooms[roomCode]
	h.mu.RUnlock()
	if ok {
		return room, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// another caller may have restored it meanwhile
	if room, ok := h.rooms[roomCode]; ok {
		return room, nil
	}

	snapshot, err := h.store.Load(ctx, roomCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidCode) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, errors.Wrapf(err, "load room %s", roomCode)
	}

	room = NewRoom(roomCode, snapshot, h.settings.Room, h.store, h.logger)
	h.rooms[roomCode] = room
	metrics.RoomOpened()

	h.logger.Info("room restored", "roomCode", roomCode, "version", snapshot.Version)

	return room, nil
}

// RoomExists checks memory and the store for roomCode
func (h *Hub) RoomExists(ctx context.Context, roomCode string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.existsLocked(ctx, roomCode)
}

// DeleteRoom closes a room and removes its persisted state
func (h *Hub) DeleteRoom(ctx context.Context, roomCode string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[roomCode]; ok {
		room.Close()
		delete(h.rooms, roomCode)
		metrics.RoomClosed()
	}

	if err := h.store.Delete(ctx, roomCode); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrRoomNotFound
		}
		return errors.Wrapf(err, "delete room %s", roomCode)
	}

	h.logger.Info("room deleted", "roomCode", roomCode)
	return nil
}

// GetRoomCount returns the number of rooms held in memory
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// GetTotalParticipantCount returns the number of connected participants across all rooms
func (h *Hub) GetTotalParticipantCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, room := range h.rooms {
		total += room.GetConnectedCount()
	}
	return total
}

// GetStoredRoomCount returns the number of rooms in the store, including
// rooms evicted from memory
func (h *Hub) GetStoredRoomCount(ctx context.Context) (int, error) {
	codes, err := h.store.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list stored rooms")
	}
	return len(codes), nil
}

// Close shuts down the hub and all rooms. Persisted state is kept.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, room := range h.rooms {
		room.Close()
		metrics.RoomClosed()
	}
	h.rooms = make(map[string]*Room)
}

func (h *Hub) existsLocked(ctx context.Context, roomCode string) bool {
	if _, ok := h.rooms[roomCode]; ok {
		return true
	}
	_, err := h.store.Load(ctx, roomCode)
	return err == nil
}

// generateRoomCode generates a random room code
func (h *Hub) generateRoomCode() string {
	length := h.settings.RoomCodeLength
	if length <= 0 {
		length = DefaultRoomCodeLength
	}

	b := make([]byte, length)
	rand.Read(b)

	code := make([]byte, length)
	for i := range code {
		code[i] = RoomCodeChars[int(b[i])%len(RoomCodeChars)]
	}

	return string(code)
}

// cleanupLoop periodically evicts stale rooms
func (h *Hub) cleanupLoop() {
	ticker := time.NewTicker(h.settings.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.cleanupStaleRooms(time.Now())
		}
	}
}

// cleanupStaleRooms evicts rooms with nobody connected that have been idle
// for too long. Their shared state stays in the store.
func (h *Hub) cleanupStaleRooms(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	stale := make([]string, 0)
	for roomCode, room := range h.rooms {
		if room.GetConnectedCount() == 0 && now.Sub(room.GetLastActive()) > h.settings.StaleRoomTimeout {
			stale = append(stale, roomCode)
		}
	}

	for _, roomCode := range stale {
		if room, ok := h.rooms[roomCode]; ok {
			room.Close()
			delete(h.rooms, roomCode)
			metrics.RoomClosed()
			h.logger.Info("stale room evicted", "roomCode", roomCode)
		}
	}

	return len(stale)
}
