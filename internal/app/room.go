package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"phasesync/internal/domain"
	"phasesync/internal/metrics"
	"phasesync/internal/store"
)

// Subscriber receives the events of a room
type Subscriber interface {
	Send(event *domain.RoomEvent) error
	Close() error
}

// RoomSettings holds per-room limits
type RoomSettings struct {
	MaxParticipants int
	EventBuffer     int
}

// DefaultRoomSettings returns the default room settings
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		MaxParticipants: 32,
		EventBuffer:     100,
	}
}

// Room holds the authoritative shared state of one session and broadcasts
// every change to all subscribers, including the writer.
type Room struct {
	code         string
	snapshot     domain.Snapshot
	participants map[string]*domain.Participant
	createdAt    time.Time
	lastActive   time.Time
	settings     RoomSettings
	store        store.Store
	mu           sync.RWMutex

	clients   map[string]Subscriber // participantID -> subscriber
	clientsMu sync.RWMutex
	logger    *slog.Logger

	// Event channel for broadcasting
	events chan *domain.RoomEvent
	done   chan struct{}
}

// NewRoom creates a room starting from snapshot
func NewRoom(code string, snapshot domain.Snapshot, settings RoomSettings, st store.Store, logger *slog.Logger) *Room {
	if snapshot.State == nil {
		snapshot.State = make(map[string]string)
	}

	now := time.Now()
	room := &Room{
		code:         code,
		snapshot:     snapshot,
		participants: make(map[string]*domain.Participant),
		createdAt:    now,
		lastActive:   now,
		settings:     settings,
		store:        st,
		clients:      make(map[string]Subscriber),
		logger:       logger.With("roomCode", code),
		events:       make(chan *domain.RoomEvent, settings.EventBuffer),
		done:         make(chan struct{}),
	}

	// Start event broadcaster
	go room.eventLoop()

	return room
}

// GetRoomCode returns the room code
func (r *Room) GetRoomCode() string {
	return r.code
}

// GetCreatedAt returns when the room was created in memory
func (r *Room) GetCreatedAt() time.Time {
	return r.createdAt
}

// GetLastActive returns when the room last saw a join, leave or write
func (r *Room) GetLastActive() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActive
}

// GetParticipantCount returns the number of known participants
func (r *Room) GetParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// GetConnectedCount returns the number of connected participants
func (r *Room) GetConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connectedCountLocked()
}

// GetPhase returns the phase recorded in the shared state
func (r *Room) GetPhase() domain.Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Phase()
}

// Snapshot returns a copy of the current shared state
func (r *Room) Snapshot() domain.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Clone()
}

// GetParticipants returns the public view of all participants
func (r *Room) GetParticipants() []domain.ParticipantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participantInfoLocked()
}

// CanJoin checks if participantID may attach to the room
func (r *Room) CanJoin(participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.isClosed() {
		return false
	}
	if _, known := r.participants[participantID]; known {
		return true
	}
	return r.connectedCountLocked() < r.settings.MaxParticipants
}

// Join attaches a subscriber for participantID.
// The subscriber receives a CONNECTED event with the current snapshot before
// any later change. Joining with a known participant ID is a reconnect.
func (r *Room) Join(participantID string, sub Subscriber) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isClosed() {
		return false, domain.ErrRoomClosed
	}

	participant, reconnected := r.participants[participantID]
	if !reconnected && r.connectedCountLocked() >= r.settings.MaxParticipants {
		return false, domain.ErrRoomFull
	}

	wasConnected := reconnected && participant.IsConnected()
	if reconnected {
		if !wasConnected {
			metrics.ParticipantConnected()
		}
		participant.Reconnect()
	} else {
		participant = domain.NewParticipant(participantID)
		r.participants[participantID] = participant
		metrics.ParticipantConnected()
	}
	r.lastActive = time.Now()

	welcome := domain.NewParticipantEvent(domain.EventConnected, r.code, participantID, &domain.ConnectedPayload{
		ParticipantID: participantID,
		State:         domain.CopyState(r.snapshot.State),
		Version:       r.snapshot.Version,
		Reconnected:   reconnected,
	})

	r.clientsMu.Lock()
	if previous, ok := r.clients[participantID]; ok && previous != sub {
		previous.Close()
	}
	if err := sub.Send(welcome); err != nil {
		r.clientsMu.Unlock()
		switch {
		case !reconnected:
			delete(r.participants, participantID)
			metrics.ParticipantDisconnected()
		case !wasConnected:
			participant.Disconnect()
			metrics.ParticipantDisconnected()
		}
		return reconnected, errors.Wrap(err, "send snapshot")
	}
	r.clients[participantID] = sub
	r.clientsMu.Unlock()

	r.logger.Info("participant joined", "participantID", participantID, "reconnected", reconnected)
	r.queueEvent(domain.NewEvent(domain.EventParticipantJoined, r.code, &domain.PresencePayload{
		Participant:  participant.ToInfo(),
		Participants: r.participantInfoLocked(),
	}))

	return reconnected, nil
}

// Leave detaches sub and marks its participant disconnected.
// A subscriber already replaced by a reconnect is ignored.
func (r *Room) Leave(participantID string, sub Subscriber) {
	r.clientsMu.Lock()
	current, ok := r.clients[participantID]
	if !ok || current != sub {
		r.clientsMu.Unlock()
		return
	}
	delete(r.clients, participantID)
	r.clientsMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	participant, ok := r.participants[participantID]
	if !ok || !participant.IsConnected() {
		return
	}
	participant.Disconnect()
	metrics.ParticipantDisconnected()
	r.lastActive = time.Now()

	r.logger.Info("participant left", "participantID", participantID)
	r.queueEvent(domain.NewEvent(domain.EventParticipantLeft, r.code, &domain.PresencePayload{
		Participant:  participant.ToInfo(),
		Participants: r.participantInfoLocked(),
	}))
}

// Apply writes delta to the shared state and broadcasts the change.
// Every key in delta.Adds is reported as added even if its value is unchanged;
// removals are reported only for keys that existed.
func (r *Room) Apply(ctx context.Context, writer string, delta domain.Delta) (domain.Change, error) {
	if delta.IsEmpty() {
		metrics.DeltaApplied("empty")
		return domain.Change{}, domain.ErrEmptyDelta
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isClosed() {
		return domain.Change{}, domain.ErrRoomClosed
	}

	next := r.snapshot.Clone()
	for key, value := range delta.Adds {
		next.State[key] = value
	}

	removed := make([]string, 0, len(delta.Removes))
	for _, key := range delta.Removes {
		if _, isAdded := delta.Adds[key]; isAdded {
			continue
		}
		if _, ok := next.State[key]; ok {
			delete(next.State, key)
			removed = append(removed, key)
		}
	}

	next.Version++
	next.UpdatedAt = time.Now()

	if err := r.store.Save(ctx, r.code, next); err != nil {
		metrics.DeltaApplied("error")
		return domain.Change{}, errors.Wrap(err, "persist snapshot")
	}
	r.snapshot = next
	r.lastActive = next.UpdatedAt
	metrics.DeltaApplied("applied")

	change := domain.Change{
		Added:   domain.SortedKeys(delta.Adds),
		Removed: removed,
		State:   domain.CopyState(next.State),
		Meta: domain.ChangeMeta{
			Version:   next.Version,
			Writer:    writer,
			Timestamp: next.UpdatedAt,
		},
	}

	r.logger.Debug("state changed",
		"writer", writer,
		"version", next.Version,
		"phase", next.Phase(),
	)
	r.queueEvent(domain.NewEvent(domain.EventStateChanged, r.code, &change))

	return change, nil
}

// queueEvent adds an event to the broadcast queue.
// It waits for room capacity so that no state change is lost.
func (r *Room) queueEvent(event *domain.RoomEvent) {
	select {
	case r.events <- event:
	case <-r.done:
	}
}

// eventLoop processes events and broadcasts to clients
func (r *Room) eventLoop() {
	for {
		select {
		case <-r.done:
			return
		case event := <-r.events:
			r.broadcastEvent(event)
		}
	}
}

// broadcastEvent sends an event to appropriate clients
func (r *Room) broadcastEvent(event *domain.RoomEvent) {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()

	metrics.EventBroadcast(event.Type)

	// If participant-specific, send only to that participant
	if event.ParticipantID != "" {
		if client, ok := r.clients[event.ParticipantID]; ok {
			if err := client.Send(event); err != nil {
				r.logger.Debug("failed to send to client", "participantID", event.ParticipantID, "error", err)
			}
		}
		return
	}

	for participantID, client := range r.clients {
		if err := client.Send(event); err != nil {
			r.logger.Debug("failed to send to client", "participantID", participantID, "error", err)
		}
	}
}

// Close shuts down the room and disconnects its subscribers
func (r *Room) Close() {
	r.mu.Lock()
	if r.isClosed() {
		r.mu.Unlock()
		return
	}
	close(r.done)

	for _, participant := range r.participants {
		if participant.IsConnected() {
			participant.Disconnect()
			metrics.ParticipantDisconnected()
		}
	}
	r.mu.Unlock()

	r.clientsMu.Lock()
	for _, client := range r.clients {
		client.Close()
	}
	r.clients = make(map[string]Subscriber)
	r.clientsMu.Unlock()
}

func (r *Room) isClosed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Room) connectedCountLocked() int {
	count := 0
	for _, p := range r.participants {
		if p.IsConnected() {
			count++
		}
	}
	return count
}

func (r *Room) participantInfoLocked() []domain.ParticipantInfo {
	infos := make([]domain.ParticipantInfo, 0, len(r.participants))
	for _, p := range r.participants {
		infos = append(infos, p.ToInfo())
	}
	return infos
}
