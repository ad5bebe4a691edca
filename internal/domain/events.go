package domain

import "time"

// EventType represents the type of room event
type EventType string

const (
	EventConnected         EventType = "CONNECTED"
	EventStateChanged      EventType = "STATE_CHANGED"
	EventParticipantJoined EventType = "PARTICIPANT_JOINED"
	EventParticipantLeft   EventType = "PARTICIPANT_LEFT"
)

// RoomEvent represents an event that occurred in a room
type RoomEvent struct {
	Type          EventType   `json:"type"`
	RoomCode      string      `json:"roomCode"`
	ParticipantID string      `json:"participantId,omitempty"` // If event is participant-specific
	Payload       interface{} `json:"payload,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// NewEvent creates a new room event
func NewEvent(eventType EventType, roomCode string, payload interface{}) *RoomEvent {
	return &RoomEvent{
		Type:      eventType,
		RoomCode:  roomCode,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewParticipantEvent creates a new participant-specific room event
func NewParticipantEvent(eventType EventType, roomCode, participantID string, payload interface{}) *RoomEvent {
	return &RoomEvent{
		Type:          eventType,
		RoomCode:      roomCode,
		ParticipantID: participantID,
		Payload:       payload,
		Timestamp:     time.Now(),
	}
}

// Payload types for different events

// ConnectedPayload is sent to a participant when it joins a room
type ConnectedPayload struct {
	ParticipantID string            `json:"participantId"`
	State         map[string]string `json:"state"`
	Version       uint64            `json:"version"`
	Reconnected   bool              `json:"reconnected"`
}

// PresencePayload is sent when a participant joins or leaves
type PresencePayload struct {
	Participant  ParticipantInfo   `json:"participant"`
	Participants []ParticipantInfo `json:"participants"`
}
