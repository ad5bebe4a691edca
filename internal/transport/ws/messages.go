package ws

import (
	"encoding/json"
	"time"

	"phasesync/internal/domain"
)

// MessageType represents the type of WebSocket message
type MessageType string

// Client → Server message types
const (
	MsgSubmitDelta MessageType = "submit_delta"
	MsgPing        MessageType = "ping"
)

// Server → Client message types
const (
	MsgConnected         MessageType = "connected"
	MsgStateChanged      MessageType = "state_changed"
	MsgParticipantJoined MessageType = "participant_joined"
	MsgParticipantLeft   MessageType = "participant_left"
	MsgError             MessageType = "error"
	MsgPong              MessageType = "pong"
)

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type      MessageType `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewServerMessage creates a new server message with current timestamp
func NewServerMessage(msgType MessageType, payload interface{}) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// incomingMessage is a server message as decoded by a participant
type incomingMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client message payloads

// SubmitDeltaPayload is the payload for submit_delta message
type SubmitDeltaPayload struct {
	Adds    map[string]string `json:"adds,omitempty"`
	Removes []string          `json:"removes,omitempty"`
}

// Server message payloads

// ConnectedPayload is the payload for connected message
type ConnectedPayload struct {
	ParticipantID string            `json:"participantId"`
	RoomCode      string            `json:"roomCode"`
	State         map[string]string `json:"state"`
	Version       uint64            `json:"version"`
	Reconnected   bool              `json:"reconnected"`
}

// StateChangedPayload is the payload for state_changed message
type StateChangedPayload struct {
	Added     []string          `json:"added"`
	Removed   []string          `json:"removed"`
	State     map[string]string `json:"state"`
	Version   uint64            `json:"version"`
	Writer    string            `json:"writer"`
	Timestamp time.Time         `json:"timestamp"`
}

// ToChange converts the payload to a domain change notification
func (p *StateChangedPayload) ToChange() domain.Change {
	state := p.State
	if state == nil {
		state = make(map[string]string)
	}
	return domain.Change{
		Added:   p.Added,
		Removed: p.Removed,
		State:   state,
		Meta: domain.ChangeMeta{
			Version:   p.Version,
			Writer:    p.Writer,
			Timestamp: p.Timestamp,
		},
	}
}

// ErrorPayload is the payload for error message
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeRoomNotFound   = "ROOM_NOT_FOUND"
	ErrCodeRoomFull       = "ROOM_FULL"
	ErrCodeRoomClosed     = "ROOM_CLOSED"
	ErrCodeEmptyDelta     = "EMPTY_DELTA"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// toServerMessage converts a room event to its wire message
func toServerMessage(event *domain.RoomEvent) (*ServerMessage, bool) {
	switch event.Type {
	case domain.EventConnected:
		p, ok := event.Payload.(*domain.ConnectedPayload)
		if !ok {
			return nil, false
		}
		return NewServerMessage(MsgConnected, &ConnectedPayload{
			ParticipantID: p.ParticipantID,
			RoomCode:      event.RoomCode,
			State:         p.State,
			Version:       p.Version,
			Reconnected:   p.Reconnected,
		}), true
	case domain.EventStateChanged:
		c, ok := event.Payload.(*domain.Change)
		if !ok {
			return nil, false
		}
		return NewServerMessage(MsgStateChanged, &StateChangedPayload{
			Added:     c.Added,
			Removed:   c.Removed,
			State:     c.State,
			Version:   c.Meta.Version,
			Writer:    c.Meta.Writer,
			Timestamp: c.Meta.Timestamp,
		}), true
	case domain.EventParticipantJoined:
		return NewServerMessage(MsgParticipantJoined, event.Payload), true
	case domain.EventParticipantLeft:
		return NewServerMessage(MsgParticipantLeft, event.Payload), true
	default:
		return nil, false
	}
}
