package domain

import "time"

// ConnectionStatus represents a participant's connection state
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// Participant represents a client attached to a room
type Participant struct {
	ID       string           `json:"id"`
	Status   ConnectionStatus `json:"status"`
	JoinedAt time.Time        `json:"joinedAt"`
	LastSeen time.Time        `json:"lastSeen"`
}

// NewParticipant creates a new connected participant
func NewParticipant(id string) *Participant {
	now := time.Now()
	return &Participant{
		ID:       id,
		Status:   StatusConnected,
		JoinedAt: now,
		LastSeen: now,
	}
}

// IsConnected returns true if the participant is currently connected
func (p *Participant) IsConnected() bool {
	return p.Status == StatusConnected
}

// Disconnect marks the participant as disconnected
func (p *Participant) Disconnect() {
	p.Status = StatusDisconnected
	p.LastSeen = time.Now()
}

// Reconnect marks the participant as connected
func (p *Participant) Reconnect() {
	p.Status = StatusConnected
	p.LastSeen = time.Now()
}

// ParticipantInfo is the public view of a participant
type ParticipantInfo struct {
	ID     string           `json:"id"`
	Status ConnectionStatus `json:"status"`
}

// ToInfo converts a Participant to ParticipantInfo
func (p *Participant) ToInfo() ParticipantInfo {
	return ParticipantInfo{
		ID:     p.ID,
		Status: p.Status,
	}
}
