package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"phasesync/internal/domain"
)

// Response is a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateRoomResponse is the response for room creation
type CreateRoomResponse struct {
	RoomCode     string `json:"roomCode"`
	WebSocketURL string `json:"webSocketUrl"`
}

// GetRoomResponse is the response for getting room info
type GetRoomResponse struct {
	RoomCode         string                   `json:"roomCode"`
	Phase            string                   `json:"phase"`
	Version          uint64                   `json:"version"`
	State            map[string]string        `json:"state"`
	ParticipantCount int                      `json:"participantCount"`
	Participants     []domain.ParticipantInfo `json:"participants"`
}

// RoomExistsResponse is the response for checking if room exists
type RoomExistsResponse struct {
	Exists bool `json:"exists"`
}

// HealthResponse is the response for health check
type HealthResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the response for stats endpoint
type StatsResponse struct {
	ActiveRooms           int `json:"activeRooms"`
	StoredRooms           int `json:"storedRooms"`
	ConnectedParticipants int `json:"connectedParticipants"`
}

// handleCreateRoom handles POST /api/rooms
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.hub.CreateRoom(r.Context())
	if err != nil {
		s.logger.Error("failed to create room", "error", err)
		s.sendError(w, http.StatusInternalServerError, "CREATION_FAILED", "Failed to create room")
		return
	}

	// Build websocket link
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	wsURL := scheme + "://" + r.Host + "/ws?roomCode=" + room.GetRoomCode()

	w.WriteHeader(http.StatusCreated)
	s.sendSuccess(w, &CreateRoomResponse{
		RoomCode:     room.GetRoomCode(),
		WebSocketURL: wsURL,
	})
}

// handleGetRoom handles GET /api/rooms/{roomCode}
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomCode := strings.ToUpper(r.PathValue("roomCode"))
	if roomCode == "" {
		s.sendError(w, http.StatusBadRequest, "MISSING_ROOM_CODE", "Room code is required")
		return
	}

	room, err := s.hub.GetRoom(r.Context(), roomCode)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			s.sendError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "Room not found")
		} else {
			s.logger.Error("failed to load room", "roomCode", roomCode, "error", err)
			s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		}
		return
	}

	snapshot := room.Snapshot()
	s.sendSuccess(w, &GetRoomResponse{
		RoomCode:         room.GetRoomCode(),
		Phase:            string(snapshot.Phase()),
		Version:          snapshot.Version,
		State:            snapshot.State,
		ParticipantCount: room.GetConnectedCount(),
		Participants:     room.GetParticipants(),
	})
}

// handleDeleteRoom handles DELETE /api/rooms/{roomCode}
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomCode := strings.ToUpper(r.PathValue("roomCode"))

	if err := s.hub.DeleteRoom(r.Context(), roomCode); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			s.sendError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "Room not found")
		} else {
			s.logger.Error("failed to delete room", "roomCode", roomCode, "error", err)
			s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRoomExists handles GET /api/rooms/{roomCode}/exists
func (s *Server) handleRoomExists(w http.ResponseWriter, r *http.Request) {
	roomCode := strings.ToUpper(r.PathValue("roomCode"))
	if roomCode == "" {
		s.sendError(w, http.StatusBadRequest, "MISSING_ROOM_CODE", "Room code is required")
		return
	}

	s.sendSuccess(w, &RoomExistsResponse{
		Exists: s.hub.RoomExists(r.Context(), roomCode),
	})
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, &HealthResponse{
		Status: "ok",
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stored, err := s.hub.GetStoredRoomCount(r.Context())
	if err != nil {
		s.logger.Error("failed to count stored rooms", "error", err)
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	s.sendSuccess(w, &StatsResponse{
		ActiveRooms:           s.hub.GetRoomCount(),
		StoredRooms:           stored,
		ConnectedParticipants: s.hub.GetTotalParticipantCount(),
	})
}

// sendSuccess sends a successful JSON response
func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&Response{
		Success: true,
		Data:    data,
	})
}

// sendError sends an error JSON response
func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	})
}
