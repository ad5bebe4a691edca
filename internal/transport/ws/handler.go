package ws

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"phasesync/internal/app"
	"phasesync/internal/domain"
)

// Handler handles WebSocket connections
type Handler struct {
	hub      *app.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *app.Hub, checkOrigin func(r *http.Request) bool, logger *slog.Logger) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Get room code from query params
	roomCode := strings.ToUpper(r.URL.Query().Get("roomCode"))
	if roomCode == "" {
		http.Error(w, "roomCode is required", http.StatusBadRequest)
		return
	}

	// Get or create participant ID
	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		participantID = uuid.New().String()
	}

	room, err := h.hub.GetRoom(r.Context(), roomCode)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			http.Error(w, "Room not found", http.StatusNotFound)
		} else {
			h.logger.Error("failed to load room", "roomCode", roomCode, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	if !room.CanJoin(participantID) {
		http.Error(w, "Cannot join this room", http.StatusForbidden)
		return
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewConn(conn, room, participantID, h.logger)

	reconnected, err := room.Join(participantID, client)
	if err != nil {
		code := ErrCodeInternalError
		switch {
		case errors.Is(err, domain.ErrRoomFull):
			code = ErrCodeRoomFull
		case errors.Is(err, domain.ErrRoomClosed):
			code = ErrCodeRoomClosed
		}
		conn.WriteJSON(NewServerMessage(MsgError, &ErrorPayload{Code: code, Message: err.Error()}))
		conn.Close()
		return
	}

	h.logger.Info("websocket connected",
		"roomCode", roomCode,
		"participantID", participantID,
		"isReconnect", reconnected,
	)

	// Start the client
	client.Run()
}
