package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"phasesync/internal/app"
	"phasesync/internal/domain"
	"phasesync/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Size of the send channel buffer
	sendBufferSize = 256

	// Time allowed to persist a submitted delta
	applyTimeout = 5 * time.Second
)

// Conn is the relay side of one participant's WebSocket connection
type Conn struct {
	conn          *websocket.Conn
	room          *app.Room
	participantID string
	send          chan []byte
	done          chan struct{}
	logger        *slog.Logger
	mu            sync.Mutex
	closed        bool
}

// NewConn creates a new relay connection for participantID
func NewConn(conn *websocket.Conn, room *app.Room, participantID string, logger *slog.Logger) *Conn {
	return &Conn{
		conn:          conn,
		room:          room,
		participantID: participantID,
		send:          make(chan []byte, sendBufferSize),
		done:          make(chan struct{}),
		logger:        logger.With("roomCode", room.GetRoomCode(), "participantID", participantID),
	}
}

// GetParticipantID returns the participant ID for this connection
func (c *Conn) GetParticipantID() string {
	return c.participantID
}

// Send implements app.Subscriber.
// A participant too slow to drain its buffer is disconnected rather than
// silently missing a state change; it resynchronizes on reconnect.
func (c *Conn) Send(event *domain.RoomEvent) error {
	msg, ok := toServerMessage(event)
	if !ok {
		return nil
	}
	return c.sendMessage(msg)
}

func (c *Conn) sendMessage(msg *ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	select {
	case c.send <- data:
		return nil
	default:
		metrics.EventDropped()
		c.logger.Warn("send buffer full, disconnecting participant")
		go c.Close()
		return nil
	}
}

// Close implements app.Subscriber
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)
	return c.conn.Close()
}

// Run starts the connection's read and write pumps
func (c *Conn) Run() {
	go c.writePump()
	c.readPump()
}

// readPump pumps messages from the WebSocket connection
func (c *Conn) readPump() {
	defer func() {
		c.room.Leave(c.participantID, c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming message from the participant
func (c *Conn) handleMessage(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(ErrCodeInvalidMessage, "Invalid message format")
		return
	}

	switch msg.Type {
	case MsgSubmitDelta:
		c.handleSubmitDelta(msg.Payload)
	case MsgPing:
		c.sendMessage(NewServerMessage(MsgPong, nil))
	default:
		c.sendError(ErrCodeInvalidMessage, "Unknown message type")
	}
}

// handleSubmitDelta handles a submit_delta message
func (c *Conn) handleSubmitDelta(payload json.RawMessage) {
	var delta SubmitDeltaPayload
	if len(payload) == 0 || json.Unmarshal(payload, &delta) != nil {
		c.sendError(ErrCodeInvalidMessage, "Invalid payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()

	_, err := c.room.Apply(ctx, c.participantID, domain.Delta{
		Adds:    delta.Adds,
		Removes: delta.Removes,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyDelta):
			c.sendError(ErrCodeEmptyDelta, "Delta has no changes")
		case errors.Is(err, domain.ErrRoomClosed):
			c.sendError(ErrCodeRoomClosed, "Room is closed")
		default:
			c.logger.Error("failed to apply delta", "error", err)
			c.sendError(ErrCodeInternalError, "Failed to apply delta")
		}
	}
}

// sendError sends an error message to the participant
func (c *Conn) sendError(code, message string) {
	c.sendMessage(NewServerMessage(MsgError, &ErrorPayload{
		Code:    code,
		Message: message,
	}))
}
