package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"phasesync/internal/domain"
)

// Session is a participant's connection to a relay room.
// It keeps a local copy of the shared state and calls its listeners serially
// from the read loop, so a phase machine bound to it sees one notification at
// a time.
type Session struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu            sync.RWMutex
	state         map[string]string
	version       uint64
	participantID string
	roomCode      string

	ready     []func() error
	listeners []func(domain.Change) error

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Endpoint builds the relay WebSocket URL for roomCode.
// server may use an http(s) or ws(s) scheme.
func Endpoint(server, roomCode, participantID string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", errors.Wrapf(err, "parse server url %q", server)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("roomCode", roomCode)
	if participantID != "" {
		q.Set("participantId", participantID)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Dial connects to roomCode on the relay at server.
// An empty participantID lets the relay assign one.
func Dial(ctx context.Context, server, roomCode, participantID string, logger *slog.Logger) (*Session, error) {
	endpoint, err := Endpoint(server, roomCode, participantID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial room %s: %s", roomCode, resp.Status)
		}
		return nil, errors.Wrapf(err, "dial room %s", roomCode)
	}

	return NewSession(conn, logger), nil
}

// NewSession wraps an established relay connection
func NewSession(conn *websocket.Conn, logger *slog.Logger) *Session {
	return &Session{
		conn:   conn,
		logger: logger,
		state:  make(map[string]string),
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// OnReady registers a listener called once the relay has sent the snapshot.
// Listeners must be registered before Run.
func (s *Session) OnReady(listener func() error) {
	s.ready = append(s.ready, listener)
}

// OnStateChange registers a listener called for every shared-state change.
// Listeners must be registered before Run.
func (s *Session) OnStateChange(listener func(change domain.Change) error) {
	s.listeners = append(s.listeners, listener)
}

// State returns a copy of the latest shared state
func (s *Session) State() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CopyState(s.state)
}

// Version returns the version of the latest shared state
func (s *Session) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ParticipantID returns the ID the relay knows this participant by
func (s *Session) ParticipantID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participantID
}

// RoomCode returns the joined room
func (s *Session) RoomCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomCode
}

// Submit asks the relay to apply a delta to the shared state.
// The change is not visible locally until the relay broadcasts it back.
func (s *Session) Submit(adds map[string]string, removes []string) error {
	payload, err := json.Marshal(&SubmitDeltaPayload{Adds: adds, Removes: removes})
	if err != nil {
		return errors.Wrap(err, "encode delta")
	}
	data, err := json.Marshal(&ClientMessage{Type: MsgSubmitDelta, Payload: payload})
	if err != nil {
		return errors.Wrap(err, "encode message")
	}

	if s.isClosed() {
		return domain.ErrSessionClosed
	}

	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return domain.ErrSessionClosed
	}
}

// Run processes relay messages until the session closes or ctx is done.
// It returns the first listener error, or the read error that ended the
// connection; a session closed locally returns nil.
func (s *Session) Run(ctx context.Context) error {
	go s.writePump()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-stop:
		}
	}()

	err := s.readLoop()
	s.Close()
	return err
}

// Close ends the session
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// readLoop reads relay frames; a frame may carry several newline-separated messages
func (s *Session) readLoop() error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return domain.ErrSessionClosed
			}
			return errors.Wrap(err, "read relay message")
		}

		for _, frame := range bytes.Split(data, []byte{'\n'}) {
			if len(frame) == 0 {
				continue
			}
			if err := s.dispatch(frame); err != nil {
				return err
			}
		}
	}
}

// dispatch handles one relay message
func (s *Session) dispatch(frame []byte) error {
	var msg incomingMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		s.logger.Warn("ignoring malformed relay message", "error", err)
		return nil
	}

	switch msg.Type {
	case MsgConnected:
		var payload ConnectedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errors.Wrap(err, "decode connected payload")
		}
		s.mu.Lock()
		s.state = domain.CopyState(payload.State)
		s.version = payload.Version
		s.participantID = payload.ParticipantID
		s.roomCode = payload.RoomCode
		s.mu.Unlock()

		s.logger.Info("joined room",
			"roomCode", payload.RoomCode,
			"participantID", payload.ParticipantID,
			"version", payload.Version,
			"reconnected", payload.Reconnected,
		)

		for _, listener := range s.ready {
			if err := listener(); err != nil {
				return errors.Wrap(err, "ready listener")
			}
		}

	case MsgStateChanged:
		var payload StateChangedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errors.Wrap(err, "decode state payload")
		}
		change := payload.ToChange()

		s.mu.Lock()
		if payload.Version > s.version {
			s.state = domain.CopyState(change.State)
			s.version = payload.Version
		}
		s.mu.Unlock()

		for _, listener := range s.listeners {
			if err := listener(change); err != nil {
				return errors.Wrap(err, "state listener")
			}
		}

	case MsgError:
		var payload ErrorPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			s.logger.Warn("ignoring malformed relay error", "error", err)
			return nil
		}
		s.logger.Warn("relay error", "code", payload.Code, "message", payload.Message)

	case MsgParticipantJoined, MsgParticipantLeft:
		s.logger.Debug("presence changed", "type", msg.Type)

	case MsgPong:
	default:
		s.logger.Debug("ignoring relay message", "type", msg.Type)
	}

	return nil
}

// writePump sends queued messages to the relay
func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("relay write failed", "error", err)
				s.Close()
				return
			}
		}
	}
}
