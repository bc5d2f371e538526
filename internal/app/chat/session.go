/*
Package chat contains the connection/session layer of the relay.

This file defines the Session, one instance per accepted connection. It drives
the authentication phase and then the message/room request phase over the
WebSocket, with a read pump and a write pump per connection. Construction is
two-step: NewSession registers with the Registry, Run drives the state machine.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairchat/internal/app/store"
	"pairchat/internal/configs"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// sendQueueSize is the buffer of the per-session outbound queue.
	sendQueueSize = 256
)

// SessionState is the phase of the per-connection state machine.
type SessionState int32

// Session states. Closed is terminal.
const (
	StateConnecting SessionState = iota
	StateUnauthenticated
	StateAuthenticated
	StateClosed
)

// String returns the state name for logging.
func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Session represents one live connection and its server-side state.
type Session struct {
	// id is the registry-allocated session id, scoped to this connection.
	id string

	// underlying WebSocket connection.
	conn *websocket.Conn

	// collaborators, passed in explicitly at construction.
	service  *Service
	registry *Registry
	cfg      *configs.AppConfig

	// user is set once authentication succeeds.
	user store.User

	// state holds the current SessionState; read from multiple goroutines.
	state atomic.Int32

	// failedLogins counts rejected login attempts on this connection.
	failedLogins int

	// send is the buffered outbound queue drained by the write pump.
	send chan []byte

	// done is closed exactly once when the session shuts down.
	done      chan struct{}
	closeOnce sync.Once

	// structured logger with session context.
	logger zerolog.Logger
}

// NewSession builds a session for an accepted connection and registers it
// with the Registry, moving it from Connecting to Unauthenticated. The caller
// then invokes Run to drive the state machine.
func NewSession(conn *websocket.Conn, service *Service, registry *Registry, cfg *configs.AppConfig) *Session {
	s := &Session{
		conn:     conn,
		service:  service,
		registry: registry,
		cfg:      cfg,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))

	s.id = registry.Register(s)
	s.logger = logx.Logger().With().Str("session_id", s.id).Logger()

	s.state.Store(int32(StateUnauthenticated))

	return s
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Run starts the write pump and blocks in the read pump until the connection
// terminates. Cleanup always runs, authenticated or not.
func (s *Session) Run() {
	go s.writePump()

	if s.cfg.AuthTimeout > 0 {
		authTimer := time.AfterFunc(s.cfg.AuthTimeout, func() {
			if s.State() != StateAuthenticated {
				s.logger.Warn().
					Dur("auth_timeout", s.cfg.AuthTimeout).
					Msg("Session never authenticated within timeout. Closing.")
				s.Close("authentication timeout")
			}
		})
		defer authTimer.Stop()
	}

	s.readPump()
}

// readPump reads frames from the connection and dispatches them. It owns the
// read side: pong deadlines, size limits and the disconnect transition.
func (s *Session) readPump() {
	defer s.Close("connection closed")

	s.conn.SetReadLimit(maxMessageSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			return
		}

		s.dispatch(raw)
	}
}

// dispatch decodes one inbound frame and routes it by session state. Protocol
// errors are logged and ignored; the connection stays open.
func (s *Session) dispatch(raw []byte) {
	req, err := DecodeRequest(raw)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("state", s.State().String()).
			Msg("Ignoring invalid frame.")
		return
	}

	switch s.State() {
	case StateUnauthenticated:
		switch req := req.(type) {
		case LoginRequest:
			s.handleLogin(req)
		case RegisterRequest:
			s.handleRegister(req)
		default:
			s.logger.Warn().
				Str("frame", fmt.Sprintf("%T", req)).
				Msg("Frame requires an authenticated session. Ignored.")
		}

	case StateAuthenticated:
		switch req := req.(type) {
		case SendMessageRequest:
			s.handleMsgSend(req)
		case CreateRoomRequest:
			s.handleRoomCreate(req)
		default:
			s.logger.Warn().
				Str("frame", fmt.Sprintf("%T", req)).
				Msg("Frame not accepted in authenticated state. Ignored.")
		}

	default:
		s.logger.Warn().
			Str("state", s.State().String()).
			Msg("Frame received outside an active state. Ignored.")
	}
}

// handleLogin verifies credentials, binds the user in the Registry and replies
// with the user's rooms. Rejected logins keep the session unauthenticated, up
// to the configured attempt budget.
func (s *Session) handleLogin(req LoginRequest) {
	u, rooms, err := s.service.Authenticate(context.Background(), req.Username, req.Password)
	if err != nil {
		var customErr *errs.CustomError
		if !errors.As(err, &customErr) {
			s.logger.Error().Err(err).Msg("Login failed on store error.")
			return
		}

		s.logger.Info().Str("username", req.Username).Msg("Login rejected.")
		s.enqueue(newLoginRejected(customErr.Message))

		s.failedLogins++
		if s.cfg.LoginMaxAttempts > 0 && s.failedLogins >= s.cfg.LoginMaxAttempts {
			s.logger.Warn().
				Int("failed_logins", s.failedLogins).
				Msg("Login attempt budget exhausted. Closing session.")
			s.Close("too many failed login attempts")
		}
		return
	}

	s.user = u
	s.registry.BindUser(s.id, u.ID)
	s.state.Store(int32(StateAuthenticated))

	s.logger.Info().
		Str("user_id", u.ID).
		Str("username", u.Username).
		Int("rooms", len(rooms)).
		Msg("Session authenticated.")

	s.enqueue(newLoginSuccess(u, rooms))
}

// handleRegister creates the account and acknowledges it. The session stays
// unauthenticated; the client must log in afterwards.
func (s *Session) handleRegister(req RegisterRequest) {
	u, err := s.service.RegisterUser(context.Background(), req.Username, req.Password)
	if err != nil {
		var customErr *errs.CustomError
		if !errors.As(err, &customErr) {
			s.logger.Error().Err(err).Msg("Registration failed on store error.")
			return
		}

		s.logger.Info().Str("username", req.Username).Msg("Registration rejected.")
		s.enqueue(newRegisterRejected(customErr.Message))
		return
	}

	s.logger.Info().Str("username", req.Username).Str("user_id", u.ID).Msg("User registered.")
	s.enqueue(newRegisterSuccess(u.ID))
}

// handleMsgSend persists the message, then attempts live delivery to the
// recipient, then always acknowledges the sender. Delivery is best-effort: a
// failed push never rolls back the persisted message or withholds the ack.
func (s *Session) handleMsgSend(req SendMessageRequest) {
	msg, err := s.service.SendMessage(context.Background(), req.RoomID, s.user.ID, req.Data, req.Timestamp)
	if err != nil {
		var customErr *errs.CustomError
		switch {
		case errors.Is(err, store.ErrRoomNotFound):
			s.logger.Warn().Str("room_id", req.RoomID).Msg("msg.send for unknown room. Ignored.")
		case errors.Is(err, store.ErrNotParticipant):
			s.logger.Warn().Str("room_id", req.RoomID).Msg("msg.send into a room the sender does not belong to. Ignored.")
		case errors.As(err, &customErr) && customErr.Code == errs.ErrMessageContentTooLong:
			s.logger.Warn().Int("body_bytes", len(req.Data)).Msg("Message body over size limit. Ignored.")
		default:
			s.logger.Error().Err(err).Str("room_id", req.RoomID).Msg("Failed to persist message.")
		}
		return
	}

	if recipient, online := s.registry.FindOnline(req.OtherID); online {
		recipient.enqueue(newMsgRecv(msg, req.RoomID))
	}

	s.enqueue(newMsgSent(msg.ID))
}

// handleRoomCreate resolves the room between the session user and the id in
// Data and replies with its id. The authenticated identity wins over the
// user_id field when they disagree.
func (s *Session) handleRoomCreate(req CreateRoomRequest) {
	if req.UserID != "" && req.UserID != s.user.ID {
		s.logger.Warn().
			Str("claimed_user_id", req.UserID).
			Msg("room.create user_id does not match session user. Using session identity.")
	}

	room, err := s.service.CreateRoom(context.Background(), s.user.ID, req.Data)
	if err != nil {
		if errors.Is(err, store.ErrSameParticipant) {
			s.logger.Warn().Msg("room.create with self as the other participant. Ignored.")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to create room.")
		return
	}

	s.enqueue(newRoomCreated(room.ID))
}

// enqueue marshals a frame onto the outbound queue without blocking. Frames
// for a closed or saturated session are dropped; live delivery is best-effort.
func (s *Session) enqueue(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error marshaling outbound frame.")
		return
	}

	select {
	case <-s.done:
		s.logger.Warn().Msg("Session closed, dropping outbound frame.")
	case s.send <- payload:
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Send queue full, dropping outbound frame.")
	}
}

// writePump drains the outbound queue onto the connection and keeps the
// heartbeat alive. A write failure escalates to the Closed transition.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		s.Close("write pump terminated")

		// the connection closes here, after any final flush, so replies
		// queued just before the close decision still reach the client
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error in write pump")
		}
	}()

	for {
		select {
		case <-s.done:
			// flush frames queued before the close decision, then say goodbye
			for {
				select {
				case payload := <-s.send:
					s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
						return
					}
				default:
					s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
						s.logger.Debug().Err(err).Msg("Error writing close message")
					}
					return
				}
			}

		case payload := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Error().Err(err).Msg("Error writing frame")
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Error().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}

// Close performs the transition to Closed: deregister from the Registry and
// signal both pumps to stop. The write pump owns the final connection close so
// it can flush queued frames first. Close is idempotent and reachable from any
// state, including a session that never authenticated.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))

		s.logger.Info().Str("reason", reason).Msg("Session closing.")

		s.registry.Unregister(s.id)
		close(s.done)
	})
}
