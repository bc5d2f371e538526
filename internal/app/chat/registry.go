/*
Package chat contains the connection/session layer of the relay.

This file defines the Registry, the in-memory bookkeeping of live sessions.
It maps session ids to sessions and, once a session authenticates, user ids to
their session, so message delivery can find an online recipient in O(1).
*/
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/randx"
)

// Registry tracks live sessions and which authenticated user each maps to.
type Registry struct {
	// mu protects both maps; iteration and mutation are serialized through it.
	mu sync.RWMutex

	// sessions is the primary table, keyed by session id.
	sessions map[string]*Session

	// byUser is the secondary index from authenticated user id to session.
	byUser map[string]*Session

	// structured logger with Registry context.
	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]*Session),
		logger:   logx.Logger().With().Str("component", "Registry").Logger(),
	}
}

// Register stores an unauthenticated session entry and returns the fresh
// session id allocated for it.
func (r *Registry) Register(s *Session) string {
	sessionID := randx.SessionID()

	r.mu.Lock()
	r.sessions[sessionID] = s
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info().
		Str("session_id", sessionID).
		Int("total_sessions", total).
		Msg("Session registered.")

	return sessionID
}

// BindUser makes the session discoverable by user id. Called once, when the
// session's authentication succeeds. If the user already has a bound session
// (a second device or tab), the index points at the newest one.
func (r *Registry) BindUser(sessionID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		r.logger.Warn().
			Str("session_id", sessionID).
			Msg("BindUser for unknown session ignored.")
		return
	}

	if existing, ok := r.byUser[userID]; ok && existing != s {
		r.logger.Warn().
			Str("user_id", userID).
			Str("session_id", sessionID).
			Msg("User already bound on another session. Newest session takes over delivery.")
	}

	r.byUser[userID] = s
}

// Unregister removes the session and, when it owns the user index entry, that
// entry too. Unregistering an unknown session id is a no-op.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}

	delete(r.sessions, sessionID)

	for userID, bound := range r.byUser {
		if bound == s {
			delete(r.byUser, userID)
			break
		}
	}

	r.logger.Info().
		Str("session_id", sessionID).
		Int("total_sessions", len(r.sessions)).
		Msg("Session unregistered.")
}

// FindOnline returns the session bound to the user id, if any. Only sessions
// that authenticated are discoverable here.
func (r *Registry) FindOnline(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byUser[userID]
	return s, ok
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Shutdown closes every live session's connection. Sessions clean themselves
// up through their normal disconnect path.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	open := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.mu.RUnlock()

	r.logger.Info().Int("total_sessions", len(open)).Msg("Closing all live sessions.")

	for _, s := range open {
		s.Close("server shutting down")
	}
}
