/*
Package chat contains the connection/session layer of the relay.

This file defines the Service, the single critical section in front of the
persistence store. Every session handler funnels store access through it, so
check-and-create sequences (duplicate usernames, one room per pair) cannot
race, and each mutation is followed by a store save.
*/
package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"pairchat/internal/app/store"
	"pairchat/internal/pkg/auth/password"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/logx"
)

// MaxBodyBytes is the maximum allowed size (in bytes) of a message body.
const MaxBodyBytes = 5000

// Service serializes all access to the persistence store.
type Service struct {
	store  store.Store
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewService wraps the given store.
func NewService(st store.Store) *Service {
	return &Service{
		store:  st,
		logger: logx.Logger().With().Str("component", "Service").Logger(),
	}
}

// Authenticate verifies the credentials and returns the user with their rooms
// (full history included). A wrong username and a wrong password both map to
// the same ErrInvalidCredentials reply.
func (s *Service) Authenticate(ctx context.Context, username, cleartext string) (store.User, []store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return store.User{}, nil, errs.NewError(errs.ErrInvalidCredentials)
		}
		return store.User{}, nil, err
	}

	if !password.Compare(u.Password, cleartext) {
		return store.User{}, nil, errs.NewError(errs.ErrInvalidCredentials)
	}

	rooms, err := s.store.GetRoomsForUser(ctx, u.ID)
	if err != nil {
		return store.User{}, nil, err
	}

	return u, rooms, nil
}

// RegisterUser creates a new account with a hashed password and persists the
// store. Registration does not authenticate the session.
func (s *Service) RegisterUser(ctx context.Context, username, cleartext string) (store.User, error) {
	hash, err := password.Hash(cleartext)
	if err != nil {
		return store.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.CreateUser(ctx, username, hash)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			return store.User{}, errs.NewError(errs.ErrUsernameTaken)
		}
		return store.User{}, err
	}

	s.saveLocked(ctx)

	return u, nil
}

// SendMessage appends the message to the room's history and persists the
// store. Persistence happens before any live delivery attempt. Bodies over
// MaxBodyBytes are rejected with ErrMessageContentTooLong.
func (s *Service) SendMessage(ctx context.Context, roomID, senderID, body, timestamp string) (store.Message, error) {
	if len(body) > MaxBodyBytes {
		return store.Message{}, errs.NewError(errs.ErrMessageContentTooLong)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.store.AppendMessage(ctx, roomID, senderID, body, timestamp)
	if err != nil {
		return store.Message{}, err
	}

	s.saveLocked(ctx)

	return msg, nil
}

// CreateRoom resolves the unique room for the pair, creating it on first use,
// and persists the store afterward.
func (s *Service) CreateRoom(ctx context.Context, userA, userB string) (store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.store.CreateOrGetRoom(ctx, userA, userB)
	if err != nil {
		return store.Room{}, err
	}

	s.saveLocked(ctx)

	return room, nil
}

// Flush forces a store save. Called during graceful shutdown.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Save(ctx)
}

// saveLocked persists the store after a mutation. A failed save is logged but
// does not roll back the in-memory mutation; the next successful save or the
// shutdown flush carries it.
func (s *Service) saveLocked(ctx context.Context) {
	if err := s.store.Save(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Store save failed after mutation.")
	}
}
