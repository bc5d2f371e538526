/*
Package store owns the durable state of users and rooms.

This file implements the JSON-file backend: two documents, a users document
keyed by user id and a rooms document keyed by room id. Saves go through a
temp-write-then-rename so a crash mid-write never corrupts the previous state.
*/
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/randx"
)

// JSONFileStore keeps the full state in memory and persists it as two JSON
// documents. It is not safe for concurrent use; callers serialize access.
type JSONFileStore struct {
	usersPath string
	roomsPath string

	users map[string]User
	rooms map[string]*Room

	logger zerolog.Logger
}

// OpenJSONFile loads both documents and returns a ready store. Missing or
// empty files initialize empty collections. A parse failure on a non-empty
// document is a store-integrity error: with salvage false it is returned as
// fatal; with salvage true the document is moved aside (".corrupt-<unix>"
// suffix) and the store starts with an empty collection in its place.
func OpenJSONFile(usersPath, roomsPath string, salvage bool) (*JSONFileStore, error) {
	s := &JSONFileStore{
		usersPath: usersPath,
		roomsPath: roomsPath,
		users:     make(map[string]User),
		rooms:     make(map[string]*Room),
		logger:    logx.Logger().With().Str("component", "JSONFileStore").Logger(),
	}

	if err := loadDocument(usersPath, &s.users, salvage, s.logger); err != nil {
		return nil, err
	}
	if err := loadDocument(roomsPath, &s.rooms, salvage, s.logger); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("users", len(s.users)).
		Int("rooms", len(s.rooms)).
		Msg("Store loaded.")

	return s, nil
}

// loadDocument reads one JSON document into dst. dst must point at an
// initialized empty map, which is left untouched for missing, empty or
// salvaged files. Decoding goes through a scratch value so a partial decode
// (some entries valid, one with the wrong shape) never leaks into dst.
func loadDocument[T any](path string, dst *T, salvage bool, logger zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info().Str("path", path).Msg("Document missing, starting empty.")
			return nil
		}
		return fmt.Errorf("failed to read store document %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil
	}

	var decoded T
	if err := json.Unmarshal(data, &decoded); err != nil {
		if !salvage {
			return fmt.Errorf("store document %s is corrupt: %w", path, err)
		}

		asidePath := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, asidePath); renameErr != nil {
			return fmt.Errorf("store document %s is corrupt and could not be moved aside: %w", path, renameErr)
		}

		logger.Error().Err(err).
			Str("path", path).
			Str("moved_to", asidePath).
			Msg("Corrupt store document moved aside, starting empty.")
		return nil
	}

	*dst = decoded
	return nil
}

// Save writes both documents atomically via temp-write-then-rename.
func (s *JSONFileStore) Save(ctx context.Context) error {
	if err := writeDocument(s.usersPath, s.users); err != nil {
		return err
	}
	return writeDocument(s.roomsPath, s.rooms)
}

// writeDocument marshals v and renames a temp file over path so readers never
// observe a partial write.
func writeDocument(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode store document %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file for %s: %w", path, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to sync temp file for %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace store document %s: %w", path, err)
	}

	return nil
}

// GetUser returns the user with the given id.
func (s *JSONFileStore) GetUser(ctx context.Context, userID string) (User, error) {
	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// UsernameExists reports whether the exact username is already registered.
func (s *JSONFileStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// GetUserByUsername returns the user with the exact username.
func (s *JSONFileStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

// CreateUser registers a new user under a fresh server-generated id.
func (s *JSONFileStore) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	exists, err := s.UsernameExists(ctx, username)
	if err != nil {
		return User{}, err
	}
	if exists {
		return User{}, ErrUsernameTaken
	}

	u := User{
		ID:       randx.UserID(),
		Username: username,
		Password: passwordHash,
	}
	s.users[u.ID] = u

	return u, nil
}

// GetRoomsForUser returns every room the user participates in, ordered by
// room id so repeated calls on a static store are stable.
func (s *JSONFileStore) GetRoomsForUser(ctx context.Context, userID string) ([]Room, error) {
	rooms := make([]Room, 0)
	for _, room := range s.rooms {
		if room.HasParticipant(userID) {
			rooms = append(rooms, *room)
		}
	}

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	return rooms, nil
}

// CreateOrGetRoom resolves the unique room for the unordered pair, creating
// it on first use.
func (s *JSONFileStore) CreateOrGetRoom(ctx context.Context, userA, userB string) (Room, error) {
	if userA == userB {
		return Room{}, ErrSameParticipant
	}

	roomID := PairRoomID(userA, userB)
	if room, ok := s.rooms[roomID]; ok {
		return *room, nil
	}

	room := &Room{
		ID:       roomID,
		Users:    []string{userA, userB},
		Messages: []Message{},
	}
	s.rooms[roomID] = room

	s.logger.Info().Str("room_id", roomID).Msg("Room created.")

	return *room, nil
}

// AppendMessage appends a message to the room's history. The sender must be
// one of the room's participants.
func (s *JSONFileStore) AppendMessage(ctx context.Context, roomID, senderID, body, timestamp string) (Message, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return Message{}, ErrRoomNotFound
	}
	if !room.HasParticipant(senderID) {
		return Message{}, ErrNotParticipant
	}

	msg := Message{
		ID:        randx.MessageID(),
		Sender:    senderID,
		Body:      body,
		Timestamp: timestamp,
	}
	room.Messages = append(room.Messages, msg)

	return msg, nil
}

// GetLatestMessages returns the most recent n messages, oldest first. A
// negative n returns the full history.
func (s *JSONFileStore) GetLatestMessages(ctx context.Context, roomID string, n int) ([]Message, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	msgs := room.Messages
	if n >= 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}

	out := make([]Message, len(msgs))
	copy(out, msgs)

	return out, nil
}

// Close is a no-op; the caller is responsible for a final Save.
func (s *JSONFileStore) Close() error {
	return nil
}
