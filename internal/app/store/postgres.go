/*
Package store owns the durable state of users and rooms.

This file implements the PostgreSQL backend. It honors the same contract as
the JSON-file store; uniqueness of usernames and of the room per user pair is
enforced by table constraints, and durability is per statement, so Save is a
no-op.
*/
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pairchat/internal/app/db"
	"pairchat/internal/pkg/randx"
)

// PostgresStore persists users, rooms and messages in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database, applies migrations and returns a
// ready store.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	pool, err := db.NewPool(dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Save is a no-op; every mutation is durable once its statement commits.
func (s *PostgresStore) Save(ctx context.Context) error {
	return nil
}

// GetUser returns the user with the given id.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, username, password_hash FROM users WHERE user_id = $1`,
		userID,
	).Scan(&u.ID, &u.Username, &u.Password)

	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to fetch user: %w", err)
	}

	return u, nil
}

// UsernameExists reports whether the exact username is already registered.
func (s *PostgresStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`,
		username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}

	return exists, nil
}

// GetUserByUsername returns the user with the exact username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, username, password_hash FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.Password)

	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to fetch user by username: %w", err)
	}

	return u, nil
}

// CreateUser registers a new user under a fresh server-generated id. The
// unique constraint on username backs the check-and-create atomically.
func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	u := User{
		ID:       randx.UserID(),
		Username: username,
		Password: passwordHash,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, username, password_hash) VALUES ($1, $2, $3)`,
		u.ID, u.Username, u.Password,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

// GetRoomsForUser returns every room the user participates in, with full
// history, ordered by room id.
func (s *PostgresStore) GetRoomsForUser(ctx context.Context, userID string) ([]Room, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT room_id, user_a, user_b FROM rooms
		 WHERE user_a = $1 OR user_b = $1
		 ORDER BY room_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		var room Room
		var userA, userB string
		if err := rows.Scan(&room.ID, &userA, &userB); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		room.Users = []string{userA, userB}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}

	for i := range rooms {
		msgs, err := s.roomMessages(ctx, rooms[i].ID)
		if err != nil {
			return nil, err
		}
		rooms[i].Messages = msgs
	}

	return rooms, nil
}

// roomMessages loads a room's full history in arrival order.
func (s *PostgresStore) roomMessages(ctx context.Context, roomID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, sender_id, body, client_timestamp
		 FROM messages WHERE room_id = $1 ORDER BY seq`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Body, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return msgs, nil
}

// CreateOrGetRoom resolves the unique room for the unordered pair. The
// participants are stored sorted, matching the room id derivation, so
// concurrent creates for the same pair collapse onto one row.
func (s *PostgresStore) CreateOrGetRoom(ctx context.Context, userA, userB string) (Room, error) {
	if userA == userB {
		return Room{}, ErrSameParticipant
	}
	if userB < userA {
		userA, userB = userB, userA
	}

	roomID := PairRoomID(userA, userB)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO rooms (room_id, user_a, user_b) VALUES ($1, $2, $3)
		 ON CONFLICT (room_id) DO NOTHING`,
		roomID, userA, userB,
	)
	if err != nil {
		return Room{}, fmt.Errorf("failed to create room: %w", err)
	}

	msgs, err := s.roomMessages(ctx, roomID)
	if err != nil {
		return Room{}, err
	}

	return Room{
		ID:       roomID,
		Users:    []string{userA, userB},
		Messages: msgs,
	}, nil
}

// AppendMessage appends a message to the room's history. The sender must be
// one of the room's participants.
func (s *PostgresStore) AppendMessage(ctx context.Context, roomID, senderID, body, timestamp string) (Message, error) {
	var userA, userB string
	err := s.pool.QueryRow(ctx,
		`SELECT user_a, user_b FROM rooms WHERE room_id = $1`,
		roomID,
	).Scan(&userA, &userB)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrRoomNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("failed to check room: %w", err)
	}
	if senderID != userA && senderID != userB {
		return Message{}, ErrNotParticipant
	}

	msg := Message{
		ID:        randx.MessageID(),
		Sender:    senderID,
		Body:      body,
		Timestamp: timestamp,
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO messages (message_id, room_id, sender_id, body, client_timestamp)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, roomID, msg.Sender, msg.Body, msg.Timestamp,
	)
	if err != nil {
		return Message{}, fmt.Errorf("failed to append message: %w", err)
	}

	return msg, nil
}

// GetLatestMessages returns the most recent n messages, oldest first. A
// negative n returns the full history.
func (s *PostgresStore) GetLatestMessages(ctx context.Context, roomID string, n int) ([]Message, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rooms WHERE room_id = $1)`,
		roomID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check room: %w", err)
	}
	if !exists {
		return nil, ErrRoomNotFound
	}

	if n < 0 {
		return s.roomMessages(ctx, roomID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT message_id, sender_id, body, client_timestamp
		 FROM messages WHERE room_id = $1 ORDER BY seq DESC LIMIT $2`,
		roomID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, n)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Body, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate latest messages: %w", err)
	}

	// rows come newest first; flip to arrival order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
