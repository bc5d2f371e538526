/*
Package store owns the durable state of users and rooms.

It defines the persistence contract shared by the JSON-file backend (the
canonical on-disk layout: one users document, one rooms document) and the
PostgreSQL backend. Implementations carry no locking of their own; callers
serialize access (see chat.Service).
*/
package store

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrUserNotFound indicates a lookup for an unknown user id or username.
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameTaken indicates a registration with an already used username.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrRoomNotFound indicates an operation referencing an unknown room id.
	ErrRoomNotFound = errors.New("room not found")

	// ErrSameParticipant indicates a room requested for a single user id.
	ErrSameParticipant = errors.New("room requires two distinct participants")

	// ErrNotParticipant indicates a message from a user outside the room.
	ErrNotParticipant = errors.New("sender is not a room participant")
)

// User is a registered account. The password field holds a bcrypt hash; the
// JSON key stays "password" to preserve the users document layout.
type User struct {
	ID       string `json:"user_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Message is one immutable entry in a room's history. The timestamp is
// client-supplied and opaque to the server.
type Message struct {
	ID        string `json:"message_id"`
	Sender    string `json:"sender"`
	Body      string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Room is the persistent conversation container for exactly two participants.
// Messages are append-only, in arrival order.
type Room struct {
	ID       string    `json:"room_id"`
	Users    []string  `json:"users"`
	Messages []Message `json:"messages"`
}

// HasParticipant reports whether userID is one of the room's two participants.
func (r Room) HasParticipant(userID string) bool {
	for _, id := range r.Users {
		if id == userID {
			return true
		}
	}
	return false
}

// PairRoomID derives the room id for an unordered pair of user ids. The ids
// are sorted before joining so both orderings resolve to the same room.
func PairRoomID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return strings.Join([]string{userA, userB}, ":")
}

// Store is the persistence contract backing users, rooms and message history.
// Implementations do not synchronize concurrent callers.
type Store interface {
	// Save flushes state to durable storage. Backends with per-operation
	// durability may implement it as a no-op.
	Save(ctx context.Context) error

	// GetUser returns the user with the given id, or ErrUserNotFound.
	GetUser(ctx context.Context, userID string) (User, error)

	// UsernameExists reports whether a user with this exact username exists.
	// Matching is case-sensitive.
	UsernameExists(ctx context.Context, username string) (bool, error)

	// GetUserByUsername returns the user with this exact username, or
	// ErrUserNotFound.
	GetUserByUsername(ctx context.Context, username string) (User, error)

	// CreateUser registers a new user with a server-generated id. It returns
	// ErrUsernameTaken when the username is already in use.
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)

	// GetRoomsForUser returns every room the user participates in. The order
	// is stable for a static store.
	GetRoomsForUser(ctx context.Context, userID string) ([]Room, error)

	// CreateOrGetRoom resolves the unique room for an unordered pair of user
	// ids, creating it on first use. Both orderings return the same room.
	CreateOrGetRoom(ctx context.Context, userA, userB string) (Room, error)

	// AppendMessage appends a message to a room's history and returns it with
	// a server-generated id. It returns ErrRoomNotFound for unknown rooms and
	// ErrNotParticipant when the sender is not one of the room's participants.
	AppendMessage(ctx context.Context, roomID, senderID, body, timestamp string) (Message, error)

	// GetLatestMessages returns the most recent n messages of a room in
	// arrival order, oldest first. A negative n returns the full history.
	// It returns ErrRoomNotFound for unknown rooms.
	GetLatestMessages(ctx context.Context, roomID string, n int) ([]Message, error)

	// Close releases backend resources.
	Close() error
}
