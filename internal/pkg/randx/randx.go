/*
Package randx generates the unique identifiers used across the server.

User, session and message ids are all UUID v4 strings generated server-side.
*/
package randx

import "github.com/google/uuid"

// UserID generates a unique identifier for a newly registered user.
func UserID() string {
	return uuid.New().String()
}

// SessionID generates a unique identifier scoped to one connection's lifetime.
func SessionID() string {
	return uuid.New().String()
}

// MessageID generates a unique identifier for a persisted message.
func MessageID() string {
	return uuid.New().String()
}
