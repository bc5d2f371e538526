package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndBind(t *testing.T) {
	r := NewRegistry()

	s := &Session{}
	sessionID := r.Register(s)
	require.NotEmpty(t, sessionID)
	require.Equal(t, 1, r.Count())

	// unauthenticated sessions are not discoverable by user id
	_, online := r.FindOnline("user-1")
	require.False(t, online)

	r.BindUser(sessionID, "user-1")

	found, online := r.FindOnline("user-1")
	require.True(t, online)
	require.Same(t, s, found)
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()

	s := &Session{}
	sessionID := r.Register(s)
	r.BindUser(sessionID, "user-1")

	r.Unregister(sessionID)
	require.Equal(t, 0, r.Count())

	_, online := r.FindOnline("user-1")
	require.False(t, online)

	// double-unregister is a no-op
	r.Unregister(sessionID)
	require.Equal(t, 0, r.Count())
}

func TestRegistryBindUnknownSessionIgnored(t *testing.T) {
	r := NewRegistry()

	r.BindUser("missing", "user-1")

	_, online := r.FindOnline("user-1")
	require.False(t, online)
}

func TestRegistryNewestSessionWinsDelivery(t *testing.T) {
	r := NewRegistry()

	first := &Session{}
	firstID := r.Register(first)
	r.BindUser(firstID, "user-1")

	second := &Session{}
	secondID := r.Register(second)
	r.BindUser(secondID, "user-1")

	found, online := r.FindOnline("user-1")
	require.True(t, online)
	require.Same(t, second, found)

	// dropping the newest session clears the index even though the old
	// session is still registered
	r.Unregister(secondID)
	_, online = r.FindOnline("user-1")
	require.False(t, online)
	require.Equal(t, 1, r.Count())
}
