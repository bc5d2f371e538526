package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pairchat/internal/app/store"
	"pairchat/internal/pkg/errs"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dir := t.TempDir()
	st, err := store.OpenJSONFile(filepath.Join(dir, "users.json"), filepath.Join(dir, "rooms.json"), false)
	require.NoError(t, err)

	return NewService(st)
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()

	var customErr *errs.CustomError
	require.True(t, errors.As(err, &customErr), "expected CustomError, got %v", err)
	require.Equal(t, code, customErr.Code)
}

func TestServiceRegisterAndAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "alice", "pw1")
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)

	// the cleartext password is never stored
	require.NotEqual(t, "pw1", u.Password)

	authed, rooms, err := svc.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
	require.Equal(t, u.ID, authed.ID)
	require.Empty(t, rooms)
}

func TestServiceAuthenticateRejections(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, _, err = svc.Authenticate(ctx, "alice", "wrong")
	requireCode(t, err, errs.ErrInvalidCredentials)

	// unknown user maps to the same rejection as a wrong password
	_, _, err = svc.Authenticate(ctx, "nobody", "pw1")
	requireCode(t, err, errs.ErrInvalidCredentials)
}

func TestServiceRegisterDuplicateUsername(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, err = svc.RegisterUser(ctx, "alice", "pw2")
	requireCode(t, err, errs.ErrUsernameTaken)

	// the original account still authenticates with its own password
	_, _, err = svc.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
}

func TestServiceSendMessagePersists(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	alice, err := svc.RegisterUser(ctx, "alice", "pw1")
	require.NoError(t, err)
	bob, err := svc.RegisterUser(ctx, "bob", "pw2")
	require.NoError(t, err)

	room, err := svc.CreateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, room.ID, alice.ID, "hi bob", "1700000000")
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)

	_, rooms, err := svc.Authenticate(ctx, "bob", "pw2")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	require.Len(t, rooms[0].Messages, 1)
	require.Equal(t, "hi bob", rooms[0].Messages[0].Body)
	require.Equal(t, alice.ID, rooms[0].Messages[0].Sender)
}

func TestServiceSendMessageUnknownRoom(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.SendMessage(context.Background(), "missing", "a", "hi", "t")
	require.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestServiceSendMessageBodyTooLong(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	alice, err := svc.RegisterUser(ctx, "alice", "pw1")
	require.NoError(t, err)
	bob, err := svc.RegisterUser(ctx, "bob", "pw2")
	require.NoError(t, err)

	room, err := svc.CreateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	oversized := strings.Repeat("x", MaxBodyBytes+1)
	_, err = svc.SendMessage(ctx, room.ID, alice.ID, oversized, "t")
	requireCode(t, err, errs.ErrMessageContentTooLong)

	// nothing was persisted
	latest, err := svc.store.GetLatestMessages(ctx, room.ID, -1)
	require.NoError(t, err)
	require.Empty(t, latest)
}

func TestServiceSendMessageOutsideRoom(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	alice, err := svc.RegisterUser(ctx, "alice", "pw1")
	require.NoError(t, err)
	bob, err := svc.RegisterUser(ctx, "bob", "pw2")
	require.NoError(t, err)
	mallory, err := svc.RegisterUser(ctx, "mallory", "pw3")
	require.NoError(t, err)

	room, err := svc.CreateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, room.ID, mallory.ID, "intruding", "t")
	require.ErrorIs(t, err, store.ErrNotParticipant)

	latest, err := svc.store.GetLatestMessages(ctx, room.ID, -1)
	require.NoError(t, err)
	require.Empty(t, latest)
}

func TestServiceConcurrentCreateRoomSamePair(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	alice, err := svc.RegisterUser(ctx, "alice", "pw1")
	require.NoError(t, err)
	bob, err := svc.RegisterUser(ctx, "bob", "pw2")
	require.NoError(t, err)

	const n = 32
	ids := make([]string, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()

			// alternate orderings to exercise the unordered-pair invariant
			a, b := alice.ID, bob.ID
			if i%2 == 1 {
				a, b = b, a
			}

			room, err := svc.CreateRoom(ctx, a, b)
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = room.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.Equal(t, ids[0], ids[i])
	}

	_, rooms, err := svc.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
}
