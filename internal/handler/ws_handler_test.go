package handler

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"pairchat/internal/app/chat"
	"pairchat/internal/app/store"
	"pairchat/internal/configs"
)

type testEnv struct {
	server *httptest.Server
	store  store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	st, err := store.OpenJSONFile(filepath.Join(dir, "users.json"), filepath.Join(dir, "rooms.json"), false)
	require.NoError(t, err)

	cfg := &configs.AppConfig{
		Environment:  "development",
		StoreBackend: configs.StoreBackendJSONFile,
	}

	deps := &AppDeps{
		Service:  chat.NewService(st),
		Registry: chat.NewRegistry(),
		Config:   cfg,
	}

	ts := httptest.NewServer(Router(deps))
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, store: st}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func recvFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// register creates an account over the connection and returns the new user id.
func register(t *testing.T, conn *websocket.Conn, username, pw string) string {
	t.Helper()

	sendFrame(t, conn, map[string]any{"type": "user.register", "username": username, "password": pw})

	reply := recvFrame(t, conn)
	require.Equal(t, "user.register.success", reply["type"])

	data, ok := reply["data"].(map[string]any)
	require.True(t, ok)
	userID, ok := data["user_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, userID)

	return userID
}

// login authenticates the connection and returns the rooms list from the reply.
func login(t *testing.T, conn *websocket.Conn, username, pw string) []any {
	t.Helper()

	sendFrame(t, conn, map[string]any{"type": "user.login", "username": username, "password": pw})

	reply := recvFrame(t, conn)
	require.Equal(t, "user.login.success", reply["type"])

	data, ok := reply["data"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, username, data["username"])

	rooms, ok := data["rooms"].([]any)
	require.True(t, ok)
	return rooms
}

func TestRegisterThenLogin(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	// a malformed frame and a premature msg.send are ignored; the
	// connection stays open and the next request is served normally
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	sendFrame(t, conn, map[string]any{"type": "msg.send", "other_id": "x", "data": "hi", "room_id": "r"})

	userID := register(t, conn, "alice", "pw1")
	require.NotEmpty(t, userID)

	// registration does not authenticate; a wrong password is rejected
	sendFrame(t, conn, map[string]any{"type": "user.login", "username": "alice", "password": "nope"})
	reply := recvFrame(t, conn)
	require.Equal(t, "user.login.rejected", reply["type"])
	require.Nil(t, reply["data"])
	require.NotEmpty(t, reply["message"])

	rooms := login(t, conn, "alice", "pw1")
	require.Empty(t, rooms)
}

func TestOnlineDelivery(t *testing.T) {
	env := newTestEnv(t)

	aliceConn := env.dial(t)
	bobConn := env.dial(t)

	aliceID := register(t, aliceConn, "alice", "pw1")
	bobID := register(t, bobConn, "bob", "pw2")

	login(t, aliceConn, "alice", "pw1")
	login(t, bobConn, "bob", "pw2")

	// alice resolves the room with bob
	sendFrame(t, aliceConn, map[string]any{"type": "room.create", "user_id": aliceID, "data": bobID})
	created := recvFrame(t, aliceConn)
	require.Equal(t, "room.create.success", created["type"])
	roomID, ok := created["room_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, roomID)

	// creating from bob's side resolves to the same room
	sendFrame(t, bobConn, map[string]any{"type": "room.create", "user_id": bobID, "data": aliceID})
	createdAgain := recvFrame(t, bobConn)
	require.Equal(t, roomID, createdAgain["room_id"])

	sendFrame(t, aliceConn, map[string]any{
		"type":      "msg.send",
		"other_id":  bobID,
		"data":      "hello bob",
		"timestamp": "1700000001",
		"room_id":   roomID,
	})

	sent := recvFrame(t, aliceConn)
	require.Equal(t, "msg.sent", sent["type"])
	require.NotEmpty(t, sent["message_id"])

	received := recvFrame(t, bobConn)
	require.Equal(t, "msg.recv", received["type"])
	require.Equal(t, sent["message_id"], received["message_id"])
	require.Equal(t, aliceID, received["user_id"])
	require.Equal(t, "hello bob", received["data"])
	require.Equal(t, "1700000001", received["timestamp"])
	require.Equal(t, roomID, received["room_id"])

	// exactly one message persisted
	history, err := env.store.GetLatestMessages(context.Background(), roomID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "hello bob", history[0].Body)
}

func TestOfflineDeliveryViaHistory(t *testing.T) {
	env := newTestEnv(t)

	// alice registers and goes offline
	aliceFirst := env.dial(t)
	aliceID := register(t, aliceFirst, "alice", "pw1")
	require.NoError(t, aliceFirst.Close())

	bobConn := env.dial(t)
	bobID := register(t, bobConn, "bob", "pw2")
	login(t, bobConn, "bob", "pw2")

	sendFrame(t, bobConn, map[string]any{"type": "room.create", "user_id": bobID, "data": aliceID})
	created := recvFrame(t, bobConn)
	roomID, ok := created["room_id"].(string)
	require.True(t, ok)

	sendFrame(t, bobConn, map[string]any{
		"type":      "msg.send",
		"other_id":  aliceID,
		"data":      "are you there?",
		"timestamp": "1700000002",
		"room_id":   roomID,
	})

	// the recipient being offline does not fail the sender's ack
	sent := recvFrame(t, bobConn)
	require.Equal(t, "msg.sent", sent["type"])

	// alice reconnects and finds the message in her room history
	aliceConn := env.dial(t)
	rooms := login(t, aliceConn, "alice", "pw1")
	require.Len(t, rooms, 1)

	room, ok := rooms[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, roomID, room["room_id"])

	messages, ok := room["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)

	msg, ok := messages[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "are you there?", msg["message"])
	require.Equal(t, bobID, msg["sender"])
	require.Equal(t, "1700000002", msg["timestamp"])
}

func TestMessageIntoForeignRoomIgnored(t *testing.T) {
	env := newTestEnv(t)

	aliceConn := env.dial(t)
	bobConn := env.dial(t)
	malloryConn := env.dial(t)

	aliceID := register(t, aliceConn, "alice", "pw1")
	bobID := register(t, bobConn, "bob", "pw2")
	register(t, malloryConn, "mallory", "pw3")

	login(t, aliceConn, "alice", "pw1")
	login(t, malloryConn, "mallory", "pw3")

	sendFrame(t, aliceConn, map[string]any{"type": "room.create", "user_id": aliceID, "data": bobID})
	created := recvFrame(t, aliceConn)
	roomID, ok := created["room_id"].(string)
	require.True(t, ok)

	// mallory knows the room id but is not a participant
	sendFrame(t, malloryConn, map[string]any{
		"type":      "msg.send",
		"other_id":  bobID,
		"data":      "intruding",
		"timestamp": "1700000003",
		"room_id":   roomID,
	})

	// frames on one connection are handled in order, so once the next
	// request is answered the rejected send has been processed
	sendFrame(t, malloryConn, map[string]any{"type": "room.create", "user_id": "", "data": aliceID})
	reply := recvFrame(t, malloryConn)
	require.Equal(t, "room.create.success", reply["type"])

	history, err := env.store.GetLatestMessages(context.Background(), roomID, -1)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestLoginAttemptBudgetClosesConnection(t *testing.T) {
	dir := t.TempDir()
	st, err := store.OpenJSONFile(filepath.Join(dir, "users.json"), filepath.Join(dir, "rooms.json"), false)
	require.NoError(t, err)

	cfg := &configs.AppConfig{
		Environment:      "development",
		StoreBackend:     configs.StoreBackendJSONFile,
		LoginMaxAttempts: 2,
	}

	deps := &AppDeps{
		Service:  chat.NewService(st),
		Registry: chat.NewRegistry(),
		Config:   cfg,
	}

	ts := httptest.NewServer(Router(deps))
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	for i := 0; i < 2; i++ {
		sendFrame(t, conn, map[string]any{"type": "user.login", "username": "ghost", "password": "pw"})
		reply := recvFrame(t, conn)
		require.Equal(t, "user.login.rejected", reply["type"])
	}

	// the budget is exhausted; the server closes the connection
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}
