package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequestVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Request
	}{
		{
			name: "login",
			raw:  `{"type":"user.login","username":"alice","password":"pw1"}`,
			want: LoginRequest{Username: "alice", Password: "pw1"},
		},
		{
			name: "register",
			raw:  `{"type":"user.register","username":"bob","password":"pw2"}`,
			want: RegisterRequest{Username: "bob", Password: "pw2"},
		},
		{
			name: "msg.send",
			raw:  `{"type":"msg.send","other_id":"u2","data":"hi","timestamp":"1700000000","room_id":"u1:u2"}`,
			want: SendMessageRequest{OtherID: "u2", Data: "hi", Timestamp: "1700000000", RoomID: "u1:u2"},
		},
		{
			name: "room.create",
			raw:  `{"type":"room.create","user_id":"u1","data":"u2"}`,
			want: CreateRoomRequest{UserID: "u1", Data: "u2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.raw))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRequestRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{nope`},
		{name: "unknown type", raw: `{"type":"msg.delete","message_id":"m1"}`},
		{name: "missing type", raw: `{"username":"alice"}`},
		{name: "login without password", raw: `{"type":"user.login","username":"alice"}`},
		{name: "register without username", raw: `{"type":"user.register","password":"pw"}`},
		{name: "msg.send without room", raw: `{"type":"msg.send","other_id":"u2","data":"hi"}`},
		{name: "room.create without data", raw: `{"type":"room.create","user_id":"u1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tt.raw))
			require.Error(t, err)
		})
	}
}
