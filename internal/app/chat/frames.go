/*
Package chat contains the connection/session layer of the relay: the live
session registry, the per-connection state machine and the wire frame model.

This file defines the JSON frames exchanged over the socket. Every frame is an
object with a "type" discriminator. Inbound frames decode into one tagged
variant per type, validated before dispatch, so handlers never touch raw maps.
*/
package chat

import (
	"encoding/json"
	"fmt"

	"pairchat/internal/app/store"
)

// Client → server frame types.
const (
	TypeUserLogin    = "user.login"
	TypeUserRegister = "user.register"
	TypeMsgSend      = "msg.send"
	TypeRoomCreate   = "room.create"
)

// Server → client frame types.
const (
	TypeLoginSuccess     = "user.login.success"
	TypeLoginRejected    = "user.login.rejected"
	TypeRegisterSuccess  = "user.register.success"
	TypeRegisterRejected = "user.register.rejected"
	TypeMsgRecv          = "msg.recv"
	TypeMsgSent          = "msg.sent"
	TypeRoomCreated      = "room.create.success"
)

// Request is the closed set of inbound frame variants.
type Request interface {
	isRequest()
}

// LoginRequest asks to authenticate the session as an existing user.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest asks to create a new account. It does not authenticate
// the session; the client logs in afterwards.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SendMessageRequest asks to persist a message in a room and, when the other
// participant is online, push it live.
type SendMessageRequest struct {
	OtherID   string `json:"other_id"`
	Data      string `json:"data"`
	Timestamp string `json:"timestamp"`
	RoomID    string `json:"room_id"`
}

// CreateRoomRequest asks to resolve the room between the sender and the user
// id carried in Data.
type CreateRoomRequest struct {
	UserID string `json:"user_id"`
	Data   string `json:"data"`
}

func (LoginRequest) isRequest()       {}
func (RegisterRequest) isRequest()    {}
func (SendMessageRequest) isRequest() {}
func (CreateRoomRequest) isRequest()  {}

// DecodeRequest parses a raw frame into its tagged variant. It rejects
// malformed JSON, unknown types and missing required fields; callers log and
// ignore the frame on error, keeping the connection open.
func DecodeRequest(raw []byte) (Request, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch envelope.Type {
	case TypeUserLogin:
		var req LoginRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", envelope.Type, err)
		}
		if req.Username == "" || req.Password == "" {
			return nil, fmt.Errorf("%s frame missing username or password", envelope.Type)
		}
		return req, nil

	case TypeUserRegister:
		var req RegisterRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", envelope.Type, err)
		}
		if req.Username == "" || req.Password == "" {
			return nil, fmt.Errorf("%s frame missing username or password", envelope.Type)
		}
		return req, nil

	case TypeMsgSend:
		var req SendMessageRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", envelope.Type, err)
		}
		if req.OtherID == "" || req.RoomID == "" {
			return nil, fmt.Errorf("%s frame missing other_id or room_id", envelope.Type)
		}
		return req, nil

	case TypeRoomCreate:
		var req CreateRoomRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("malformed %s frame: %w", envelope.Type, err)
		}
		if req.Data == "" {
			return nil, fmt.Errorf("%s frame missing data (other user id)", envelope.Type)
		}
		return req, nil

	default:
		return nil, fmt.Errorf("unknown frame type %q", envelope.Type)
	}
}

// LoginSuccessData is the payload of a user.login.success frame. Rooms carry
// full history so a reconnecting client catches up on offline messages.
type LoginSuccessData struct {
	UserID   string       `json:"user_id"`
	Username string       `json:"username"`
	Rooms    []store.Room `json:"rooms"`
}

// LoginSuccessReply acknowledges a successful login.
type LoginSuccessReply struct {
	Type string           `json:"type"`
	Data LoginSuccessData `json:"data"`
}

// RejectedReply reports a rejected login or registration. Data is always null.
type RejectedReply struct {
	Type    string `json:"type"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// RegisterSuccessData is the payload of a user.register.success frame.
type RegisterSuccessData struct {
	UserID string `json:"user_id"`
}

// RegisterSuccessReply acknowledges a successful registration.
type RegisterSuccessReply struct {
	Type    string              `json:"type"`
	Data    RegisterSuccessData `json:"data"`
	Message string              `json:"message"`
}

// MsgRecvPush is the unsolicited frame pushed to an online recipient.
type MsgRecvPush struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Data      string `json:"data"`
	RoomID    string `json:"room_id"`
	Timestamp string `json:"timestamp"`
}

// MsgSentReply acknowledges a persisted message to its sender.
type MsgSentReply struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// RoomCreatedReply acknowledges a room.create request with the resolved id.
type RoomCreatedReply struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

func newLoginSuccess(u store.User, rooms []store.Room) LoginSuccessReply {
	return LoginSuccessReply{
		Type: TypeLoginSuccess,
		Data: LoginSuccessData{
			UserID:   u.ID,
			Username: u.Username,
			Rooms:    rooms,
		},
	}
}

func newLoginRejected(message string) RejectedReply {
	return RejectedReply{Type: TypeLoginRejected, Data: nil, Message: message}
}

func newRegisterSuccess(userID string) RegisterSuccessReply {
	return RegisterSuccessReply{
		Type:    TypeRegisterSuccess,
		Data:    RegisterSuccessData{UserID: userID},
		Message: "registered successfully",
	}
}

func newRegisterRejected(message string) RejectedReply {
	return RejectedReply{Type: TypeRegisterRejected, Data: nil, Message: message}
}

func newMsgRecv(m store.Message, roomID string) MsgRecvPush {
	return MsgRecvPush{
		Type:      TypeMsgRecv,
		MessageID: m.ID,
		UserID:    m.Sender,
		Data:      m.Body,
		RoomID:    roomID,
		Timestamp: m.Timestamp,
	}
}

func newMsgSent(messageID string) MsgSentReply {
	return MsgSentReply{Type: TypeMsgSent, MessageID: messageID}
}

func newRoomCreated(roomID string) RoomCreatedReply {
	return RoomCreatedReply{Type: TypeRoomCreated, RoomID: roomID}
}
