// Package ws implements the connection manager, wire message schema, and
// handler dispatch for the /api/v1/ws endpoint.
package ws

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/arnavsood/ludoarena/internal/game"
)

// MessageType identifies the shape of a frame's payload.
type MessageType string

const (
	TypeAuthenticate MessageType = "authenticate"
	TypePing         MessageType = "ping"
	TypeToggleReady  MessageType = "toggle_ready"
	TypeLeaveRoom    MessageType = "leave_room"
	TypeStartGame    MessageType = "start_game"
	TypeGameAction   MessageType = "game_action"

	TypeAuthenticated MessageType = "authenticated"
	TypeConnected     MessageType = "connected"
	TypePong          MessageType = "pong"
	TypeRoomUpdated   MessageType = "room_updated"
	TypeRoomClosed    MessageType = "room_closed"
	TypeGameStarted   MessageType = "game_started"
	TypeGameEvents    MessageType = "game_events"
	TypeGameState     MessageType = "game_state"
	TypeGameError     MessageType = "game_error"
	TypeError         MessageType = "error"
)

// ClientMessage is the envelope for every inbound frame, discriminated by
// Type. The read pump decodes only the envelope; Payload stays raw JSON
// until the handler registered for Type decodes it into its own payload
// struct. Required payload fields are not checked at the frame boundary.
type ClientMessage struct {
	Type      MessageType     `json:"type"`
	RequestID *uuid.UUID      `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is the outbound envelope. RequestID is echoed back when the
// triggering client frame carried one.
type ServerMessage struct {
	Type      MessageType `json:"type"`
	RequestID *uuid.UUID  `json:"request_id,omitempty"`
	Payload   any         `json:"payload,omitempty"`
}

// AuthenticatePayload is the body of an `authenticate` frame.
type AuthenticatePayload struct {
	Token    string `json:"token"`
	RoomCode string `json:"room_code"`
}

// GameActionPayload is the body of a `game_action` frame; Kind selects the
// engine action and the remaining fields are interpreted accordingly.
type GameActionPayload struct {
	Kind          string      `json:"kind"`
	TokenIDs      []uuid.UUID `json:"token_ids,omitempty"`
	Die           int         `json:"die,omitempty"`
	TargetGroupID string      `json:"target_group_id,omitempty"`
}

// ErrorPayload is the body of an `error` or `game_error` frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthenticatedPayload is the body of the `authenticated` reply. Game is
// only populated when the room is already in_game, so a reconnecting
// player receives a full board snapshot alongside the room's own snapshot
// instead of waiting for the next event to explain the board.
type AuthenticatedPayload struct {
	ConnectionID uuid.UUID       `json:"connection_id"`
	UserID       uuid.UUID       `json:"user_id"`
	ServerID     string          `json:"server_id"`
	Room         any             `json:"room"`
	Game         *game.StateView `json:"game,omitempty"`
}

// PongPayload is the body of the `pong` reply.
type PongPayload struct {
	ServerTime int64 `json:"server_time"`
}

// RoomClosedPayload is the body of a `room_closed` broadcast.
type RoomClosedPayload struct {
	Reason string `json:"reason"`
}
