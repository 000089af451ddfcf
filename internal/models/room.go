// Package models defines the persistent and in-memory shapes shared by the
// room repository, room service, connection manager, and game engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the lifecycle phase of a room.
type RoomStatus string

const (
	RoomStatusOpen         RoomStatus = "open"
	RoomStatusReadyToStart RoomStatus = "ready_to_start"
	RoomStatusInGame       RoomStatus = "in_game"
	RoomStatusClosed       RoomStatus = "closed"
)

// RoomVisibility controls whether a room is discoverable.
type RoomVisibility string

const (
	RoomVisibilityPrivate RoomVisibility = "private"
	RoomVisibilityPublic  RoomVisibility = "public"
)

// ReadyStatus is a seat's ready-to-start flag.
type ReadyStatus string

const (
	ReadyStatusNotReady ReadyStatus = "not_ready"
	ReadyStatusReady    ReadyStatus = "ready"
)

// SeatStatus tracks whether a seat currently holds a member.
type SeatStatus string

const (
	SeatStatusEmpty    SeatStatus = "empty"
	SeatStatusOccupied SeatStatus = "occupied"
	SeatStatusLeft     SeatStatus = "left"
)

// Room is the persistent row backing a joinable lobby/game container.
type Room struct {
	ID            uuid.UUID
	Code          string // 6 chars, A-Z0-9, unique across non-closed rooms
	OwnerUserID   uuid.UUID
	Status        RoomStatus
	Visibility    RoomVisibility
	MaxPlayers    int
	RulesetID     string
	RulesetConfig map[string]any
	CreatedAt     time.Time
	StartedAt     *time.Time
	ClosedAt      *time.Time
	Version       int
}

// Seat is one numbered slot within a room.
type Seat struct {
	RoomID      uuid.UUID
	SeatIndex   int
	UserID      *uuid.UUID
	DisplayName string
	IsHost      bool
	Ready       ReadyStatus
	Connected   bool
	Status      SeatStatus
	JoinedAt    *time.Time
	LeftAt      *time.Time
}

// IdempotencyStatus is the lifecycle of a deduplicated request.
type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "in_progress"
	IdempotencyCompleted  IdempotencyStatus = "completed"
	IdempotencyFailed     IdempotencyStatus = "failed"
)

// IdempotencyRecord is the persisted receipt of a client request.
type IdempotencyRecord struct {
	RequestID       uuid.UUID
	UserID          uuid.UUID
	Status          IdempotencyStatus
	ResponsePayload []byte // canonical JSON reply for retries
}

// SeatSnapshot is the externally-visible view of one seat.
type SeatSnapshot struct {
	SeatIndex   int        `json:"seat_index"`
	UserID      *uuid.UUID `json:"user_id"`
	DisplayName *string    `json:"display_name"`
	Ready       bool       `json:"ready"`
	Connected   bool       `json:"connected"`
	IsHost      bool       `json:"is_host"`
}

// RoomSnapshot is the full authoritative description of a room, suitable
// for a complete client redraw.
type RoomSnapshot struct {
	RoomID     uuid.UUID      `json:"room_id"`
	Code       string         `json:"code"`
	Status     RoomStatus     `json:"status"`
	Visibility RoomVisibility `json:"visibility"`
	RulesetID  string         `json:"ruleset_id"`
	MaxPlayers int            `json:"max_players"`
	Seats      []SeatSnapshot `json:"seats"`
	Version    int            `json:"version"`
}

// FindOrCreateResult is returned by the room repository's find-or-create op.
type FindOrCreateResult struct {
	RoomID    uuid.UUID
	Code      string
	SeatIndex int
	IsHost    bool
	Cached    bool
}

// JoinSeatResult is returned by the room repository's join op.
type JoinSeatResult struct {
	SeatIndex int
	Snapshot  RoomSnapshot
}

// LeaveSeatResult is returned by the room repository's leave op.
type LeaveSeatResult struct {
	Snapshot    RoomSnapshot
	RoomClosed  bool
}
