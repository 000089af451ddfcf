package database

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arnavsood/ludoarena/internal/apperr"
	"github.com/arnavsood/ludoarena/internal/models"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const maxCodeAttempts = 10
const maxVersionRetries = 5

func generateCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 6)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}

// FindOrCreateRoom implements the idempotent room-creation transaction: a
// repeated request_id replays its stored response, an existing open room
// owned by the user is reused, and otherwise a fresh room with a unique
// code is allocated with the caller seated as host.
func (r *Repository) FindOrCreateRoom(ctx context.Context, userID, requestID uuid.UUID, maxPlayers int, visibility models.RoomVisibility, rulesetID string, rulesetConfig map[string]any) (models.FindOrCreateResult, error) {
	var result models.FindOrCreateResult

	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var status models.IdempotencyStatus
		var payload []byte
		err := tx.QueryRow(ctx,
			`SELECT status, response_payload FROM ws_idempotency WHERE request_id = $1`,
			requestID,
		).Scan(&status, &payload)
		if err == nil {
			switch status {
			case models.IdempotencyCompleted:
				if jsonErr := json.Unmarshal(payload, &result); jsonErr != nil {
					return fmt.Errorf("decode cached idempotency payload: %w", jsonErr)
				}
				result.Cached = true
				return nil
			case models.IdempotencyInProgress:
				return apperr.New(apperr.RequestInProgress, "request already in progress")
			default:
				// fall through and retry as if no record existed
			}
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check idempotency record: %w", err)
		} else {
			if _, err := tx.Exec(ctx,
				`INSERT INTO ws_idempotency (request_id, user_id, status) VALUES ($1, $2, 'in_progress')`,
				requestID, userID,
			); err != nil {
				return fmt.Errorf("insert idempotency record: %w", err)
			}
		}

		var existingID uuid.UUID
		var existingCode string
		err = tx.QueryRow(ctx,
			`SELECT r.id, r.code FROM rooms r
			 JOIN room_seats s ON s.room_id = r.id
			 WHERE r.owner_user_id = $1 AND r.status = 'open'
			 LIMIT 1`,
			userID,
		).Scan(&existingID, &existingCode)
		if err == nil {
			var seatIndex int
			if scanErr := tx.QueryRow(ctx,
				`SELECT seat_index FROM room_seats WHERE room_id = $1 AND user_id = $2`,
				existingID, userID,
			).Scan(&seatIndex); scanErr != nil {
				return fmt.Errorf("locate existing host seat: %w", scanErr)
			}
			result = models.FindOrCreateResult{RoomID: existingID, Code: existingCode, SeatIndex: seatIndex, IsHost: true}
			return finalizeIdempotency(ctx, tx, requestID, result)
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check existing open room: %w", err)
		}

		roomID := uuid.New()
		var code string
		for attempt := 0; ; attempt++ {
			if attempt >= maxCodeAttempts {
				return apperr.New(apperr.CodeGenerationFailed, "exhausted code generation attempts")
			}
			candidate, genErr := generateCode()
			if genErr != nil {
				return fmt.Errorf("generate room code: %w", genErr)
			}
			var exists bool
			if checkErr := tx.QueryRow(ctx,
				`SELECT EXISTS(SELECT 1 FROM rooms WHERE code = $1 AND status != 'closed')`,
				candidate,
			).Scan(&exists); checkErr != nil {
				return fmt.Errorf("check code collision: %w", checkErr)
			}
			if !exists {
				code = candidate
				break
			}
		}

		configJSON, err := json.Marshal(rulesetConfig)
		if err != nil {
			return fmt.Errorf("encode ruleset config: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO rooms (id, code, owner_user_id, status, visibility, max_players, ruleset_id, ruleset_config, version)
			 VALUES ($1, $2, $3, 'open', $4, $5, $6, $7, 1)`,
			roomID, code, userID, visibility, maxPlayers, rulesetID, configJSON,
		); err != nil {
			return fmt.Errorf("insert room: %w", err)
		}

		for seatIndex := 0; seatIndex < maxPlayers; seatIndex++ {
			if seatIndex == 0 {
				if _, err := tx.Exec(ctx,
					`INSERT INTO room_seats (room_id, seat_index, user_id, is_host, ready, connected, status, joined_at)
					 VALUES ($1, $2, $3, true, 'not_ready', false, 'occupied', now())`,
					roomID, seatIndex, userID,
				); err != nil {
					return fmt.Errorf("insert host seat: %w", err)
				}
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO room_seats (room_id, seat_index, is_host, ready, connected, status)
				 VALUES ($1, $2, false, 'not_ready', false, 'empty')`,
				roomID, seatIndex,
			); err != nil {
				return fmt.Errorf("insert empty seat %d: %w", seatIndex, err)
			}
		}

		result = models.FindOrCreateResult{RoomID: roomID, Code: code, SeatIndex: 0, IsHost: true}
		return finalizeIdempotency(ctx, tx, requestID, result)
	})
	if err != nil {
		return models.FindOrCreateResult{}, err
	}
	return result, nil
}

func finalizeIdempotency(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, result models.FindOrCreateResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode idempotency payload: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE ws_idempotency SET status = 'completed', response_payload = $1 WHERE request_id = $2`,
		payload, requestID,
	); err != nil {
		return fmt.Errorf("finalize idempotency record: %w", err)
	}
	return nil
}

// ResolveByCode looks up a room by its join code, case-insensitively.
func (r *Repository) ResolveByCode(ctx context.Context, code string) (models.Room, error) {
	var room models.Room
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, owner_user_id, status, visibility, max_players, ruleset_id, version
		 FROM rooms WHERE code = upper($1)`,
		code,
	).Scan(&room.ID, &room.Code, &room.OwnerUserID, &room.Status, &room.Visibility, &room.MaxPlayers, &room.RulesetID, &room.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Room{}, apperr.New(apperr.RoomNotFound, "room not found")
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("resolve room by code: %w", err)
	}
	return room, nil
}

// JoinSeat seats userID in the lowest-indexed empty seat of roomID, or
// returns the user's existing seat if they are already a member.
func (r *Repository) JoinSeat(ctx context.Context, roomID, userID uuid.UUID) (models.JoinSeatResult, error) {
	var result models.JoinSeatResult

	for attempt := 0; ; attempt++ {
		if attempt >= maxVersionRetries {
			return models.JoinSeatResult{}, apperr.New(apperr.InternalError, "exhausted version retries")
		}

		var status models.RoomStatus
		var version, maxPlayers int
		err := r.pool.QueryRow(ctx,
			`SELECT status, version, max_players FROM rooms WHERE id = $1`, roomID,
		).Scan(&status, &version, &maxPlayers)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.JoinSeatResult{}, apperr.New(apperr.RoomNotFound, "room not found")
		}
		if err != nil {
			return models.JoinSeatResult{}, fmt.Errorf("read room for join: %w", err)
		}

		var existingSeat int
		hasExisting := true
		if scanErr := r.pool.QueryRow(ctx,
			`SELECT seat_index FROM room_seats WHERE room_id = $1 AND user_id = $2`,
			roomID, userID,
		).Scan(&existingSeat); scanErr != nil {
			if !errors.Is(scanErr, pgx.ErrNoRows) {
				return models.JoinSeatResult{}, fmt.Errorf("check existing seat: %w", scanErr)
			}
			hasExisting = false
		}

		if hasExisting {
			snapshot, err := r.GetSnapshot(ctx, roomID)
			if err != nil {
				return models.JoinSeatResult{}, err
			}
			return models.JoinSeatResult{SeatIndex: existingSeat, Snapshot: snapshot}, nil
		}

		if status == models.RoomStatusClosed {
			return models.JoinSeatResult{}, apperr.New(apperr.RoomClosed, "room is closed")
		}
		if status == models.RoomStatusInGame {
			return models.JoinSeatResult{}, apperr.New(apperr.RoomInGame, "room already in game and caller has no seat")
		}

		var seatIndex int
		err = r.pool.QueryRow(ctx,
			`SELECT seat_index FROM room_seats WHERE room_id = $1 AND status = 'empty' ORDER BY seat_index LIMIT 1`,
			roomID,
		).Scan(&seatIndex)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.JoinSeatResult{}, apperr.New(apperr.RoomFull, "no empty seats")
		}
		if err != nil {
			return models.JoinSeatResult{}, fmt.Errorf("find empty seat: %w", err)
		}

		tag, err := r.pool.Exec(ctx,
			`UPDATE rooms SET version = version + 1 WHERE id = $1 AND version = $2`,
			roomID, version,
		)
		if err != nil {
			return models.JoinSeatResult{}, fmt.Errorf("bump room version on join: %w", err)
		}
		if tag.RowsAffected() == 0 {
			continue // lost the optimistic-lock race, retry
		}

		if _, err := r.pool.Exec(ctx,
			`UPDATE room_seats SET user_id = $1, status = 'occupied', connected = false, joined_at = now(), left_at = NULL
			 WHERE room_id = $2 AND seat_index = $3`,
			userID, roomID, seatIndex,
		); err != nil {
			return models.JoinSeatResult{}, fmt.Errorf("occupy seat: %w", err)
		}

		snapshot, err := r.GetSnapshot(ctx, roomID)
		if err != nil {
			return models.JoinSeatResult{}, err
		}
		result = models.JoinSeatResult{SeatIndex: seatIndex, Snapshot: snapshot}
		return result, nil
	}
}

// ToggleReady flips userID's ready flag in roomID and recomputes the room's
// open/ready_to_start status.
func (r *Repository) ToggleReady(ctx context.Context, roomID, userID uuid.UUID) (models.RoomSnapshot, error) {
	for attempt := 0; ; attempt++ {
		if attempt >= maxVersionRetries {
			return models.RoomSnapshot{}, apperr.New(apperr.InternalError, "exhausted version retries")
		}

		var version int
		var status models.RoomStatus
		if err := r.pool.QueryRow(ctx,
			`SELECT version, status FROM rooms WHERE id = $1`, roomID,
		).Scan(&version, &status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.RoomSnapshot{}, apperr.New(apperr.RoomNotFound, "room not found")
			}
			return models.RoomSnapshot{}, fmt.Errorf("read room for ready toggle: %w", err)
		}
		if status == models.RoomStatusClosed {
			return models.RoomSnapshot{}, apperr.New(apperr.RoomClosed, "room is closed")
		}
		if status == models.RoomStatusInGame {
			return models.RoomSnapshot{}, apperr.New(apperr.RoomInGame, "cannot toggle ready once the game has started")
		}

		var current bool
		if err := r.pool.QueryRow(ctx,
			`SELECT ready = 'ready' FROM room_seats WHERE room_id = $1 AND user_id = $2`,
			roomID, userID,
		).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.RoomSnapshot{}, apperr.New(apperr.NotInRoom, "caller has no seat in this room")
			}
			return models.RoomSnapshot{}, fmt.Errorf("read seat ready flag: %w", err)
		}

		newReady := models.ReadyStatusReady
		if current {
			newReady = models.ReadyStatusNotReady
		}

		tag, err := r.pool.Exec(ctx,
			`UPDATE rooms SET version = version + 1 WHERE id = $1 AND version = $2`,
			roomID, version,
		)
		if err != nil {
			return models.RoomSnapshot{}, fmt.Errorf("bump room version on ready toggle: %w", err)
		}
		if tag.RowsAffected() == 0 {
			continue
		}

		if _, err := r.pool.Exec(ctx,
			`UPDATE room_seats SET ready = $1 WHERE room_id = $2 AND user_id = $3`,
			newReady, roomID, userID,
		); err != nil {
			return models.RoomSnapshot{}, fmt.Errorf("write seat ready flag: %w", err)
		}

		var occupied, ready int
		if err := r.pool.QueryRow(ctx,
			`SELECT count(*) FILTER (WHERE status = 'occupied'),
			        count(*) FILTER (WHERE status = 'occupied' AND ready = 'ready')
			 FROM room_seats WHERE room_id = $1`,
			roomID,
		).Scan(&occupied, &ready); err != nil {
			return models.RoomSnapshot{}, fmt.Errorf("count ready seats: %w", err)
		}

		nextStatus := status
		if occupied >= 2 && occupied == ready {
			nextStatus = models.RoomStatusReadyToStart
		} else if status == models.RoomStatusReadyToStart {
			nextStatus = models.RoomStatusOpen
		}
		if nextStatus != status {
			if _, err := r.pool.Exec(ctx,
				`UPDATE rooms SET status = $1 WHERE id = $2`, nextStatus, roomID,
			); err != nil {
				return models.RoomSnapshot{}, fmt.Errorf("write room status after ready toggle: %w", err)
			}
		}

		return r.GetSnapshot(ctx, roomID)
	}
}

// LeaveSeat vacates userID's seat in roomID. A departing host closes the
// room outright if the game has not started; otherwise the seat simply
// empties and no automatic host handoff occurs.
func (r *Repository) LeaveSeat(ctx context.Context, roomID, userID uuid.UUID) (models.LeaveSeatResult, error) {
	var result models.LeaveSeatResult

	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var status models.RoomStatus
		var isHost bool
		err := tx.QueryRow(ctx,
			`SELECT r.status, s.is_host FROM rooms r
			 JOIN room_seats s ON s.room_id = r.id
			 WHERE r.id = $1 AND s.user_id = $2`,
			roomID, userID,
		).Scan(&status, &isHost)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.NotInRoom, "caller has no seat in this room")
		}
		if err != nil {
			return fmt.Errorf("read seat for leave: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE room_seats SET user_id = NULL, status = 'empty', connected = false,
			        ready = 'not_ready', left_at = now()
			 WHERE room_id = $1 AND user_id = $2`,
			roomID, userID,
		); err != nil {
			return fmt.Errorf("vacate seat: %w", err)
		}

		if isHost && status != models.RoomStatusInGame {
			if _, err := tx.Exec(ctx,
				`UPDATE rooms SET status = 'closed', closed_at = now(), version = version + 1 WHERE id = $1`,
				roomID,
			); err != nil {
				return fmt.Errorf("close room on host departure: %w", err)
			}
			result.RoomClosed = true
		} else {
			if _, err := tx.Exec(ctx,
				`UPDATE rooms SET version = version + 1 WHERE id = $1`, roomID,
			); err != nil {
				return fmt.Errorf("bump room version on leave: %w", err)
			}
		}

		snapshot, err := r.snapshotTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		result.Snapshot = snapshot
		return nil
	})
	if err != nil {
		return models.LeaveSeatResult{}, err
	}
	return result, nil
}

// SetConnected flips userID's connected flag in roomID. Disconnecting also
// resets ready, since a player who dropped mid-lobby should not keep the
// room in ready_to_start on their behalf.
func (r *Repository) SetConnected(ctx context.Context, roomID, userID uuid.UUID, connected bool) (models.RoomSnapshot, error) {
	var tag pgconn.CommandTag
	var err error
	if connected {
		tag, err = r.pool.Exec(ctx,
			`UPDATE room_seats SET connected = true WHERE room_id = $1 AND user_id = $2`,
			roomID, userID,
		)
	} else {
		tag, err = r.pool.Exec(ctx,
			`UPDATE room_seats SET connected = false, ready = 'not_ready' WHERE room_id = $1 AND user_id = $2`,
			roomID, userID,
		)
	}
	if err != nil {
		return models.RoomSnapshot{}, fmt.Errorf("set seat connected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.RoomSnapshot{}, apperr.New(apperr.NotInRoom, "caller has no seat in this room")
	}
	return r.GetSnapshot(ctx, roomID)
}

// StartGame transitions a ready_to_start room into in_game.
func (r *Repository) StartGame(ctx context.Context, roomID uuid.UUID) (models.RoomSnapshot, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE rooms SET status = 'in_game', started_at = now(), version = version + 1
		 WHERE id = $1 AND status = 'ready_to_start'`,
		roomID,
	)
	if err != nil {
		return models.RoomSnapshot{}, fmt.Errorf("start game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.RoomSnapshot{}, apperr.New(apperr.BadPhase, "room is not ready to start")
	}
	return r.GetSnapshot(ctx, roomID)
}

// CloseRoom marks roomID closed unconditionally.
func (r *Repository) CloseRoom(ctx context.Context, roomID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE rooms SET status = 'closed', closed_at = now(), version = version + 1 WHERE id = $1`,
		roomID,
	)
	if err != nil {
		return fmt.Errorf("close room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.RoomNotFound, "room not found")
	}
	return nil
}

// GetSnapshot returns the full authoritative view of a room.
func (r *Repository) GetSnapshot(ctx context.Context, roomID uuid.UUID) (models.RoomSnapshot, error) {
	return r.snapshotTx(ctx, r.pool, roomID)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// snapshotTx run inside or outside an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) snapshotTx(ctx context.Context, q querier, roomID uuid.UUID) (models.RoomSnapshot, error) {
	var snap models.RoomSnapshot
	err := q.QueryRow(ctx,
		`SELECT id, code, status, visibility, ruleset_id, max_players, version FROM rooms WHERE id = $1`,
		roomID,
	).Scan(&snap.RoomID, &snap.Code, &snap.Status, &snap.Visibility, &snap.RulesetID, &snap.MaxPlayers, &snap.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RoomSnapshot{}, apperr.New(apperr.RoomNotFound, "room not found")
	}
	if err != nil {
		return models.RoomSnapshot{}, fmt.Errorf("read room for snapshot: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT s.seat_index, s.user_id, p.display_name, s.ready = 'ready', s.connected, s.is_host
		 FROM room_seats s
		 LEFT JOIN profiles p ON p.id = s.user_id
		 WHERE s.room_id = $1
		 ORDER BY s.seat_index`,
		roomID,
	)
	if err != nil {
		return models.RoomSnapshot{}, fmt.Errorf("read seats for snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seat models.SeatSnapshot
		if err := rows.Scan(&seat.SeatIndex, &seat.UserID, &seat.DisplayName, &seat.Ready, &seat.Connected, &seat.IsHost); err != nil {
			return models.RoomSnapshot{}, fmt.Errorf("scan seat snapshot: %w", err)
		}
		snap.Seats = append(snap.Seats, seat)
	}
	if err := rows.Err(); err != nil {
		return models.RoomSnapshot{}, fmt.Errorf("iterate seat snapshots: %w", err)
	}

	return snap, nil
}
