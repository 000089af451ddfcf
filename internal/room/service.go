// Package room implements the lifecycle rules on top of the repository,
// cache, and connection manager: every mutating operation writes the
// repository first, best-effort refreshes the cache snapshot, then
// broadcasts the result. The repository remains authoritative; the cache
// is reconcilable and never consulted for correctness.
package room

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arnavsood/ludoarena/internal/apperr"
	"github.com/arnavsood/ludoarena/internal/cache"
	"github.com/arnavsood/ludoarena/internal/database"
	"github.com/arnavsood/ludoarena/internal/game"
	"github.com/arnavsood/ludoarena/internal/models"
)

// Broadcaster is the subset of the connection manager the room service
// needs. Defined here, on the consumer side, so this package never imports
// the websocket transport it is broadcast over.
type Broadcaster interface {
	BroadcastToRoom(roomID uuid.UUID, messageType string, payload any, exceptConnID uuid.UUID)
}

// Service composes the repository, cache, and connection manager to
// implement spec-level room lifecycle operations.
type Service struct {
	repo        *database.Repository
	cache       *cache.Cache
	broadcaster Broadcaster
	sessions    *game.SessionManager
	logger      *logrus.Logger
}

// New builds a room Service. sessions lets a room closure stop a live game
// session that would otherwise outlive the room it belongs to.
func New(repo *database.Repository, c *cache.Cache, broadcaster Broadcaster, sessions *game.SessionManager, logger *logrus.Logger) *Service {
	return &Service{repo: repo, cache: c, broadcaster: broadcaster, sessions: sessions, logger: logger}
}

func metaKey(roomID uuid.UUID) string  { return fmt.Sprintf("room:%s:meta", roomID) }
func seatsKey(roomID uuid.UUID) string { return fmt.Sprintf("room:%s:seats", roomID) }

// refreshCache best-effort mirrors a snapshot into the denormalized cache
// hashes. Failures are logged and otherwise ignored.
func (s *Service) refreshCache(ctx context.Context, snap models.RoomSnapshot) {
	meta := map[string]string{
		"code":        snap.Code,
		"status":      string(snap.Status),
		"visibility":  string(snap.Visibility),
		"ruleset_id":  snap.RulesetID,
		"max_players": fmt.Sprintf("%d", snap.MaxPlayers),
		"version":     fmt.Sprintf("%d", snap.Version),
	}
	if err := s.cache.HSetAll(ctx, metaKey(snap.RoomID), meta); err != nil {
		s.logger.WithError(err).WithField("room_id", snap.RoomID).Warn("cache: refresh meta failed")
	}

	seats := make(map[string]string, len(snap.Seats))
	for _, seat := range snap.Seats {
		data, err := json.Marshal(seat)
		if err != nil {
			s.logger.WithError(err).Warn("cache: encode seat failed")
			continue
		}
		seats[fmt.Sprintf("seat:%d", seat.SeatIndex)] = string(data)
	}
	if err := s.cache.HSetAll(ctx, seatsKey(snap.RoomID), seats); err != nil {
		s.logger.WithError(err).WithField("room_id", snap.RoomID).Warn("cache: refresh seats failed")
	}
}

// evictCache drops a closed room's denormalized hashes.
func (s *Service) evictCache(ctx context.Context, roomID uuid.UUID) {
	if err := s.cache.Del(ctx, metaKey(roomID), seatsKey(roomID)); err != nil {
		s.logger.WithError(err).WithField("room_id", roomID).Warn("cache: evict failed")
	}
}

// FindOrCreateRoom allocates (or replays) a room for userID and returns the
// seat/code the caller should use to connect.
func (s *Service) FindOrCreateRoom(ctx context.Context, userID, requestID uuid.UUID, maxPlayers int, visibility models.RoomVisibility, rulesetID string, rulesetConfig map[string]any) (models.FindOrCreateResult, error) {
	result, err := s.repo.FindOrCreateRoom(ctx, userID, requestID, maxPlayers, visibility, rulesetID, rulesetConfig)
	if err != nil {
		return models.FindOrCreateResult{}, err
	}

	if snap, snapErr := s.repo.GetSnapshot(ctx, result.RoomID); snapErr == nil {
		s.refreshCache(ctx, snap)
	}

	return result, nil
}

// ResolveByCode looks up a room by its join code.
func (s *Service) ResolveByCode(ctx context.Context, code string) (models.Room, error) {
	return s.repo.ResolveByCode(ctx, code)
}

// JoinSeat seats userID in roomID, refreshes the cache, and broadcasts the
// new snapshot to everyone else already in the room.
func (s *Service) JoinSeat(ctx context.Context, roomID, userID, exceptConnID uuid.UUID) (models.JoinSeatResult, error) {
	result, err := s.repo.JoinSeat(ctx, roomID, userID)
	if err != nil {
		return models.JoinSeatResult{}, err
	}

	s.refreshCache(ctx, result.Snapshot)
	s.broadcaster.BroadcastToRoom(roomID, "room_updated", result.Snapshot, exceptConnID)
	return result, nil
}

// ToggleReady flips userID's ready flag and broadcasts the outcome.
func (s *Service) ToggleReady(ctx context.Context, roomID, userID uuid.UUID) (models.RoomSnapshot, error) {
	snap, err := s.repo.ToggleReady(ctx, roomID, userID)
	if err != nil {
		return models.RoomSnapshot{}, err
	}

	s.refreshCache(ctx, snap)
	s.broadcaster.BroadcastToRoom(roomID, "room_updated", snap, uuid.Nil)
	return snap, nil
}

// LeaveSeat removes userID from roomID. If that closes the room, the
// denormalized cache entries are evicted and room_closed is broadcast
// instead of room_updated.
func (s *Service) LeaveSeat(ctx context.Context, roomID, userID uuid.UUID, reason string) (models.LeaveSeatResult, error) {
	result, err := s.repo.LeaveSeat(ctx, roomID, userID)
	if err != nil {
		return models.LeaveSeatResult{}, err
	}

	if result.RoomClosed {
		s.evictCache(ctx, roomID)
		s.sessions.Stop(roomID)
		s.broadcaster.BroadcastToRoom(roomID, "room_closed", map[string]string{"reason": reason}, uuid.Nil)
	} else {
		s.refreshCache(ctx, result.Snapshot)
		s.broadcaster.BroadcastToRoom(roomID, "room_updated", result.Snapshot, uuid.Nil)
	}
	return result, nil
}

// MarkConnected flips a seat's connected flag and broadcasts the update.
// Marking a seat disconnected also resets its ready flag to not_ready;
// marking it connected leaves ready as it is. Used on successful auth and
// on disconnect.
func (s *Service) MarkConnected(ctx context.Context, roomID, userID uuid.UUID, connected bool, exceptConnID uuid.UUID) (models.RoomSnapshot, error) {
	snap, err := s.repo.SetConnected(ctx, roomID, userID, connected)
	if err != nil {
		return models.RoomSnapshot{}, err
	}
	s.refreshCache(ctx, snap)
	s.broadcaster.BroadcastToRoom(roomID, "room_updated", snap, exceptConnID)
	return snap, nil
}

// StartGame transitions a ready_to_start room into in_game. Only the host
// may call this, enforced by the caller using the snapshot's seat list.
func (s *Service) StartGame(ctx context.Context, roomID uuid.UUID) (models.RoomSnapshot, error) {
	snap, err := s.repo.StartGame(ctx, roomID)
	if err != nil {
		return models.RoomSnapshot{}, err
	}
	s.refreshCache(ctx, snap)
	s.broadcaster.BroadcastToRoom(roomID, "game_started", snap, uuid.Nil)
	return snap, nil
}

// CloseRoom closes roomID unconditionally and evicts its cache entries.
func (s *Service) CloseRoom(ctx context.Context, roomID uuid.UUID, reason string) error {
	if err := s.repo.CloseRoom(ctx, roomID); err != nil {
		return err
	}
	s.evictCache(ctx, roomID)
	s.sessions.Stop(roomID)
	s.broadcaster.BroadcastToRoom(roomID, "room_closed", map[string]string{"reason": reason}, uuid.Nil)
	return nil
}

// GetSnapshot returns the authoritative view of roomID.
func (s *Service) GetSnapshot(ctx context.Context, roomID uuid.UUID) (models.RoomSnapshot, error) {
	return s.repo.GetSnapshot(ctx, roomID)
}

// SeatForUser finds userID's seat index in roomID's snapshot, returning
// NotInRoom if they do not hold one. Used by the websocket endpoint to
// confirm seat membership during the auth handshake.
func SeatForUser(snap models.RoomSnapshot, userID uuid.UUID) (int, error) {
	for _, seat := range snap.Seats {
		if seat.UserID != nil && *seat.UserID == userID {
			return seat.SeatIndex, nil
		}
	}
	return 0, apperr.New(apperr.NotInRoom, "caller has no seat in this room")
}

// IsHost reports whether userID holds the host seat in snap.
func IsHost(snap models.RoomSnapshot, userID uuid.UUID) bool {
	for _, seat := range snap.Seats {
		if seat.IsHost && seat.UserID != nil && *seat.UserID == userID {
			return true
		}
	}
	return false
}
