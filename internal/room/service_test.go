package room

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/arnavsood/ludoarena/internal/apperr"
	"github.com/arnavsood/ludoarena/internal/models"
)

func snapshotWith(seats ...models.SeatSnapshot) models.RoomSnapshot {
	return models.RoomSnapshot{RoomID: uuid.New(), Code: "ABC123", Seats: seats}
}

func TestSeatForUserFindsOccupant(t *testing.T) {
	uid := uuid.New()
	snap := snapshotWith(
		models.SeatSnapshot{SeatIndex: 0, UserID: &uid},
		models.SeatSnapshot{SeatIndex: 1},
	)

	idx, err := SeatForUser(snap, uid)
	assert.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestSeatForUserReturnsNotInRoom(t *testing.T) {
	snap := snapshotWith(models.SeatSnapshot{SeatIndex: 0})

	_, err := SeatForUser(snap, uuid.New())
	ae, ok := apperr.As(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.NotInRoom, ae.Code)
}

func TestIsHostChecksHostSeatOwnership(t *testing.T) {
	host := uuid.New()
	guest := uuid.New()
	snap := snapshotWith(
		models.SeatSnapshot{SeatIndex: 0, UserID: &host, IsHost: true},
		models.SeatSnapshot{SeatIndex: 1, UserID: &guest},
	)

	assert.True(t, IsHost(snap, host))
	assert.False(t, IsHost(snap, guest))
	assert.False(t, IsHost(snap, uuid.New()))
}
