package ws

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewManager(logger)
}

func TestDispatchUnknownTypeReturnsInvalidMessage(t *testing.T) {
	d := NewDispatcher(map[MessageType]HandlerFunc{})
	result := d.Dispatch(HandlerContext{Message: ClientMessage{Type: "bogus"}})
	require.NotNil(t, result)
	require.NotNil(t, result.Response)
	payload, ok := result.Response.Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "INVALID_MESSAGE", payload.Code)
}

func TestDispatchRequiresAuthForProtectedTypes(t *testing.T) {
	called := false
	d := NewDispatcher(map[MessageType]HandlerFunc{
		TypeToggleReady: func(hctx HandlerContext) (*HandlerResult, error) {
			called = true
			return &HandlerResult{}, nil
		},
	})

	result := d.Dispatch(HandlerContext{Message: ClientMessage{Type: TypeToggleReady}})
	require.NotNil(t, result)
	payload, ok := result.Response.Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "UNAUTHENTICATED", payload.Code)
	assert.False(t, called)
}

func TestDispatchAllowsPingWithoutAuth(t *testing.T) {
	d := NewDispatcher(map[MessageType]HandlerFunc{
		TypePing: handlePing,
	})

	result := d.Dispatch(HandlerContext{Ctx: context.Background(), Message: ClientMessage{Type: TypePing}})
	require.NotNil(t, result)
	require.NotNil(t, result.Response)
	assert.Equal(t, TypePong, result.Response.Type)
}

func TestManagerAuthenticateBindsIndices(t *testing.T) {
	m := testManager()
	conn := m.Register(nil)
	userID := uuid.New()
	roomID := uuid.New()

	m.Authenticate(conn.ID, userID, roomID, 2)

	got, ok := m.GetConnection(conn.ID)
	require.True(t, ok)
	assert.True(t, got.Authenticated)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, roomID, got.RoomID)
	assert.Equal(t, 2, got.SeatIndex)
	assert.Equal(t, 1, m.RoomConnectionCount(roomID))
}

func TestManagerUnsubscribeRemovesRoomIndexOnly(t *testing.T) {
	m := testManager()
	conn := m.Register(nil)
	userID := uuid.New()
	roomID := uuid.New()
	m.Authenticate(conn.ID, userID, roomID, 0)

	m.Unsubscribe(conn.ID)

	assert.Equal(t, 0, m.RoomConnectionCount(roomID))
	got, ok := m.GetConnection(conn.ID)
	require.True(t, ok)
	assert.Equal(t, uuid.Nil, got.RoomID)
}
