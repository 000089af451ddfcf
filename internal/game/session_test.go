package game

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBroadcaster captures every BroadcastToRoom/SendMessageToConnection
// call for assertions, standing in for *ws.Manager without pulling the
// websocket transport into this package's test dependencies.
type recordingBroadcaster struct {
	mu        sync.Mutex
	broadcast []broadcastCall
	direct    []directCall
}

type broadcastCall struct {
	roomID      uuid.UUID
	messageType string
	payload     any
}

type directCall struct {
	connID      uuid.UUID
	messageType string
	payload     any
}

func (b *recordingBroadcaster) BroadcastToRoom(roomID uuid.UUID, messageType string, payload any, exceptConnID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcast = append(b.broadcast, broadcastCall{roomID: roomID, messageType: messageType, payload: payload})
}

func (b *recordingBroadcaster) SendMessageToConnection(connID uuid.UUID, messageType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.direct = append(b.direct, directCall{connID: connID, messageType: messageType, payload: payload})
}

func (b *recordingBroadcaster) calls(messageType string) []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcastCall
	for _, c := range b.broadcast {
		if c.messageType == messageType {
			out = append(out, c)
		}
	}
	return out
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// TestNewSessionBroadcastsOpeningEventsAndFullState covers the gap the fixed
// event vocabulary alone can't close: nothing in events.go says where the
// freshly-created tokens start, so NewSession must also emit one
// game_state snapshot alongside the opening game_events.
func TestNewSessionBroadcastsOpeningEventsAndFullState(t *testing.T) {
	board := DefaultBoardSetup([]int{0, 1})
	state := NewGame(uuid.New(), []int{0, 1}, board)
	b := &recordingBroadcaster{}

	session := NewSession(state, NewSequenceRoller(), b, testLogger(), nil)
	defer session.Stop()

	events := b.calls("game_events")
	require.Len(t, events, 1)
	payload, ok := events[0].payload.([]Event)
	require.True(t, ok)
	assert.True(t, hasEvent(payload, EventGameStarted))
	assert.True(t, hasEvent(payload, EventTurnStarted))
	assert.True(t, hasEvent(payload, EventRollGranted))

	snapshots := b.calls("game_state")
	require.Len(t, snapshots, 1)
	view, ok := snapshots[0].payload.(StateView)
	require.True(t, ok)
	assert.Len(t, view.Tokens, 8) // 2 players x 4 tokens
	assert.Equal(t, state.RoomID, view.RoomID)
	assert.Equal(t, PhaseAwaitingRoll, view.Phase)
}

// TestSessionRejectsActionFromWrongSeatWithoutMutatingState confirms a bad
// action reaches the sender only, via SendMessageToConnection, and never
// reaches the room-wide broadcaster.
func TestSessionRejectsActionFromWrongSeatWithoutMutatingState(t *testing.T) {
	board := DefaultBoardSetup([]int{0, 1})
	state := NewGame(uuid.New(), []int{0, 1}, board)
	b := &recordingBroadcaster{}

	session := NewSession(state, NewSequenceRoller(), b, testLogger(), nil)
	defer session.Stop()

	connID := uuid.New()
	session.Submit(connID, Action{Kind: ActionRoll, ActorSeat: 1}) // not seat 0's turn

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.direct) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, connID, b.direct[0].connID)
	assert.Equal(t, "game_error", b.direct[0].messageType)
	assert.Len(t, b.calls("game_events"), 1) // only the opening broadcast; the rejected action added none
}

// TestSessionManagerStopsItselfWhenGameFinishes confirms a session that
// reaches PhaseFinished deregisters from its manager without an explicit
// Stop call, so a finished game doesn't leak its goroutine and map entry.
func TestSessionManagerStopsItselfWhenGameFinishes(t *testing.T) {
	board := testBoard()
	winner := newToken(0, StateHomestretch, 55)
	already1 := newToken(0, StateHeaven, board.SquaresToWin)
	already2 := newToken(0, StateHeaven, board.SquaresToWin)
	already3 := newToken(0, StateHeaven, board.SquaresToWin)

	state := GameState{
		RoomID:      uuid.New(),
		Board:       board,
		PlayerOrder: []int{0, 1},
		Phase:       PhaseAwaitingMove,
		PendingDie:  3,
		Tokens:      []*Token{winner, already1, already2, already3},
	}

	b := &recordingBroadcaster{}
	sm := NewSessionManager()
	session := sm.Start(state, NewSequenceRoller(), b, testLogger())

	session.Submit(uuid.New(), Action{Kind: ActionMove, ActorSeat: 0, TokenIDs: []uuid.UUID{winner.ID}})

	require.Eventually(t, func() bool {
		_, ok := sm.Get(state.RoomID)
		return !ok
	}, time.Second, 5*time.Millisecond)

	events := b.calls("game_events")
	require.NotEmpty(t, events)
	last, ok := events[len(events)-1].payload.([]Event)
	require.True(t, ok)
	assert.True(t, hasEvent(last, EventGameEnded))
}
