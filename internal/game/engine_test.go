package game

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBoard() BoardSetup {
	return DefaultBoardSetup([]int{0, 1})
}

func newToken(owner int, state TokenState, progress int) *Token {
	return &Token{ID: uuid.New(), Owner: owner, State: state, Progress: progress}
}

func hasEvent(events []Event, t EventType) bool {
	for _, e := range events {
		if e.Type == t {
			return true
		}
	}
	return false
}

// TestEffectiveRollLaw covers the stack effective-roll scenario from the
// design notes: a two-token stack advances by floor(raw/height) as a unit.
func TestEffectiveRollLaw(t *testing.T) {
	a := newToken(0, StateRoad, 10)
	b := newToken(0, StateRoad, 10)
	board := testBoard()
	state := GameState{
		Board:       board,
		PlayerOrder: []int{0, 1},
		Phase:       PhaseAwaitingMove,
		PendingDie:  5,
		Tokens:      []*Token{a, b},
	}

	next, events, err := ProcessAction(state, Action{Kind: ActionMove, ActorSeat: 0, TokenIDs: []uuid.UUID{a.ID, b.ID}}, nil)
	require.NoError(t, err)
	assert.True(t, hasEvent(events, EventTokenMoved))
	for _, tok := range next.Tokens {
		assert.Equal(t, 12, tok.Progress)
	}

	state2 := next
	state2.Phase = PhaseAwaitingMove
	state2.PendingDie = 3
	next2, _, err := ProcessAction(state2, Action{Kind: ActionMove, ActorSeat: 0, TokenIDs: []uuid.UUID{a.ID, b.ID}}, nil)
	require.NoError(t, err)
	for _, tok := range next2.Tokens {
		assert.Equal(t, 13, tok.Progress)
	}
}

// TestCaptureGrantsBonusRoll matches the concrete scenario: landing on a
// non-safe square occupied by a lone opponent token captures it and grants
// a bonus roll without ending the turn.
func TestCaptureGrantsBonusRoll(t *testing.T) {
	board := testBoard()
	mover := newToken(0, StateRoad, 15) // start 0 + 15 -> abs 15, will land on abs 20
	victim := newToken(1, StateRoad, 7) // start 13 + 7 -> abs 20
	other := newToken(1, StateRoad, 0)

	state := GameState{
		Board:       board,
		PlayerOrder: []int{0, 1},
		Phase:       PhaseAwaitingMove,
		PendingDie:  5,
		Tokens:      []*Token{mover, victim, other},
	}

	next, events, err := ProcessAction(state, Action{Kind: ActionMove, ActorSeat: 0, TokenIDs: []uuid.UUID{mover.ID}}, nil)
	require.NoError(t, err)
	assert.True(t, hasEvent(events, EventCaptureOccurred))
	assert.True(t, hasEvent(events, EventBonusRollGranted))
	assert.Equal(t, PhaseAwaitingRoll, next.Phase)
	assert.Equal(t, 0, next.CurrentPlayer())

	for _, tok := range next.Tokens {
		if tok.ID == victim.ID {
			assert.Equal(t, StateHell, tok.State)
			assert.Equal(t, 0, tok.Progress)
		}
	}
}

// TestSafeSquareBlocksCapture asserts a mover landing on a safe square never
// captures, even with opponents present.
func TestSafeSquareBlocksCapture(t *testing.T) {
	board := testBoard()
	mover := newToken(0, StateRoad, 5) // lands on abs 8, a shared safe square
	victimOnSafe := newToken(1, StateRoad, (8-13+52)%52)

	state := GameState{
		Board:       board,
		PlayerOrder: []int{0, 1},
		Phase:       PhaseAwaitingMove,
		PendingDie:  3,
		Tokens:      []*Token{mover, victimOnSafe},
	}

	next, events, err := ProcessAction(state, Action{Kind: ActionMove, ActorSeat: 0, TokenIDs: []uuid.UUID{mover.ID}}, nil)
	require.NoError(t, err)
	assert.False(t, hasEvent(events, EventCaptureOccurred))
	for _, tok := range next.Tokens {
		if tok.ID == victimOnSafe.ID {
			assert.Equal(t, StateRoad, tok.State)
		}
	}
}

// TestThreeSixesPenaltyEndsTurnWithNoNetMovement covers the three-sixes law:
// the third consecutive six by one player ends their turn immediately and
// contributes no movement of its own.
func TestThreeSixesPenaltyEndsTurnWithNoNetMovement(t *testing.T) {
	board := testBoard()
	inHell := newToken(0, StateHell, 0)
	heavenA := newToken(0, StateHeaven, board.SquaresToWin)
	heavenB := newToken(0, StateHeaven, board.SquaresToWin)
	heavenC := newToken(0, StateHeaven, board.SquaresToWin)
	other := newToken(1, StateHell, 0)

	state := GameState{
		Board:       board,
		PlayerOrder: []int{0, 1},
		Phase:       PhaseAwaitingRoll,
		Tokens:      []*Token{inHell, heavenA, heavenB, heavenC, other},
	}

	roller := NewSequenceRoller(6, 6, 6)

	state, _, err := ProcessAction(state, Action{Kind: ActionRoll, ActorSeat: 0}, roller)
	require.NoError(t, err)
	require.Equal(t, PhaseAwaitingRoll, state.Phase)
	require.Equal(t, 0, state.CurrentPlayer())

	state, _, err = ProcessAction(state, Action{Kind: ActionRoll, ActorSeat: 0}, roller)
	require.NoError(t, err)
	require.Equal(t, PhaseAwaitingRoll, state.Phase)
	require.Equal(t, 0, state.CurrentPlayer())
	progressBeforeThirdSix := progressOf(state, inHell.ID)

	state, events, err := ProcessAction(state, Action{Kind: ActionRoll, ActorSeat: 0}, roller)
	require.NoError(t, err)

	assert.True(t, hasEvent(events, EventThreeSixesPenalty))
	assert.True(t, hasEvent(events, EventTurnEnded))
	assert.Equal(t, 0, state.ConsecutiveSixes)
	assert.Equal(t, 1, state.CurrentPlayer())
	assert.Equal(t, progressBeforeThirdSix, progressOf(state, inHell.ID))
}

// TestPlainSixAlwaysBonusesEvenWithNoLegalMoves matches spec scenario 4: a
// raw six that isn't the third in a row still grants another roll even when
// legal moves are checked for that six and none exist.
func TestPlainSixAlwaysBonusesEvenWithNoLegalMoves(t *testing.T) {
	board := testBoard()
	stuck := newToken(0, StateHomestretch, 55) // 55+6=61 overshoots, no legal move
	heavenA := newToken(0, StateHeaven, board.SquaresToWin)
	heavenB := newToken(0, StateHeaven, board.SquaresToWin)
	heavenC := newToken(0, StateHeaven, board.SquaresToWin)
	other := newToken(1, StateHell, 0)

	state := GameState{
		Board:       board,
		PlayerOrder: []int{0, 1},
		Phase:       PhaseAwaitingRoll,
		Tokens:      []*Token{stuck, heavenA, heavenB, heavenC, other},
	}

	next, events, err := ProcessAction(state, Action{Kind: ActionRoll, ActorSeat: 0}, NewSequenceRoller(6))
	require.NoError(t, err)

	assert.True(t, hasEvent(events, EventBonusRollGranted))
	assert.True(t, hasEvent(events, EventNoLegalMoves))
	assert.False(t, hasEvent(events, EventTurnEnded))
	assert.Equal(t, PhaseAwaitingRoll, next.Phase)
	assert.Equal(t, 0, next.CurrentPlayer())
	assert.Equal(t, 55, stuck.Progress) // untouched
}

// TestSixWithHellExitAndRoadAdvanceRequestsMoveChoice covers a plain six
// that one HELL token could use to leave HELL and one ROAD token could use
// to advance: the engine offers both and waits in awaiting_move with the six
// pending, leaving the HELL token where it is.
func TestSixWithHellExitAndRoadAdvanceRequestsMoveChoice(t *testing.T) {
	board := testBoard()
	leaving := newToken(0, StateHell, 0)
	parked := newToken(0, StateRoad, 10) // 10+6=16, no overshoot, but a second candidate move exists too
	other := newToken(1, StateHell, 0)

	state := GameState{
		Board:       board,
		PlayerOrder: []int{0, 1},
		Phase:       PhaseAwaitingRoll,
		Tokens:      []*Token{leaving, parked, other},
	}

	next, events, err := ProcessAction(state, Action{Kind: ActionRoll, ActorSeat: 0}, NewSequenceRoller(6))
	require.NoError(t, err)

	// Two of seat 0's tokens can use this six (the HELL exit and the ROAD
	// advance), so the engine must ask which one to use rather than silently
	// picking one — the single-candidate exit itself is exercised in
	// TestHellTokenAutoExitsOnSoleSixCandidate below.
	assert.True(t, hasEvent(events, EventMoveRequested))
	assert.Equal(t, PhaseAwaitingMove, next.Phase)
	assert.Equal(t, StateHell, stateOf(next, leaving.ID)) // still awaiting the player's choice
	assert.Equal(t, 6, next.PendingDie)
}

// TestHellTokenAutoExitsOnSoleSixCandidate covers the single-legal-move
// path: when a six's only legal use is exiting HELL, ProcessAction applies
// it immediately instead of requesting a choice, and still grants a bonus
// roll since the die was a six.
func TestHellTokenAutoExitsOnSoleSixCandidate(t *testing.T) {
	board := testBoard()
	leaving := newToken(0, StateHell, 0)
	heavenA := newToken(0, StateHeaven, board.SquaresToWin)
	heavenB := newToken(0, StateHeaven, board.SquaresToWin)
	heavenC := newToken(0, StateHeaven, board.SquaresToWin)
	other := newToken(1, StateHell, 0)

	state := GameState{
		Board:       board,
		PlayerOrder: []int{0, 1},
		Phase:       PhaseAwaitingRoll,
		Tokens:      []*Token{leaving, heavenA, heavenB, heavenC, other},
	}

	next, events, err := ProcessAction(state, Action{Kind: ActionRoll, ActorSeat: 0}, NewSequenceRoller(6))
	require.NoError(t, err)

	assert.True(t, hasEvent(events, EventTokenMoved))
	assert.True(t, hasEvent(events, EventBonusRollGranted))
	assert.False(t, hasEvent(events, EventMoveRequested))
	assert.Equal(t, StateRoad, stateOf(next, leaving.ID))
	assert.Equal(t, 0, progressOf(next, leaving.ID))
	assert.Equal(t, PhaseAwaitingRoll, next.Phase)
}

func progressOf(state GameState, id uuid.UUID) int {
	for _, tok := range state.Tokens {
		if tok.ID == id {
			return tok.Progress
		}
	}
	return -1
}

func stateOf(state GameState, id uuid.UUID) TokenState {
	for _, tok := range state.Tokens {
		if tok.ID == id {
			return tok.State
		}
	}
	return ""
}

// TestHomestretchOvershootIsIllegal asserts a die that would carry a token
// past the winning square is never offered as a legal move.
func TestHomestretchOvershootIsIllegal(t *testing.T) {
	board := testBoard()
	tok := newToken(0, StateHomestretch, 55)
	state := &GameState{Board: board, Tokens: []*Token{tok}}

	moves := legalMoves(state, 0, 6) // effective 6 -> 55+6=61 > 58
	assert.Empty(t, moves)

	moves = legalMoves(state, 0, 3) // effective 3 -> 55+3=58, exact win
	require.Len(t, moves, 1)
	assert.Equal(t, 3, moves[0].EffectiveRoll)
}

// TestTokenReachesHeavenExactly checks that landing exactly on the winning
// square transitions a token to HEAVEN and, once every token has, ends the
// game.
func TestTokenReachesHeavenExactly(t *testing.T) {
	board := testBoard()
	winner := newToken(0, StateHomestretch, 55)
	already1 := newToken(0, StateHeaven, board.SquaresToWin)
	already2 := newToken(0, StateHeaven, board.SquaresToWin)
	already3 := newToken(0, StateHeaven, board.SquaresToWin)

	state := GameState{
		Board:       board,
		PlayerOrder: []int{0, 1},
		Phase:       PhaseAwaitingMove,
		PendingDie:  3,
		Tokens:      []*Token{winner, already1, already2, already3},
	}

	next, events, err := ProcessAction(state, Action{Kind: ActionMove, ActorSeat: 0, TokenIDs: []uuid.UUID{winner.ID}}, nil)
	require.NoError(t, err)
	assert.True(t, hasEvent(events, EventTokenReachedHeaven))
	assert.True(t, hasEvent(events, EventGameEnded))
	assert.Equal(t, PhaseFinished, next.Phase)
	assert.Equal(t, []int{0}, next.Finished)
}

// TestDeterministicReplay asserts identical (state, action, seeded rolls)
// produce identical outcomes, the engine's core purity guarantee.
func TestDeterministicReplay(t *testing.T) {
	build := func() GameState {
		return NewGame(uuid.New(), []int{0, 1}, testBoard())
	}

	action := Action{Kind: ActionRoll, ActorSeat: 0}
	s1, e1, err1 := ProcessAction(build(), action, NewSequenceRoller(6))
	s2, e2, err2 := ProcessAction(build(), action, NewSequenceRoller(6))

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, len(e1), len(e2))
	assert.Equal(t, s1.Phase, s2.Phase)
	assert.Equal(t, s1.CurrentTurnIdx, s2.CurrentTurnIdx)
}

// TestAmbiguousCaptureRequestsChoice asserts that landing where two
// different opponents each hold a capturable group requires an explicit
// capture_choice action instead of resolving automatically.
func TestAmbiguousCaptureRequestsChoice(t *testing.T) {
	board := testBoard()
	mover := newToken(0, StateRoad, 15) // -> abs 15, moving 5 -> abs 20
	victim1 := newToken(1, StateRoad, 7) // owner1 start 13 -> abs 20
	victim2 := newToken(2, StateRoad, 8) // owner2 start 26 -> abs 34... adjust below

	board.StartingIndexBySeat[2] = 0 // co-locate a third owner's start with seat 0 for this synthetic test
	victim2.Progress = 20            // abs = (0+20)%52 = 20

	state := GameState{
		Board:       board,
		PlayerOrder: []int{0, 1, 2},
		Phase:       PhaseAwaitingMove,
		PendingDie:  5,
		Tokens:      []*Token{mover, victim1, victim2},
	}

	next, events, err := ProcessAction(state, Action{Kind: ActionMove, ActorSeat: 0, TokenIDs: []uuid.UUID{mover.ID}}, nil)
	require.NoError(t, err)
	assert.True(t, hasEvent(events, EventCaptureChoiceRequested))
	assert.Equal(t, PhaseAwaitingCaptureChoice, next.Phase)
	require.Len(t, next.pendingCaptureGroups, 2)

	chosen := next.pendingCaptureGroups[0]
	resolved, resolveEvents, err := ProcessAction(next, Action{Kind: ActionCaptureChoice, ActorSeat: 0, TargetGroupID: chosen.ID}, nil)
	require.NoError(t, err)
	assert.True(t, hasEvent(resolveEvents, EventCaptureOccurred))
	assert.Equal(t, PhaseAwaitingRoll, resolved.Phase)
}
