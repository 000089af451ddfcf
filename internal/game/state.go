// Package game is the pure Ludo-variant rules engine. ProcessAction is a
// pure function of (state, action, rng): it mutates no shared state,
// performs no I/O, and is safe to replay with a seeded RNG for
// deterministic tests. All side effects (persistence, broadcast) belong to
// the session binding in session.go and to the room service in
// internal/room, never to ProcessAction itself.
package game

import (
	"github.com/google/uuid"
)

// TokenState is a position along the HELL -> ROAD -> HOMESTRETCH -> HEAVEN
// progression.
type TokenState string

const (
	StateHell        TokenState = "HELL"
	StateRoad        TokenState = "ROAD"
	StateHomestretch TokenState = "HOMESTRETCH"
	StateHeaven      TokenState = "HEAVEN"
)

// TurnPhase is where in one player's turn the engine currently sits.
type TurnPhase string

const (
	PhaseAwaitingRoll          TurnPhase = "awaiting_roll"
	PhaseAwaitingMove          TurnPhase = "awaiting_move"
	PhaseAwaitingCaptureChoice TurnPhase = "awaiting_capture_choice"
	PhaseFinished              TurnPhase = "finished"
)

// BoardSetup is the ruleset-configured geometry of the board. A token's
// home-entry square (where ROAD gives way to HOMESTRETCH) is always one
// full lap past its own starting square, so it needs no separate field: it
// falls out of Progress crossing SquaresToHomestretch.
type BoardSetup struct {
	GetOutRolls          []int
	SquaresToHomestretch int // ROAD loop length (52)
	SquaresToWin         int // ROAD + HOMESTRETCH (58)
	SafeSpaces           []int
	StartingIndexBySeat  map[int]int
}

// DefaultBoardSetup is the standard four-player Ludo board.
func DefaultBoardSetup(seats []int) BoardSetup {
	starts := map[int]int{}
	for i, seat := range seats {
		starts[seat] = (i * 13) % 52
	}
	return BoardSetup{
		GetOutRolls:          []int{6},
		SquaresToHomestretch: 52,
		SquaresToWin:         58,
		SafeSpaces:           []int{0, 8, 13, 21, 26, 34, 39, 47},
		StartingIndexBySeat:  starts,
	}
}

func (b BoardSetup) isGetOutRoll(raw int) bool {
	for _, v := range b.GetOutRolls {
		if v == raw {
			return true
		}
	}
	return false
}

func (b BoardSetup) isSafe(abs int) bool {
	for _, v := range b.SafeSpaces {
		if v == abs {
			return true
		}
	}
	for _, v := range b.StartingIndexBySeat {
		if v == abs {
			return true
		}
	}
	return false
}

// absoluteRoadSquare returns a ROAD-state token's position on the shared
// 52-square loop, the only state in which tokens from different players
// can occupy the same coordinate space.
func (b BoardSetup) absoluteRoadSquare(owner, progress int) int {
	return (b.StartingIndexBySeat[owner] + progress) % b.SquaresToHomestretch
}

// Token is one of a player's four pieces.
type Token struct {
	ID          uuid.UUID
	Owner       int // seat index
	State       TokenState
	Progress    int // relative to Owner: 0 at entry, counting through ROAD then HOMESTRETCH
	StackedWith []uuid.UUID
}

func (t *Token) clone() *Token {
	c := *t
	c.StackedWith = append([]uuid.UUID(nil), t.StackedWith...)
	return &c
}

// GameState is the full authoritative state of one room's in-progress game.
type GameState struct {
	RoomID           uuid.UUID
	Board            BoardSetup
	PlayerOrder      []int
	CurrentTurnIdx   int
	Phase            TurnPhase
	DiceHistory      []int
	ConsecutiveSixes int
	PendingDie       int
	Tokens           []*Token
	Finished         []int // seats in finishing order

	pendingCaptureGroups []captureGroup // set only while PhaseAwaitingCaptureChoice
}

type captureGroup struct {
	ID     string
	Owner  int
	Tokens []uuid.UUID
}

// CurrentPlayer returns the seat whose turn it currently is.
func (s GameState) CurrentPlayer() int {
	return s.PlayerOrder[s.CurrentTurnIdx]
}

// Clone performs a deep copy sufficient for ProcessAction's pure-function
// contract: the input state is never mutated in place.
func (s GameState) Clone() GameState {
	c := s
	c.PlayerOrder = append([]int(nil), s.PlayerOrder...)
	c.DiceHistory = append([]int(nil), s.DiceHistory...)
	c.Finished = append([]int(nil), s.Finished...)
	c.Tokens = make([]*Token, len(s.Tokens))
	for i, t := range s.Tokens {
		c.Tokens[i] = t.clone()
	}
	c.pendingCaptureGroups = append([]captureGroup(nil), s.pendingCaptureGroups...)
	return c
}

// NewGame builds the initial state for a fresh game: every token in HELL.
func NewGame(roomID uuid.UUID, seats []int, board BoardSetup) GameState {
	state := GameState{
		RoomID:      roomID,
		Board:       board,
		PlayerOrder: append([]int(nil), seats...),
		Phase:       PhaseAwaitingRoll,
	}
	for _, seat := range seats {
		for i := 0; i < 4; i++ {
			state.Tokens = append(state.Tokens, &Token{
				ID:    uuid.New(),
				Owner: seat,
				State: StateHell,
			})
		}
	}
	return state
}

func (s *GameState) tokensByIDs(ids []uuid.UUID) []*Token {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*Token
	for _, t := range s.Tokens {
		if want[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func (s *GameState) tokensOwnedBy(seat int) []*Token {
	var out []*Token
	for _, t := range s.Tokens {
		if t.Owner == seat {
			out = append(out, t)
		}
	}
	return out
}

// stacksFor groups seat's live (non-HELL, non-HEAVEN) tokens into stacks
// sharing state and progress, plus one singleton group per HELL token.
func (s *GameState) stacksFor(seat int) [][]*Token {
	var groups [][]*Token
	byKey := map[[2]int][]*Token{}
	var keys [][2]int
	for _, t := range s.tokensOwnedBy(seat) {
		switch t.State {
		case StateHell:
			groups = append(groups, []*Token{t})
		case StateRoad, StateHomestretch:
			key := [2]int{stateOrdinal(t.State), t.Progress}
			if _, seen := byKey[key]; !seen {
				keys = append(keys, key)
			}
			byKey[key] = append(byKey[key], t)
		case StateHeaven:
			// frozen, never a move candidate
		}
	}
	for _, k := range keys {
		groups = append(groups, byKey[k])
	}
	return groups
}

func stateOrdinal(s TokenState) int {
	switch s {
	case StateRoad:
		return 0
	case StateHomestretch:
		return 1
	default:
		return -1
	}
}

// TokenView is the wire-shaped read model of a single token, used only for
// the full-state snapshot sent at game start and on reconnect — per-action
// output to clients stays limited to the event vocabulary in events.go.
type TokenView struct {
	ID       uuid.UUID  `json:"id"`
	Owner    int        `json:"owner"`
	State    TokenState `json:"state"`
	Progress int        `json:"progress"`
}

// StateView is the externally-visible snapshot of a live game, suitable for
// a full client redraw: sent once when a game starts and again to any
// connection that authenticates into a room already in_game.
type StateView struct {
	RoomID           uuid.UUID   `json:"room_id"`
	PlayerOrder      []int       `json:"player_order"`
	CurrentPlayer    int         `json:"current_player"`
	Phase            TurnPhase   `json:"phase"`
	DiceHistory      []int       `json:"dice_history"`
	ConsecutiveSixes int         `json:"consecutive_sixes"`
	Tokens           []TokenView `json:"tokens"`
	Finished         []int       `json:"finished"`
}

// View renders s as the wire-shaped snapshot clients render from directly.
func (s GameState) View() StateView {
	tokens := make([]TokenView, len(s.Tokens))
	for i, t := range s.Tokens {
		tokens[i] = TokenView{ID: t.ID, Owner: t.Owner, State: t.State, Progress: t.Progress}
	}
	return StateView{
		RoomID:           s.RoomID,
		PlayerOrder:      append([]int(nil), s.PlayerOrder...),
		CurrentPlayer:    s.CurrentPlayer(),
		Phase:            s.Phase,
		DiceHistory:      append([]int(nil), s.DiceHistory...),
		ConsecutiveSixes: s.ConsecutiveSixes,
		Tokens:           tokens,
		Finished:         append([]int(nil), s.Finished...),
	}
}

func tokenIDs(tokens []*Token) []uuid.UUID {
	ids := make([]uuid.UUID, len(tokens))
	for i, t := range tokens {
		ids[i] = t.ID
	}
	return ids
}

func sameIDSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uuid.UUID]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			return false
		}
	}
	return true
}
