package game

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/arnavsood/ludoarena/internal/apperr"
)

// ProcessAction is the engine's single entry point: given a state, one
// action, and a source of randomness, it returns the resulting state and
// the ordered events that produced it. It never mutates its input.
func ProcessAction(state GameState, action Action, roller Roller) (GameState, []Event, error) {
	next := state.Clone()

	if next.Phase == PhaseFinished {
		return state, nil, apperr.New(apperr.BadPhase, "game has finished")
	}
	if action.ActorSeat != next.CurrentPlayer() {
		return state, nil, apperr.New(apperr.BadPhase, "not this player's turn")
	}

	switch action.Kind {
	case ActionRoll:
		if next.Phase != PhaseAwaitingRoll {
			return state, nil, apperr.New(apperr.BadPhase, "not awaiting a roll")
		}
		events := processRoll(&next, roller)
		return next, events, nil

	case ActionMove:
		if next.Phase != PhaseAwaitingMove {
			return state, nil, apperr.New(apperr.BadPhase, "not awaiting a move")
		}
		events, err := processMove(&next, action.TokenIDs)
		if err != nil {
			return state, nil, err
		}
		return next, events, nil

	case ActionCaptureChoice:
		if next.Phase != PhaseAwaitingCaptureChoice {
			return state, nil, apperr.New(apperr.BadPhase, "not awaiting a capture choice")
		}
		events, err := processCaptureChoice(&next, action.TargetGroupID)
		if err != nil {
			return state, nil, err
		}
		return next, events, nil

	default:
		return state, nil, apperr.New(apperr.ValidationError, fmt.Sprintf("unknown action kind %q", action.Kind))
	}
}

func processRoll(state *GameState, roller Roller) []Event {
	raw := roller.Roll()
	state.DiceHistory = append(state.DiceHistory, raw)
	events := []Event{{Type: EventDiceRolled, Payload: raw}}

	if raw == 6 {
		state.ConsecutiveSixes++
	} else {
		state.ConsecutiveSixes = 0
	}

	if state.ConsecutiveSixes == 3 {
		events = append(events, Event{Type: EventThreeSixesPenalty, Payload: state.DiceHistory})
		return append(events, endTurn(state)...)
	}

	moves := legalMoves(state, state.CurrentPlayer(), raw)
	if len(moves) == 0 {
		events = append(events, Event{Type: EventNoLegalMoves})
		// A plain six (not the third in a row) always grants another roll,
		// even when this six itself had nothing to move.
		if raw == 6 {
			return append(events, resolveBonusOrRotate(state, raw, false)...)
		}
		return append(events, endTurn(state)...)
	}

	if len(moves) == 1 {
		state.PendingDie = raw
		applied, captureOccurred, moveEvents := applyLegalMove(state, moves[0])
		events = append(events, moveEvents...)
		if applied && len(state.pendingCaptureGroups) > 0 {
			return events // resolveCollision already set awaiting_capture_choice
		}
		return append(events, resolveBonusOrRotate(state, raw, captureOccurred)...)
	}

	state.PendingDie = raw
	options := make([]MoveOption, 0, len(moves))
	for _, m := range moves {
		options = append(options, MoveOption{TokenIDs: tokenIDsOf(m.Tokens), FromState: m.Tokens[0].State, EffectiveRoll: m.EffectiveRoll})
	}
	state.Phase = PhaseAwaitingMove
	events = append(events, Event{Type: EventMoveRequested, Payload: options})
	return events
}

func processMove(state *GameState, tokenIDs []uuid.UUID) ([]Event, error) {
	moves := legalMoves(state, state.CurrentPlayer(), state.PendingDie)
	move, ok := findMove(moves, tokenIDs)
	if !ok {
		return nil, apperr.New(apperr.IllegalMove, "requested token set is not a legal move for the pending die")
	}

	_, captureOccurred, events := applyLegalMove(state, move)
	if len(state.pendingCaptureGroups) > 0 {
		return events, nil
	}
	return append(events, resolveBonusOrRotate(state, state.PendingDie, captureOccurred)...), nil
}

func processCaptureChoice(state *GameState, targetGroupID string) ([]Event, error) {
	var chosen *captureGroup
	for i := range state.pendingCaptureGroups {
		if state.pendingCaptureGroups[i].ID == targetGroupID {
			chosen = &state.pendingCaptureGroups[i]
			break
		}
	}
	if chosen == nil {
		return nil, apperr.New(apperr.IllegalMove, "unknown capture target")
	}

	events := captureGroupTokens(state, *chosen)
	state.pendingCaptureGroups = nil
	return append(events, resolveBonusOrRotate(state, state.PendingDie, true)...), nil
}

// applyLegalMove executes move's token transition, merges same-owner
// stacks, and resolves any collision at the destination. It returns
// whether a capture actually occurred (for bonus-roll purposes) and the
// events produced; if the collision is ambiguous it sets
// state.pendingCaptureGroups and PhaseAwaitingCaptureChoice instead of
// resolving it immediately.
func applyLegalMove(state *GameState, move LegalMove) (applied bool, captureOccurred bool, events []Event) {
	movedIDs := tokenIDsOf(move.Tokens)
	fullStackSize := len(state.stackAt(move.Tokens[0]))
	isSplit := fullStackSize > len(move.Tokens)

	for _, t := range move.Tokens {
		switch t.State {
		case StateHell:
			t.State = StateRoad
			t.Progress = 0
		default:
			t.Progress += move.EffectiveRoll
			if t.Progress >= state.Board.SquaresToWin {
				t.State = StateHeaven
			} else if t.Progress >= state.Board.SquaresToHomestretch {
				t.State = StateHomestretch
			} else {
				t.State = StateRoad
			}
		}
	}

	if isSplit {
		events = append(events, Event{Type: EventStackSplit, Payload: movedIDs})
	}
	events = append(events, Event{Type: EventTokenMoved, Payload: map[string]any{
		"token_ids": movedIDs,
		"state":     move.Tokens[0].State,
		"progress":  move.Tokens[0].Progress,
	}})

	for _, t := range move.Tokens {
		if t.State == StateHeaven {
			events = append(events, Event{Type: EventTokenReachedHeaven, Payload: t.ID})
		}
	}

	if merged := state.mergeIfCoincident(move.Tokens); merged {
		events = append(events, Event{Type: EventStackMerged, Payload: tokenIDsOf(state.stackAt(move.Tokens[0]))})
	}

	if move.Tokens[0].State == StateRoad {
		collisionOccurred, collisionEvents := resolveCollision(state, move.Tokens)
		events = append(events, collisionEvents...)
		captureOccurred = collisionOccurred
	}

	if state.allHeaven(state.CurrentPlayer()) {
		state.Finished = append(state.Finished, state.CurrentPlayer())
		events = append(events, Event{Type: EventGameEnded, Payload: state.Finished})
		state.Phase = PhaseFinished
	}

	return true, captureOccurred, events
}

// stackAt returns every token sharing t's owner/state/progress, including t.
func (s *GameState) stackAt(t *Token) []*Token {
	var out []*Token
	for _, other := range s.Tokens {
		if other.Owner == t.Owner && other.State == t.State && other.Progress == t.Progress {
			out = append(out, other)
		}
	}
	return out
}

// mergeIfCoincident reports whether moved's destination already held
// another same-owner stack before moved arrived (i.e. stackAt now spans
// more tokens than moved itself did).
func (s *GameState) mergeIfCoincident(moved []*Token) bool {
	return len(s.stackAt(moved[0])) > len(moved)
}

func (s *GameState) allHeaven(seat int) bool {
	for _, t := range s.tokensOwnedBy(seat) {
		if t.State != StateHeaven {
			return false
		}
	}
	return true
}

// resolveCollision checks the landing square of a just-moved ROAD stack
// for opponents and applies the capture size rule: the mover must have at
// least as many tokens as a defending group to send it to HELL. Safe
// squares never trigger a capture.
func resolveCollision(state *GameState, mover []*Token) (bool, []Event) {
	landing := mover[0]
	abs := state.Board.absoluteRoadSquare(landing.Owner, landing.Progress)
	if state.Board.isSafe(abs) {
		return false, nil
	}

	opponentGroups := map[int][]*Token{}
	for _, t := range state.Tokens {
		if t.Owner == landing.Owner || t.State != StateRoad {
			continue
		}
		if state.Board.absoluteRoadSquare(t.Owner, t.Progress) != abs {
			continue
		}
		opponentGroups[t.Owner] = append(opponentGroups[t.Owner], t)
	}
	if len(opponentGroups) == 0 {
		return false, nil
	}

	attackerSize := len(state.stackAt(landing))
	var candidates []captureGroup
	for owner, tokens := range opponentGroups {
		if attackerSize >= len(tokens) {
			candidates = append(candidates, captureGroup{
				ID:     fmt.Sprintf("%d:%d", owner, abs),
				Owner:  owner,
				Tokens: tokenIDsOf(tokens),
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Owner < candidates[j].Owner })

	switch len(candidates) {
	case 0:
		return false, nil
	case 1:
		events := captureGroupTokens(state, candidates[0])
		return true, events
	default:
		state.pendingCaptureGroups = candidates
		state.Phase = PhaseAwaitingCaptureChoice
		return false, []Event{{Type: EventCaptureChoiceRequested, Payload: candidates}}
	}
}

func captureGroupTokens(state *GameState, group captureGroup) []Event {
	byID := map[uuid.UUID]*Token{}
	for _, t := range state.Tokens {
		byID[t.ID] = t
	}
	for _, id := range group.Tokens {
		t := byID[id]
		t.State = StateHell
		t.Progress = 0
	}
	return []Event{{Type: EventCaptureOccurred, Payload: map[string]any{"owner": group.Owner, "tokens": group.Tokens}}}
}

// resolveBonusOrRotate grants a bonus roll (raw 6 or a capture) or rotates
// to the next player, either way returning to awaiting_roll.
func resolveBonusOrRotate(state *GameState, rawDie int, captureOccurred bool) []Event {
	if state.Phase == PhaseFinished {
		return nil
	}
	if rawDie == 6 || captureOccurred {
		state.Phase = PhaseAwaitingRoll
		return []Event{{Type: EventBonusRollGranted}}
	}
	return endTurn(state)
}

func endTurn(state *GameState) []Event {
	state.ConsecutiveSixes = 0
	state.DiceHistory = nil
	state.PendingDie = 0
	state.CurrentTurnIdx = (state.CurrentTurnIdx + 1) % len(state.PlayerOrder)
	state.Phase = PhaseAwaitingRoll
	return []Event{
		{Type: EventTurnEnded},
		{Type: EventTurnStarted, Payload: state.CurrentPlayer()},
		{Type: EventRollGranted, Payload: state.CurrentPlayer()},
	}
}
