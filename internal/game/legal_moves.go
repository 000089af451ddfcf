package game

import "github.com/google/uuid"

// LegalMove is one way a player may use the pending die: move the named
// token subset, which may be a strict subset of a larger stack (a split).
type LegalMove struct {
	Tokens        []*Token
	EffectiveRoll int
}

// legalMoves enumerates every legal way seat can use rawDie this turn,
// including partial-stack splits: any non-trivial subset of a stack whose
// own effective roll is non-zero is offered alongside the full stack.
func legalMoves(state *GameState, seat, rawDie int) []LegalMove {
	var moves []LegalMove

	for _, group := range state.stacksFor(seat) {
		if group[0].State == StateHell {
			if state.Board.isGetOutRoll(rawDie) {
				moves = append(moves, LegalMove{Tokens: group, EffectiveRoll: 1})
			}
			continue
		}

		for _, subset := range nonEmptySubsets(group) {
			height := len(subset)
			effective := rawDie / height
			if effective == 0 {
				continue
			}
			if !isOvershoot(state.Board, subset[0], effective) {
				moves = append(moves, LegalMove{Tokens: subset, EffectiveRoll: effective})
			}
		}
	}

	return moves
}

func isOvershoot(board BoardSetup, t *Token, effective int) bool {
	newProgress := t.Progress + effective
	return newProgress > board.SquaresToWin
}

// nonEmptySubsets returns every non-empty subset of group, full group
// first. Groups are at most 4 tokens, so the 2^n-1 enumeration is cheap.
func nonEmptySubsets(group []*Token) [][]*Token {
	n := len(group)
	var subsets [][]*Token
	// full stack first so callers that only want "the" legal move for a
	// stack see it before any split alternative.
	subsets = append(subsets, group)
	for mask := 1; mask < (1 << n); mask++ {
		if mask == (1<<n)-1 {
			continue // already added as the full stack
		}
		var subset []*Token
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, group[i])
			}
		}
		subsets = append(subsets, subset)
	}
	return subsets
}

func findMove(moves []LegalMove, tokenIDs []uuid.UUID) (LegalMove, bool) {
	for _, m := range moves {
		if sameIDSet(tokenIDsOf(m.Tokens), tokenIDs) {
			return m, true
		}
	}
	return LegalMove{}, false
}

func tokenIDsOf(tokens []*Token) []uuid.UUID {
	return tokenIDs(tokens)
}
