package game

import "github.com/google/uuid"

// ActionKind selects which variant of Action is populated.
type ActionKind string

const (
	ActionRoll          ActionKind = "roll"
	ActionMove          ActionKind = "move"
	ActionCaptureChoice ActionKind = "capture_choice"
)

// Action is one player-submitted input to ProcessAction.
type Action struct {
	Kind ActionKind

	// ActorSeat is the seat submitting the action, validated against
	// state.CurrentPlayer() before anything else happens.
	ActorSeat int

	// Move: the token (or stack subset) to move.
	TokenIDs []uuid.UUID

	// CaptureChoice: the opponent group to capture, from the candidates
	// named in the preceding capture_choice_requested event.
	TargetGroupID string
}
