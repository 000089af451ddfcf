package game

import "github.com/google/uuid"

// EventType is one of the fixed set of observable outputs the engine may
// produce. State mutations themselves are private; clients only ever see
// events.
type EventType string

const (
	EventGameStarted            EventType = "game_started"
	EventTurnStarted            EventType = "turn_started"
	EventRollGranted            EventType = "roll_granted"
	EventDiceRolled             EventType = "dice_rolled"
	EventThreeSixesPenalty      EventType = "three_sixes_penalty"
	EventNoLegalMoves           EventType = "no_legal_moves"
	EventMoveRequested          EventType = "move_requested"
	EventTokenMoved             EventType = "token_moved"
	EventStackSplit             EventType = "stack_split"
	EventStackMerged            EventType = "stack_merged"
	EventCaptureChoiceRequested EventType = "capture_choice_requested"
	EventCaptureOccurred        EventType = "capture_occurred"
	EventTokenReachedHeaven     EventType = "token_reached_heaven"
	EventBonusRollGranted       EventType = "bonus_roll_granted"
	EventTurnEnded              EventType = "turn_ended"
	EventGameEnded              EventType = "game_ended"
)

// Event is one entry in the ordered output of a single ProcessAction call.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// MoveOption describes one legal alternative offered to the player when
// more than one move is available.
type MoveOption struct {
	TokenIDs      []uuid.UUID `json:"token_ids"`
	FromState     TokenState  `json:"from_state"`
	EffectiveRoll int         `json:"effective_roll"`
}
