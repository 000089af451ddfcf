package game

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arnavsood/ludoarena/internal/apperr"
)

// Broadcaster is the subset of the connection manager a game session
// needs: a room-wide fan-out for events, and a direct reply channel for
// rejecting one sender's bad action without disturbing anyone else.
type Broadcaster interface {
	BroadcastToRoom(roomID uuid.UUID, messageType string, payload any, exceptConnID uuid.UUID)
	SendMessageToConnection(connID uuid.UUID, messageType string, payload any)
}

type submission struct {
	connID uuid.UUID
	action Action
}

// Session binds one room's live GameState to a dedicated goroutine that
// processes game_action frames strictly one at a time (spec's per-room
// serialization discipline, realized here as a single consumer reading
// from a buffered channel rather than a mutex held across broadcast).
type Session struct {
	roomID      uuid.UUID
	roller      Roller
	broadcaster Broadcaster
	logger      *logrus.Logger
	manager     *SessionManager

	stateMu sync.RWMutex
	state   GameState

	actions  chan submission
	done     chan struct{}
	stopOnce sync.Once
}

// NewSession starts a session's processing loop and returns immediately.
// manager may be nil for standalone use (e.g. tests); when set, the session
// deregisters itself from manager the moment ProcessAction reports
// PhaseFinished, so Stop only needs to be called explicitly for a game
// that never finishes (a room closed or abandoned mid-game). The opening
// game_started/turn_started/roll_granted events are broadcast synchronously
// here since they precede any ProcessAction call.
func NewSession(state GameState, roller Roller, broadcaster Broadcaster, logger *logrus.Logger, manager *SessionManager) *Session {
	s := &Session{
		roomID:      state.RoomID,
		state:       state,
		roller:      roller,
		broadcaster: broadcaster,
		logger:      logger,
		manager:     manager,
		actions:     make(chan submission, 64),
		done:        make(chan struct{}),
	}
	broadcaster.BroadcastToRoom(state.RoomID, "game_events", []Event{
		{Type: EventGameStarted, Payload: state.PlayerOrder},
		{Type: EventTurnStarted, Payload: state.CurrentPlayer()},
		{Type: EventRollGranted, Payload: state.CurrentPlayer()},
	}, uuid.Nil)
	// The event vocabulary alone never describes where the tokens begin (they start in HELL with no preceding token_moved event), so a
	// one-time full snapshot accompanies the opening events. Every later
	// state change is observable through events only.
	broadcaster.BroadcastToRoom(state.RoomID, "game_state", state.View(), uuid.Nil)
	go s.run()
	return s
}

// Stop terminates the session's processing loop. Safe to call more than
// once (a game reaching PhaseFinished stops itself; a room closed out
// from under a live game stops it again from the room service).
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Submit enqueues connID's action for processing. It does not block on the
// result — outcomes arrive asynchronously via the broadcaster, matching
// the websocket endpoint's fire-and-forget dispatch of game_action frames.
func (s *Session) Submit(connID uuid.UUID, action Action) {
	select {
	case s.actions <- submission{connID: connID, action: action}:
	case <-s.done:
	}
}

// CurrentState returns a snapshot of the live game state for read-only use
// (e.g. a reconnecting player's authenticated reply). Safe to call
// concurrently with the session's own processing goroutine.
func (s *Session) CurrentState() GameState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) run() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).WithField("room_id", s.roomID).Error("recovered panic in game session loop")
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case sub := <-s.actions:
			s.process(sub)
		}
	}
}

func (s *Session) process(sub submission) {
	next, events, err := ProcessAction(s.state, sub.action, s.roller)
	if err != nil {
		s.logger.WithError(err).WithField("room_id", s.roomID).Debug("rejected game action")
		s.broadcaster.SendMessageToConnection(sub.connID, "game_error", errorPayload(err))
		return
	}

	s.stateMu.Lock()
	s.state = next
	s.stateMu.Unlock()
	if len(events) > 0 {
		s.broadcaster.BroadcastToRoom(s.roomID, "game_events", events, uuid.Nil)
	}

	if next.Phase == PhaseFinished && s.manager != nil {
		s.manager.Stop(s.roomID)
	}
}

func errorPayload(err error) map[string]string {
	code := string(apperr.CodeOf(err))
	message := err.Error()
	if ae, ok := apperr.As(err); ok {
		message = ae.Message
	}
	return map[string]string{"code": code, "message": message}
}

// SessionManager owns one live Session per room currently in_game, the
// equivalent of the teacher's lobby-keyed store generalized to games.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewSessionManager builds an empty registry of live sessions.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[uuid.UUID]*Session)}
}

// Start creates and registers a session for roomID, replacing any prior
// session for that room.
func (sm *SessionManager) Start(state GameState, roller Roller, broadcaster Broadcaster, logger *logrus.Logger) *Session {
	session := NewSession(state, roller, broadcaster, logger, sm)
	sm.mu.Lock()
	if old, ok := sm.sessions[state.RoomID]; ok {
		old.Stop()
	}
	sm.sessions[state.RoomID] = session
	sm.mu.Unlock()
	return session
}

// Get returns the live session for roomID, if any.
func (sm *SessionManager) Get(roomID uuid.UUID) (*Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[roomID]
	return s, ok
}

// Stop terminates and removes roomID's session, if any.
func (sm *SessionManager) Stop(roomID uuid.UUID) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[roomID]; ok {
		s.Stop()
		delete(sm.sessions, roomID)
	}
}
