package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arnavsood/ludoarena/internal/apperr"
	"github.com/arnavsood/ludoarena/internal/game"
	"github.com/arnavsood/ludoarena/internal/presence"
	"github.com/arnavsood/ludoarena/internal/room"
)

// Deps bundles every collaborator a handler needs. BuildRegistry closes
// over one Deps to produce the dispatcher's handler map.
type Deps struct {
	Validator interface {
		Validate(token string) (userID string, expiresAt time.Time, err error)
	}
	Rooms    *room.Service
	Sessions *game.SessionManager
	Presence *presence.Tracker
	Logger   *logrus.Logger
	ServerID string
}

// BuildRegistry wires every client message type to its handler.
func BuildRegistry(deps Deps) map[MessageType]HandlerFunc {
	return map[MessageType]HandlerFunc{
		TypeAuthenticate: handleAuthenticate(deps),
		TypePing:         handlePing,
		TypeToggleReady:  handleToggleReady(deps),
		TypeLeaveRoom:    handleLeaveRoom(deps),
		TypeStartGame:    handleStartGame(deps),
		TypeGameAction:   handleGameAction(deps),
	}
}

func handleAuthenticate(deps Deps) HandlerFunc {
	return func(hctx HandlerContext) (*HandlerResult, error) {
		var payload AuthenticatePayload
		if err := json.Unmarshal(hctx.Message.Payload, &payload); err != nil {
			return nil, apperr.Wrap(apperr.InvalidMessage, "malformed authenticate payload", err)
		}

		userIDStr, _, err := deps.Validator.Validate(payload.Token)
		if err != nil {
			return nil, err
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			return nil, apperr.Wrap(apperr.AuthFailed, "token subject is not a valid user id", err)
		}

		r, err := deps.Rooms.ResolveByCode(hctx.Ctx, payload.RoomCode)
		if err != nil {
			return nil, err
		}

		snap, err := deps.Rooms.GetSnapshot(hctx.Ctx, r.ID)
		if err != nil {
			return nil, err
		}
		seatIndex, err := room.SeatForUser(snap, userID)
		if err != nil {
			return nil, err
		}

		hctx.Manager.Authenticate(hctx.ConnectionID, userID, r.ID, seatIndex)
		deps.Presence.OnConnect(hctx.Ctx, userID)

		snap, err = deps.Rooms.MarkConnected(hctx.Ctx, r.ID, userID, true, hctx.ConnectionID)
		if err != nil {
			return nil, err
		}

		var gameView *game.StateView
		if session, ok := deps.Sessions.Get(r.ID); ok {
			view := session.CurrentState().View()
			gameView = &view
		}

		return &HandlerResult{
			Response: &ServerMessage{
				Type:      TypeAuthenticated,
				RequestID: hctx.Message.RequestID,
				Payload: AuthenticatedPayload{
					ConnectionID: hctx.ConnectionID,
					UserID:       userID,
					ServerID:     deps.ServerID,
					Room:         snap,
					Game:         gameView,
				},
			},
			RoomID: r.ID,
		}, nil
	}
}

func handlePing(hctx HandlerContext) (*HandlerResult, error) {
	return &HandlerResult{
		Response: &ServerMessage{
			Type:      TypePong,
			RequestID: hctx.Message.RequestID,
			Payload:   PongPayload{ServerTime: time.Now().UnixMilli()},
		},
	}, nil
}

func handleToggleReady(deps Deps) HandlerFunc {
	return func(hctx HandlerContext) (*HandlerResult, error) {
		if _, err := deps.Rooms.ToggleReady(hctx.Ctx, hctx.RoomID, hctx.UserID); err != nil {
			return nil, err
		}
		return &HandlerResult{RoomID: hctx.RoomID}, nil
	}
}

func handleLeaveRoom(deps Deps) HandlerFunc {
	return func(hctx HandlerContext) (*HandlerResult, error) {
		if _, err := deps.Rooms.LeaveSeat(hctx.Ctx, hctx.RoomID, hctx.UserID, "left"); err != nil {
			return nil, err
		}
		hctx.Manager.Unsubscribe(hctx.ConnectionID)
		return &HandlerResult{RoomID: hctx.RoomID}, nil
	}
}

func handleStartGame(deps Deps) HandlerFunc {
	return func(hctx HandlerContext) (*HandlerResult, error) {
		snap, err := deps.Rooms.GetSnapshot(hctx.Ctx, hctx.RoomID)
		if err != nil {
			return nil, err
		}
		if !room.IsHost(snap, hctx.UserID) {
			return nil, apperr.New(apperr.NotHost, "only the host may start the game")
		}

		snap, err = deps.Rooms.StartGame(hctx.Ctx, hctx.RoomID)
		if err != nil {
			return nil, err
		}

		seats := make([]int, 0, len(snap.Seats))
		for _, s := range snap.Seats {
			if s.UserID != nil {
				seats = append(seats, s.SeatIndex)
			}
		}
		board := game.DefaultBoardSetup(seats)
		state := game.NewGame(hctx.RoomID, seats, board)
		deps.Sessions.Start(state, game.NewRandRoller(time.Now().UnixNano()), hctx.Manager, deps.Logger)

		return &HandlerResult{RoomID: hctx.RoomID}, nil
	}
}

func handleGameAction(deps Deps) HandlerFunc {
	return func(hctx HandlerContext) (*HandlerResult, error) {
		session, ok := deps.Sessions.Get(hctx.RoomID)
		if !ok {
			return nil, apperr.New(apperr.BadPhase, "no game is in progress for this room")
		}

		var payload GameActionPayload
		if err := json.Unmarshal(hctx.Message.Payload, &payload); err != nil {
			return nil, apperr.Wrap(apperr.InvalidMessage, "malformed game_action payload", err)
		}

		action := game.Action{ActorSeat: hctx.SeatIndex, TokenIDs: payload.TokenIDs}
		switch payload.Kind {
		case "roll":
			action.Kind = game.ActionRoll
		case "move":
			action.Kind = game.ActionMove
		case "capture_choice":
			action.Kind = game.ActionCaptureChoice
			action.TargetGroupID = payload.TargetGroupID
		default:
			return nil, apperr.New(apperr.ValidationError, "unknown game_action kind")
		}

		session.Submit(hctx.ConnectionID, action)
		return &HandlerResult{}, nil
	}
}
