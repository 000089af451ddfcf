package ws

import (
	"context"

	"github.com/google/uuid"

	"github.com/arnavsood/ludoarena/internal/apperr"
)

// HandlerContext is everything a handler needs to act on one inbound frame.
type HandlerContext struct {
	Ctx          context.Context
	ConnectionID uuid.UUID
	UserID       uuid.UUID
	RoomID       uuid.UUID
	SeatIndex    int
	Message      ClientMessage
	Manager      *Manager
}

// HandlerResult is the network effect a handler wants applied after it
// returns: a direct reply to the sender, and/or a room-wide broadcast.
type HandlerResult struct {
	Response  *ServerMessage
	Broadcast *ServerMessage
	RoomID    uuid.UUID
}

// HandlerFunc processes one decoded frame and describes its network effect.
// A returned error is translated into an `error` reply; it never aborts the
// connection by itself.
type HandlerFunc func(hctx HandlerContext) (*HandlerResult, error)

// noAuthRequired lists the only message types accepted before the
// handshake completes.
var noAuthRequired = map[MessageType]bool{
	TypeAuthenticate: true,
	TypePing:         true,
}

// Dispatcher routes decoded frames to a static, compile-time-registered
// map of handlers — the teacher's switch-on-type dispatch generalized into
// the registry the design notes require instead of dynamic registration.
type Dispatcher struct {
	handlers map[MessageType]HandlerFunc
}

// NewDispatcher builds a Dispatcher from a complete handler map. Building
// the map is the caller's responsibility (see BuildRegistry) so the set of
// registered types is fixed at startup.
func NewDispatcher(handlers map[MessageType]HandlerFunc) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// Dispatch routes one frame. It enforces the authentication requirement
// shared by every handler except authenticate/ping, so individual handlers
// never need to repeat that check.
func (d *Dispatcher) Dispatch(hctx HandlerContext) *HandlerResult {
	handler, ok := d.handlers[hctx.Message.Type]
	if !ok {
		return errorResult(hctx.Message.RequestID, apperr.New(apperr.InvalidMessage, "unknown message type"))
	}

	if !noAuthRequired[hctx.Message.Type] && hctx.UserID == uuid.Nil {
		return errorResult(hctx.Message.RequestID, apperr.New(apperr.Unauthenticated, "authentication required"))
	}

	result, err := handler(hctx)
	if err != nil {
		return errorResult(hctx.Message.RequestID, err)
	}
	return result
}

func errorResult(requestID *uuid.UUID, err error) *HandlerResult {
	ae, ok := apperr.As(err)
	code := apperr.InternalError
	message := "internal error"
	if ok {
		code = ae.Code
		message = ae.Message
	}
	return &HandlerResult{
		Response: &ServerMessage{
			Type:      TypeError,
			RequestID: requestID,
			Payload:   ErrorPayload{Code: string(code), Message: message},
		},
	}
}
