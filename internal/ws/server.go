package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/arnavsood/ludoarena/internal/apperr"
	"github.com/arnavsood/ludoarena/internal/middleware"
	"github.com/arnavsood/ludoarena/internal/models"
	"github.com/arnavsood/ludoarena/internal/presence"
	"github.com/arnavsood/ludoarena/internal/room"
)

// Close codes specific to this endpoint's auth handshake, beyond the
// standard codes websocket.StatusNormalClosure/StatusGoingAway/
// StatusInvalidFramePayloadData already cover.
const (
	CloseAuthFailed       websocket.StatusCode = 4001
	CloseAuthExpired      websocket.StatusCode = 4002
	CloseRoomNotFound     websocket.StatusCode = 4003
	CloseRoomAccessDenied websocket.StatusCode = 4004
	CloseAuthTimeout      websocket.StatusCode = 4005
)

// Endpoint serves the /api/v1/ws upgrade.
type Endpoint struct {
	Manager        *Manager
	Dispatcher     *Dispatcher
	Rooms          *room.Service
	Presence       *presence.Tracker
	Logger         *logrus.Logger
	AuthTimeout    time.Duration
	HeartbeatEvery time.Duration
}

func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		e.Logger.WithError(err).Warn("websocket accept failed")
		return
	}

	conn := e.Manager.Register(socket)
	middleware.LogConnectionOpen(e.Logger, conn.ID.String(), r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())

	// A panic anywhere below (readPump, a dispatched handler) unwinds through
	// this defer before it can reach net/http's own per-request recovery, so
	// this connection's cleanup still runs and only this socket is closed —
	// the panic never reaches and crashes the process.
	defer func() {
		if p := recover(); p != nil {
			e.Logger.WithField("panic", p).WithField("connection_id", conn.ID).Error("recovered panic in read pump")
			_ = socket.Close(websocket.StatusInternalError, "internal error")
		}
	}()
	defer cancel()

	authTimer := time.AfterFunc(e.AuthTimeout, func() {
		_ = socket.Close(CloseAuthTimeout, "authentication timed out")
		cancel()
	})
	defer authTimer.Stop()

	go e.writePump(ctx, socket, conn)

	defer e.cleanup(conn)

	readErr := e.readPump(ctx, socket, conn, authTimer)
	middleware.LogConnectionClose(e.Logger, conn.ID.String(), readErr)
}

func (e *Endpoint) readPump(ctx context.Context, socket *websocket.Conn, conn *Connection, authTimer *time.Timer) error {
	for {
		_, data, err := socket.Read(ctx)
		if err != nil {
			return err
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			e.Manager.SendToConnection(conn.ID, ServerMessage{
				Type:    TypeError,
				Payload: ErrorPayload{Code: string(apperr.InvalidMessage), Message: "malformed json frame"},
			})
			continue
		}

		hctx := HandlerContext{
			Ctx:          ctx,
			ConnectionID: conn.ID,
			UserID:       conn.UserID,
			RoomID:       conn.RoomID,
			SeatIndex:    conn.SeatIndex,
			Message:      msg,
			Manager:      e.Manager,
		}

		result := e.Dispatcher.Dispatch(hctx)
		if result == nil {
			continue
		}

		if msg.Type == TypeAuthenticate && result.Response != nil && result.Response.Type == TypeAuthenticated {
			authTimer.Stop()
		}

		if result.Response != nil {
			e.Manager.SendToConnection(conn.ID, *result.Response)
		}
		if result.Broadcast != nil && result.RoomID != uuid.Nil {
			e.Manager.SendToRoom(result.RoomID, *result.Broadcast, conn.ID)
		}
	}
}

func (e *Endpoint) writePump(ctx context.Context, socket *websocket.Conn, conn *Connection) {
	// This runs in its own goroutine with no caller to unwind through, so an
	// unrecovered panic here would take down the whole process rather than
	// just this connection.
	defer func() {
		if p := recover(); p != nil {
			e.Logger.WithField("panic", p).WithField("connection_id", conn.ID).Error("recovered panic in write pump")
			_ = socket.Close(websocket.StatusInternalError, "internal error")
		}
	}()

	ticker := time.NewTicker(e.HeartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-conn.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := socket.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				e.Logger.WithError(err).WithField("connection_id", conn.ID).Warn("websocket write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := socket.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// cleanup runs the disconnect side effects described in the handshake
// protocol: presence decrement, seat disconnection, and host-departure
// room closure, none of which apply if the connection never authenticated.
func (e *Endpoint) cleanup(conn *Connection) {
	authenticated := conn.Authenticated
	userID, roomID := conn.UserID, conn.RoomID

	e.Manager.Disconnect(conn.ID)

	if !authenticated || userID == uuid.Nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e.Presence.OnDisconnect(ctx, userID)

	snap, err := e.Rooms.MarkConnected(ctx, roomID, userID, false, uuid.Nil)
	if err != nil {
		e.Logger.WithError(err).WithField("room_id", roomID).Warn("mark seat disconnected failed")
		return
	}

	if room.IsHost(snap, userID) && snap.Status != models.RoomStatusInGame {
		if err := e.Rooms.CloseRoom(ctx, roomID, "host_left"); err != nil {
			e.Logger.WithError(err).WithField("room_id", roomID).Warn("close room on host departure failed")
		}
	}
}
