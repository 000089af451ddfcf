package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Connection is one live socket. It is created pre-auth by Register and
// promoted in place by Authenticate once the handshake succeeds.
type Connection struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	RoomID        uuid.UUID
	SeatIndex     int
	Authenticated bool
	LastSeen      time.Time

	socket *websocket.Conn
	send   chan []byte
}

// Manager owns every live connection on this instance and the secondary
// indices used to route sends. A single mutex protects all three maps,
// mirroring the teacher's single-lock Lobby design generalized to a
// process-wide registry that spans independently-owned rooms.
type Manager struct {
	mu          sync.Mutex
	connections map[uuid.UUID]*Connection
	byUser      map[uuid.UUID]map[uuid.UUID]struct{}
	byRoom      map[uuid.UUID]map[uuid.UUID]struct{}

	logger *logrus.Logger
}

// NewManager builds an empty connection registry.
func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		connections: make(map[uuid.UUID]*Connection),
		byUser:      make(map[uuid.UUID]map[uuid.UUID]struct{}),
		byRoom:      make(map[uuid.UUID]map[uuid.UUID]struct{}),
		logger:      logger,
	}
}

// Register records a freshly-accepted, pre-auth socket and returns its
// connection id.
func (m *Manager) Register(socket *websocket.Conn) *Connection {
	conn := &Connection{
		ID:       uuid.New(),
		LastSeen: time.Now(),
		socket:   socket,
		send:     make(chan []byte, 32),
	}

	m.mu.Lock()
	m.connections[conn.ID] = conn
	m.mu.Unlock()

	return conn
}

// Authenticate promotes a registered connection to authenticated, binding
// it to userID, roomID and seatIndex and subscribing it to that room's
// broadcasts.
func (m *Manager) Authenticate(connID, userID, roomID uuid.UUID, seatIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}
	conn.UserID = userID
	conn.RoomID = roomID
	conn.SeatIndex = seatIndex
	conn.Authenticated = true

	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[uuid.UUID]struct{})
	}
	m.byUser[userID][connID] = struct{}{}

	if m.byRoom[roomID] == nil {
		m.byRoom[roomID] = make(map[uuid.UUID]struct{})
	}
	m.byRoom[roomID][connID] = struct{}{}
}

// Unsubscribe removes connID from its room's broadcast index without
// closing the socket, for a caller that leaves a room but stays connected
// (e.g. to browse or join another room next).
func (m *Manager) Unsubscribe(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok || !conn.Authenticated {
		return
	}
	if set, ok := m.byRoom[conn.RoomID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(m.byRoom, conn.RoomID)
		}
	}
	conn.RoomID = uuid.Nil
	conn.SeatIndex = 0
}

// GetConnection returns the registered connection for connID, if any.
func (m *Manager) GetConnection(connID uuid.UUID) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[connID]
	return conn, ok
}

// RoomConnectionCount reports how many live connections are bound to roomID.
func (m *Manager) RoomConnectionCount(roomID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byRoom[roomID])
}

// Disconnect removes connID from every index and closes its socket. Safe
// to call more than once.
func (m *Manager) Disconnect(connID uuid.UUID) {
	m.mu.Lock()
	conn, ok := m.connections[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.connections, connID)
	if conn.Authenticated {
		if set, ok := m.byUser[conn.UserID]; ok {
			delete(set, connID)
			if len(set) == 0 {
				delete(m.byUser, conn.UserID)
			}
		}
		if set, ok := m.byRoom[conn.RoomID]; ok {
			delete(set, connID)
			if len(set) == 0 {
				delete(m.byRoom, conn.RoomID)
			}
		}
	}
	m.mu.Unlock()

	close(conn.send)
	_ = conn.socket.Close(websocket.StatusNormalClosure, "disconnected")
}

// CloseAll closes every live socket with the given status/reason, for
// graceful shutdown. It does not run the room/presence side effects
// Disconnect's callers apply per-connection — the caller decides whether
// those still make sense during shutdown.
func (m *Manager) CloseAll(status websocket.StatusCode, reason string) {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.connections = make(map[uuid.UUID]*Connection)
	m.byUser = make(map[uuid.UUID]map[uuid.UUID]struct{})
	m.byRoom = make(map[uuid.UUID]map[uuid.UUID]struct{})
	m.mu.Unlock()

	for _, conn := range conns {
		close(conn.send)
		_ = conn.socket.Close(status, reason)
	}
}

// SendToConnection enqueues msg for delivery to a single connection. A full
// outbound buffer drops the message and disconnects that connection rather
// than blocking the caller — the teacher's LobbyConnection.Write drop
// policy, generalized to a non-blocking channel send.
func (m *Manager) SendToConnection(connID uuid.UUID, msg ServerMessage) {
	m.mu.Lock()
	conn, ok := m.connections[connID]
	m.mu.Unlock()
	if !ok {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.WithError(err).Error("marshal outbound message")
		return
	}

	select {
	case conn.send <- data:
	default:
		m.logger.WithField("connection_id", connID).Warn("outbound buffer full, dropping connection")
		m.Disconnect(connID)
	}
}

// SendToUser delivers msg to every connection owned by userID.
func (m *Manager) SendToUser(userID uuid.UUID, msg ServerMessage) {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.byUser[userID]))
	for id := range m.byUser[userID] {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.SendToConnection(id, msg)
	}
}

// SendToRoom delivers msg to every connection bound to roomID except
// exceptConnID (pass uuid.Nil to exclude nobody). One misbehaving
// connection never aborts the rest of the broadcast.
func (m *Manager) SendToRoom(roomID uuid.UUID, msg ServerMessage, exceptConnID uuid.UUID) {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.byRoom[roomID]))
	for id := range m.byRoom[roomID] {
		if id == exceptConnID {
			continue
		}
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.SendToConnection(id, msg)
	}
}

// Broadcast delivers msg to every authenticated connection on this instance.
func (m *Manager) Broadcast(msg ServerMessage) {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.connections))
	for id, conn := range m.connections {
		if conn.Authenticated {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.SendToConnection(id, msg)
	}
}

// BroadcastToRoom implements room.Broadcaster without the ws package
// depending on the room package — the room service broadcasts through
// this method using a plain string message type.
func (m *Manager) BroadcastToRoom(roomID uuid.UUID, messageType string, payload any, exceptConnID uuid.UUID) {
	m.SendToRoom(roomID, ServerMessage{Type: MessageType(messageType), Payload: payload}, exceptConnID)
}

// SendMessageToConnection implements game.Broadcaster the same way
// BroadcastToRoom implements room.Broadcaster, keeping this package free of
// a dependency on either.
func (m *Manager) SendMessageToConnection(connID uuid.UUID, messageType string, payload any) {
	m.SendToConnection(connID, ServerMessage{Type: MessageType(messageType), Payload: payload})
}

// AllConnectionIDs returns a snapshot of every currently-registered
// connection id, used for graceful shutdown.
func (m *Manager) AllConnectionIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	return ids
}
