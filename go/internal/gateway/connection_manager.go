package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// MessageHandler receives everything a connection reads.
type MessageHandler interface {
	HandleMessage(c *Connection, message []byte)
	HandlePong(c *Connection)
	HandleClose(c *Connection)
}

// ConnectionManager is the connection registry. It owns every live socket
// and knows which (room, participant) each one is bound to.
type ConnectionManager struct {
	// Connection pools organized by room ID
	roomConnections map[string]map[*Connection]struct{}
	// Bound connection per participant seat
	seats map[seat]*Connection
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  MessageHandler
	onDrop   DropFunc

	broadcastCh chan BroadcastMessage
}

type seat struct {
	roomID        string
	participantID string
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Room named on the upgrade URL, used when a join omits roomId
	DefaultRoomID string
	ConnectedAt   time.Time

	mu            sync.Mutex
	closed        bool
	roomID        string
	participantID string
	// roomRef is the room reference the client joined with, an id or a code
	roomRef  string
	lastPing time.Time

	// Inbound message budget
	limiter *rate.Limiter
}

// ConnectionConfig holds configuration for WebSocket connections.
// MessageRate and MessageBurst bound inbound frames per connection.
// SubmitTimeout is how long a full broadcast queue is waited on before a
// message is dropped.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	SubmitTimeout   time.Duration
	MessageRate     rate.Limit
	MessageBurst    int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 4096,
		SubmitTimeout:   2 * time.Second,
		MessageRate:     20,
		MessageBurst:    40,
		CheckOrigin: func(r *http.Request) bool {
			// Origins are enforced by the CORS layer in front of the gateway
			return true
		},
	}
}

// NewConnectionManager creates a new connection registry
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	if config.BroadcastBuffer <= 0 {
		config.BroadcastBuffer = 4096
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = DefaultConnectionConfig().SubmitTimeout
	}
	if config.MessageRate <= 0 {
		config.MessageRate = rate.Inf
	}
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]struct{}),
		seats:           make(map[seat]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// SetHandler wires the component that interprets client messages.
func (cm *ConnectionManager) SetHandler(h MessageHandler) {
	cm.handler = h
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its pumps
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, defaultRoomID string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := cm.newConnection(conn, defaultRoomID)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Str("room_id", defaultRoomID).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) newConnection(conn *websocket.Conn, defaultRoomID string) *Connection {
	now := time.Now()
	return &Connection{
		ID:            uuid.New().String(),
		Conn:          conn,
		Send:          make(chan []byte, cm.config.SendBufferSize),
		Manager:       cm,
		DefaultRoomID: defaultRoomID,
		ConnectedAt:   now,
		lastPing:      now,
		limiter:       rate.NewLimiter(cm.config.MessageRate, cm.config.MessageBurst),
	}
}

// Register binds a connection to a participant seat in a room. A connection
// already holding that seat is unbound and returned so the caller can close
// it; its later close is then not mistaken for the participant leaving.
func (cm *ConnectionManager) Register(conn *Connection, participantID, roomID string) (replaced *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.unbindLocked(conn)

	key := seat{roomID: roomID, participantID: participantID}
	if prev, ok := cm.seats[key]; ok && prev != conn {
		cm.unbindLocked(prev)
		replaced = prev
	}

	if cm.roomConnections[roomID] == nil {
		cm.roomConnections[roomID] = make(map[*Connection]struct{})
	}
	cm.roomConnections[roomID][conn] = struct{}{}
	cm.seats[key] = conn

	conn.mu.Lock()
	conn.roomID = roomID
	conn.participantID = participantID
	conn.mu.Unlock()

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", roomID).
		Str("participant_id", participantID).
		Int("total_connections", len(cm.roomConnections[roomID])).
		Msg("connection registered")

	return replaced
}

// Unbind drops a connection's seat but keeps the socket open.
// It returns the seat the connection held, if any.
func (cm *ConnectionManager) Unbind(conn *Connection) (participantID, roomID string, wasBound bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.unbindLocked(conn)
}

func (cm *ConnectionManager) unbindLocked(conn *Connection) (participantID, roomID string, wasBound bool) {
	participantID, roomID = conn.Binding()
	if roomID == "" {
		return "", "", false
	}

	if connections, ok := cm.roomConnections[roomID]; ok {
		delete(connections, conn)
		// Clean up empty room connection pools
		if len(connections) == 0 {
			delete(cm.roomConnections, roomID)
		}
	}
	key := seat{roomID: roomID, participantID: participantID}
	if cm.seats[key] == conn {
		delete(cm.seats, key)
	}

	conn.mu.Lock()
	conn.roomID = ""
	conn.participantID = ""
	conn.roomRef = ""
	conn.mu.Unlock()

	return participantID, roomID, true
}

// Unregister removes a connection entirely and closes its send queue.
// It returns the seat the connection still held, if any.
func (cm *ConnectionManager) Unregister(conn *Connection) (participantID, roomID string, wasBound bool) {
	participantID, roomID, wasBound = cm.Unbind(conn)
	if conn.closeSend() {
		log.Info().
			Str("connection_id", conn.ID).
			Str("participant_id", participantID).
			Str("room_id", roomID).
			Msg("connection unregistered")
	}
	return participantID, roomID, wasBound
}

// ConnectionsFor returns the connections bound to a room at call time.
func (cm *ConnectionManager) ConnectionsFor(roomID string) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	connections := cm.roomConnections[roomID]
	out := make([]*Connection, 0, len(connections))
	for conn := range connections {
		out = append(out, conn)
	}
	return out
}

// FindConnection returns the connection holding a participant's seat.
func (cm *ConnectionManager) FindConnection(participantID, roomID string) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.seats[seat{roomID: roomID, participantID: participantID}]
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{RoomConnections: make(map[string]int, len(cm.roomConnections))}
	for roomID, connections := range cm.roomConnections {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[roomID] = len(connections)
	}
	stats.ActiveRooms = len(cm.roomConnections)
	return stats
}

// ConnectionStats summarizes bound connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// Binding returns the seat this connection currently holds.
func (c *Connection) Binding() (participantID, roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantID, c.roomID
}

func (c *Connection) setRoomRef(ref string) {
	c.mu.Lock()
	c.roomRef = ref
	c.mu.Unlock()
}

// matches reports whether an envelope agrees with the seat this connection
// holds. Empty envelope fields are taken to mean the bound seat.
func (c *Connection) matches(msg *InboundMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.ParticipantID != "" && msg.ParticipantID != c.participantID {
		return false
	}
	return msg.RoomID == "" || msg.RoomID == c.roomID || msg.RoomID == c.roomRef
}

// allow reports whether the connection may send another frame now.
func (c *Connection) allow() bool {
	return c.limiter.Allow()
}

// LastPing returns when the client last answered a ping.
func (c *Connection) LastPing() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPing
}

// enqueue hands data to the write pump. It never blocks; false means the
// connection is closed or too slow to keep up.
func (c *Connection) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send queue once. The write pump flushes what is
// queued, sends a close frame and tears the socket down.
func (c *Connection) closeSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.Send)
	return true
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		if c.Manager.handler != nil {
			c.Manager.handler.HandleClose(c)
		} else {
			c.Manager.Unregister(c)
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.mu.Lock()
		c.lastPing = time.Now()
		c.mu.Unlock()
		if c.Manager.handler != nil {
			c.Manager.handler.HandlePong(c)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c, message)
		}
	}
}
