package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager tracks relay connections by room and keeps the last
// snapshot each room has seen.
type ConnectionManager struct {
	rooms map[string]*room
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

type room struct {
	connections map[*Connection]bool
	snapshot    json.RawMessage
	updatedAt   time.Time
}

// Connection is one relay client.
type Connection struct {
	ID       string
	ClientID string
	Room     string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for relay connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a frame to deliver to a room, skipping Exclude.
type BroadcastMessage struct {
	Room    string
	Data    []byte
	Exclude *Connection
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1 << 20, // whole-state snapshots
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 64
	}
	return &ConnectionManager{
		rooms: make(map[string]*room),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start delivers queued broadcasts until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request and joins the room. A room
// that already holds a snapshot sends it straight away.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, clientID, roomName string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		ClientID:    clientID,
		Room:        roomName,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	sentSnapshot := cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("client_id", clientID).
		Str("room", roomName).
		Bool("sent_snapshot", sentSnapshot).
		Msg("relay connection established")
	return nil
}

// registerConnection joins the room and queues its snapshot under the
// same lock, so no newer broadcast can overtake it.
func (cm *ConnectionManager) registerConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	rm := cm.rooms[conn.Room]
	if rm == nil {
		rm = &room{connections: make(map[*Connection]bool)}
		cm.rooms[conn.Room] = rm
	}
	rm.connections[conn] = true

	sent := false
	if rm.snapshot != nil {
		if frame, err := Encode(MessageSyncState, rm.snapshot); err == nil {
			conn.Send <- frame
			sent = true
		}
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room", conn.Room).
		Int("total_connections", len(rm.connections)).
		Msg("connection registered")
	return sent
}

// unregisterConnection removes a connection. Rooms keep their snapshot
// after the last client leaves.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	rm, exists := cm.rooms[conn.Room]
	if !exists {
		return
	}
	if _, exists := rm.connections[conn]; !exists {
		return
	}
	delete(rm.connections, conn)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("client_id", conn.ClientID).
		Str("room", conn.Room).
		Msg("connection unregistered")
}

// Snapshot returns the last snapshot stored for a room.
func (cm *ConnectionManager) Snapshot(roomName string) (json.RawMessage, time.Time, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	rm, ok := cm.rooms[roomName]
	if !ok || rm.snapshot == nil {
		return nil, time.Time{}, false
	}
	return rm.snapshot, rm.updatedAt, true
}

// handleClientMessage applies the relay protocol. Payloads are stored
// and forwarded without inspection.
func (cm *ConnectionManager) handleClientMessage(c *Connection, message []byte) {
	env, err := Decode(message)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("ignoring malformed client message")
		return
	}

	switch env.Type {
	case MessageRequestSync:
		snapshot, _, ok := cm.Snapshot(c.Room)
		if !ok {
			log.Debug().Str("connection_id", c.ID).Str("room", c.Room).Msg("sync requested, no snapshot yet")
			return
		}
		frame, err := Encode(MessageSyncState, snapshot)
		if err != nil {
			log.Error().Err(err).Msg("failed to encode sync frame")
			return
		}
		cm.sendTo(c, frame)

	case MessageUpdateState:
		if len(env.Payload) == 0 {
			log.Warn().Str("connection_id", c.ID).Msg("ignoring update without payload")
			return
		}
		frame, err := Encode(MessageSyncState, env.Payload)
		if err != nil {
			log.Error().Err(err).Msg("failed to encode sync frame")
			return
		}
		// Store and enqueue together so rooms see updates in snapshot order.
		cm.mu.Lock()
		if rm, ok := cm.rooms[c.Room]; ok {
			rm.snapshot = append(json.RawMessage(nil), env.Payload...)
			rm.updatedAt = time.Now()
		}
		cm.Broadcast(BroadcastMessage{Room: c.Room, Data: frame, Exclude: c})
		cm.mu.Unlock()

	default:
		log.Debug().Str("connection_id", c.ID).Str("type", string(env.Type)).Msg("ignoring unknown message type")
	}
}

// Broadcast queues a frame for a room.
func (cm *ConnectionManager) Broadcast(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().Str("room", message.Room).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) sendTo(c *Connection, frame []byte) {
	cm.mu.RLock()
	ok := cm.trySend(c, frame)
	cm.mu.RUnlock()
	if !ok {
		cm.dropSlow(c)
	}
}

// trySend must be called with cm.mu held so Send cannot be closed
// underneath it.
func (cm *ConnectionManager) trySend(c *Connection, frame []byte) bool {
	if rm, ok := cm.rooms[c.Room]; !ok || !rm.connections[c] {
		return true
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

func (cm *ConnectionManager) dropSlow(c *Connection) {
	log.Warn().
		Str("connection_id", c.ID).
		Str("client_id", c.ClientID).
		Msg("connection send buffer full, closing connection")
	cm.unregisterConnection(c)
	c.Conn.Close()
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	var slow []*Connection
	sent := 0

	cm.mu.RLock()
	if rm, ok := cm.rooms[message.Room]; ok {
		for conn := range rm.connections {
			if conn == message.Exclude {
				continue
			}
			if cm.trySend(conn, message.Data) {
				sent++
			} else {
				slow = append(slow, conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		cm.dropSlow(conn)
	}

	log.Debug().
		Str("room", message.Room).
		Int("connections", sent).
		Int("dropped", len(slow)).
		Msg("snapshot broadcasted")
}

// ConnectionStats summarises live connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{RoomConnections: make(map[string]int)}
	for name, rm := range cm.rooms {
		count := len(rm.connections)
		if count == 0 {
			continue
		}
		stats.TotalConnections += count
		stats.ActiveRooms++
		stats.RoomConnections[name] = count
	}
	return stats
}

// CloseAll disconnects every client.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, rm := range cm.rooms {
		for conn := range rm.connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
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
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.Manager.handleClientMessage(c, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
