// Package gateway pushes timer views and notifications to connected boards
// over WebSocket.
package gateway

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

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/timer"
)

// ViewSource supplies the snapshot a new board starts from.
type ViewSource interface {
	List(includeHidden bool) []timer.View
}

// ConnectionManager manages the WebSocket connections of every board.
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader    websocket.Upgrader
	config      ConnectionConfig
	source      ViewSource
	broadcastCh chan *Message
}

var _ timer.Notifier = (*ConnectionManager)(nil)

// Connection is one connected board.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(source ViewSource, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		source:      source,
		broadcastCh: make(chan *Message, 1000),
	}
}

// SetViewSource replaces the snapshot source. Call it before serving.
func (cm *ConnectionManager) SetViewSource(source ViewSource) {
	cm.source = source
}

// Start processes broadcasts until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades the request, registers the board and queues the
// current snapshot.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}
	// Registered before the snapshot is read so no update falls between the
	// two. An update that arrives ahead of the snapshot is stale at worst.
	cm.registerConnection(connection)
	if err := cm.sendSnapshot(connection); err != nil {
		log.Error().Err(err).Str("connection_id", connection.ID).Msg("failed to send snapshot")
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote", r.RemoteAddr).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) sendSnapshot(conn *Connection) error {
	var views []timer.View
	if cm.source != nil {
		views = cm.source.List(false)
	}
	msg, err := NewMessage(MessageTypeSnapshot, SnapshotPayload{Timers: views})
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if !cm.enqueue(conn, data) {
		return fmt.Errorf("send buffer full for connection %s", conn.ID)
	}
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.connections[conn]; !ok {
		return
	}
	delete(cm.connections, conn)
	close(conn.Send)

	log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// Broadcast queues a message for every board. Messages are dropped when the
// queue is full.
func (cm *ConnectionManager) Broadcast(message *Message) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().Str("type", string(message.Type)).Msg("broadcast channel full, dropping message")
	}
}

// TimerUpdated pushes a redrawn timer.
func (cm *ConnectionManager) TimerUpdated(v timer.View) {
	cm.broadcast(MessageTypeTimerUpdated, v)
}

// Notify pushes an operator notification.
func (cm *ConnectionManager) Notify(n timer.Notification) {
	cm.broadcast(MessageTypeNotification, n)
}

func (cm *ConnectionManager) broadcast(t MessageType, data any) {
	msg, err := NewMessage(t, data)
	if err != nil {
		log.Error().Err(err).Msg("failed to build broadcast message")
		return
	}
	cm.Broadcast(msg)
}

func (cm *ConnectionManager) handleBroadcast(message *Message) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message for broadcast")
		return
	}

	for _, conn := range targets {
		if !cm.enqueue(conn, data) {
			log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("type", string(message.Type)).
		Int("connections", len(targets)).
		Msg("message broadcasted")
}

// enqueue holds the read lock so Send is not closed underneath it.
func (cm *ConnectionManager) enqueue(conn *Connection, data []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.connections[conn] {
		return true
	}
	select {
	case conn.Send <- data:
		return true
	default:
		return false
	}
}

// Stats describes the connected boards.
type Stats struct {
	TotalConnections int `json:"total_connections"`
	ActiveTimers     int `json:"active_timers"`
}

func (cm *ConnectionManager) GetConnectionStats() Stats {
	cm.mu.RLock()
	total := len(cm.connections)
	cm.mu.RUnlock()

	stats := Stats{TotalConnections: total}
	if cm.source != nil {
		stats.ActiveTimers = len(cm.source.List(false))
	}
	return stats
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
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only keeps the connection alive. Boards send commands through
// the RPC API, not the socket.
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
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
