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

	"github.com/mcdev12/puzzlerace/go/internal/race/events"
	"github.com/mcdev12/puzzlerace/go/internal/race/room"
)

// Handler reacts to connection lifecycle and inbound frames.
type Handler interface {
	OnConnect(ctx context.Context, c *Connection)
	OnMessage(ctx context.Context, c *Connection, raw []byte)
	OnDisconnect(ctx context.Context, c *Connection)
}

// ConnectionManager keeps one websocket per authenticated user.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  Handler

	broadcastCh chan BroadcastMessage
}

// Connection is one client socket.
type Connection struct {
	ID       string
	UserID   string
	Identity room.Identity
	Conn     *websocket.Conn
	Manager  *ConnectionManager

	ConnectedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	sendMu sync.Mutex
	send   chan []byte
	closed bool
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration // pong wait
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage targets UserIDs, or every connection when UserIDs is nil.
type BroadcastMessage struct {
	Event   *Envelope
	UserIDs []string
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    54 * time.Second,
		MaxMessageSize:  8192,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// SetHandler installs the inbound handler. Must be called before Upgrade.
func (cm *ConnectionManager) SetHandler(h Handler) {
	cm.handler = h
}

// Start processes queued outbound messages until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Upgrade turns an authenticated request into a registered connection.
func (cm *ConnectionManager) Upgrade(w http.ResponseWriter, r *http.Request, identity room.Identity) (*Connection, error) {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		ID:          uuid.New().String(),
		UserID:      identity.UserID,
		Identity:    identity,
		Conn:        ws,
		Manager:     cm,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		send:        make(chan []byte, cm.config.SendBufferSize),
	}

	cm.register(c)

	go c.writePump()
	go c.readPump()

	if cm.handler != nil {
		cm.handler.OnConnect(ctx, c)
	}

	log.Info().
		Str("connection_id", c.ID).
		Str("user_id", c.UserID).
		Msg("WebSocket connection established")
	return c, nil
}

// register stores c, closing any older connection of the same user.
func (cm *ConnectionManager) register(c *Connection) {
	cm.mu.Lock()
	old := cm.connections[c.UserID]
	cm.connections[c.UserID] = c
	total := len(cm.connections)
	cm.mu.Unlock()

	if old != nil {
		log.Info().
			Str("user_id", c.UserID).
			Str("old_connection_id", old.ID).
			Str("connection_id", c.ID).
			Msg("replacing existing connection")
		old.close()
	}
	log.Debug().Str("connection_id", c.ID).Int("total_connections", total).Msg("connection registered")
}

// unregister removes c. It reports whether c was the user's current
// connection, so a replaced socket closing late does not count as a
// disconnect.
func (cm *ConnectionManager) unregister(c *Connection) bool {
	cm.mu.Lock()
	current := cm.connections[c.UserID] == c
	if current {
		delete(cm.connections, c.UserID)
	}
	cm.mu.Unlock()

	c.close()
	return current
}

// SendToUser implements the orchestrator's Notifier.
func (cm *ConnectionManager) SendToUser(userID string, eventType events.Type, payload any) bool {
	if !cm.IsConnected(userID) {
		return false
	}
	cm.enqueue(eventType, payload, []string{userID})
	return true
}

func (cm *ConnectionManager) SendToUsers(userIDs []string, eventType events.Type, payload any) {
	if len(userIDs) == 0 {
		return
	}
	cm.enqueue(eventType, payload, userIDs)
}

func (cm *ConnectionManager) Broadcast(eventType events.Type, payload any) {
	cm.enqueue(eventType, payload, nil)
}

func (cm *ConnectionManager) enqueue(eventType events.Type, payload any, userIDs []string) {
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build envelope")
		return
	}
	select {
	case cm.broadcastCh <- BroadcastMessage{Event: env, UserIDs: userIDs}:
	default:
		log.Warn().
			Str("event_type", string(eventType)).
			Strs("users", userIDs).
			Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	var targets []*Connection
	cm.mu.RLock()
	if message.UserIDs == nil {
		targets = make([]*Connection, 0, len(cm.connections))
		for _, c := range cm.connections {
			targets = append(targets, c)
		}
	} else {
		for _, id := range message.UserIDs {
			if c, ok := cm.connections[id]; ok {
				targets = append(targets, c)
			}
		}
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, c := range targets {
		if !c.enqueue(data) {
			log.Warn().
				Str("connection_id", c.ID).
				Str("user_id", c.UserID).
				Msg("connection send buffer full, closing connection")
			c.close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// ConnectedCount is the number of online players.
func (cm *ConnectionManager) ConnectedCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

func (cm *ConnectionManager) IsConnected(userID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.connections[userID]
	return ok
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}

// SendEnvelope writes directly to this connection, bypassing the broadcast
// queue. Used for replies that concern only this socket.
func (c *Connection) SendEnvelope(eventType events.Type, payload any) {
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to build envelope")
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal envelope")
		return
	}
	if !c.enqueue(data) {
		log.Warn().Str("connection_id", c.ID).Msg("dropping direct message")
	}
}

func (c *Connection) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Connection) writePump() {
	cfg := c.Manager.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	cm := c.Manager
	defer func() {
		current := cm.unregister(c)
		c.Conn.Close()
		if current && cm.handler != nil {
			cm.handler.OnDisconnect(c.ctx, c)
		}
		c.cancel()
		log.Info().
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Bool("replaced", !current).
			Msg("connection closed")
	}()

	c.Conn.SetReadLimit(cm.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		if cm.handler != nil {
			cm.handler.OnMessage(c.ctx, c, message)
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	}
}
