// Package gateway bridges browser WebSocket connections to the realtime
// layer. Each connection is one client replica: it owns its own presence
// record and session store, so the merge behavior is identical whether two
// players share one gateway process or sit behind different ones.
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
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duetkeys/duet/internal/chat"
	"github.com/duetkeys/duet/internal/models"
	"github.com/duetkeys/duet/internal/presence"
	"github.com/duetkeys/duet/internal/realtime"
	"github.com/duetkeys/duet/internal/session"
)

// Config holds WebSocket and realtime tuning for the manager.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool

	Presence presence.Config
	Session  session.Config
}

// DefaultConfig returns default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// ChatFeed delivers chat fan-out from other gateway processes. It is nil in
// single-process deployments; local broadcast covers that case.
type ChatFeed interface {
	Subscribe(subject string, handler func(data []byte)) (func() error, error)
}

// Manager owns the WebSocket connection pool.
type Manager struct {
	store   realtime.Store
	clock   clockwork.Clock
	chatApp *chat.App
	feed    ChatFeed
	config  Config

	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[*Connection]bool
}

// Connection represents one player's WebSocket connection.
type Connection struct {
	ID      string
	Role    models.Role
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *Manager

	presence *presence.Aggregator
	session  *session.Store
	cancel   context.CancelFunc

	ConnectedAt time.Time
}

// NewManager creates a WebSocket connection manager. chatApp and feed may be
// nil when chat is disabled.
func NewManager(store realtime.Store, clock clockwork.Clock, chatApp *chat.App, feed ChatFeed, config Config) *Manager {
	return &Manager{
		store:   store,
		clock:   clock,
		chatApp: chatApp,
		feed:    feed,
		config:  config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		connections: make(map[*Connection]bool),
	}
}

// Start subscribes to the cross-process chat feed. It returns immediately;
// subscriptions live until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	if m.feed == nil {
		return nil
	}
	for _, sub := range []struct {
		subject string
		kind    string
	}{
		{chat.SubjectMessages, msgTypeChat},
		{chat.SubjectCalls, msgTypeCall},
	} {
		kind := sub.kind
		unsub, err := m.feed.Subscribe(sub.subject, func(data []byte) {
			m.broadcastRaw(kind, data)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", sub.subject, err)
		}
		go func() {
			<-ctx.Done()
			if err := unsub(); err != nil {
				log.Warn().Err(err).Msg("failed to unsubscribe chat feed")
			}
		}()
	}
	return nil
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection and
// joins the player to the shared space.
func (m *Manager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	role := models.ParseRole(r.URL.Query().Get("role"))

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	presCfg := m.config.Presence
	presCfg.Role = role
	pres := presence.New(m.store, m.clock, presCfg)

	connection := &Connection{
		ID:          uuid.New().String(),
		Role:        role,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     m,
		presence:    pres,
		session:     session.New(m.store, m.clock, m.config.Session, session.Default(m.clock)),
		cancel:      cancel,
		ConnectedAt: m.clock.Now(),
	}

	if err := pres.Start(ctx, "idle", nil); err != nil {
		cancel()
		conn.Close()
		return fmt.Errorf("failed to start presence: %w", err)
	}

	m.registerConnection(connection)

	if err := connection.attach(ctx); err != nil {
		m.unregisterConnection(connection)
		connection.teardown()
		conn.Close()
		return err
	}

	go connection.writePump()
	go connection.readPump(ctx)

	log.Info().
		Str("connection_id", connection.ID).
		Str("role", string(role)).
		Str("presence_id", pres.ID()).
		Msg("WebSocket connection established")

	return nil
}

// attach starts the forwarders that turn presence and session updates into
// outbound frames.
func (c *Connection) attach(ctx context.Context) error {
	presCh, err := c.presence.Observe(ctx)
	if err != nil {
		return fmt.Errorf("failed to observe presence: %w", err)
	}
	sessCh, err := c.session.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe session: %w", err)
	}

	go func() {
		for snapshot := range presCh {
			c.Manager.sendJSON(c, serverMessage{Type: msgTypePresence, Participants: snapshot})
		}
	}()
	go func() {
		for snap := range sessCh {
			s := snap
			c.Manager.sendJSON(c, serverMessage{Type: msgTypeSession, Session: &s})
		}
	}()
	return nil
}

func (c *Connection) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.presence.Teardown(ctx); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("presence teardown failed")
	}
	c.session.Close()
	c.cancel()
}

func (m *Manager) registerConnection(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(m.connections)).
		Msg("connection registered")
}

func (m *Manager) unregisterConnection(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connections[conn]; exists {
		delete(m.connections, conn)
		close(conn.Send)

		log.Info().
			Str("connection_id", conn.ID).
			Str("role", string(conn.Role)).
			Msg("connection unregistered")
	}
}

// sendJSON marshals and queues one frame for a single connection. The send
// happens under the read lock so the channel cannot be closed mid-send.
func (m *Manager) sendJSON(conn *Connection, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal frame")
		return
	}
	m.trySend(conn, data)
}

func (m *Manager) trySend(conn *Connection, data []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connections[conn] {
		return
	}
	select {
	case conn.Send <- data:
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		go conn.Conn.Close()
	}
}

// broadcastRaw wraps an already-marshaled payload and fans it out to every
// local connection.
func (m *Manager) broadcastRaw(kind string, payload []byte) {
	frame, err := json.Marshal(serverMessage{Type: kind, Raw: payload})
	if err != nil {
		log.Error().Err(err).Str("type", kind).Msg("failed to marshal broadcast frame")
		return
	}

	m.mu.RLock()
	targets := make([]*Connection, 0, len(m.connections))
	for conn := range m.connections {
		targets = append(targets, conn)
	}
	m.mu.RUnlock()

	for _, conn := range targets {
		m.trySend(conn, frame)
	}
}

// ConnectionStats returns statistics about active connections.
func (m *Manager) ConnectionStats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roles := make(map[string]int)
	for conn := range m.connections {
		roles[string(conn.Role)]++
	}
	return map[string]any{
		"total_connections": len(m.connections),
		"roles":             roles,
	}
}

// writePump handles sending messages to the WebSocket connection.
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
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection. It owns
// the connection teardown: when the socket drops for any reason, the
// presence record is removed and the watchers stop.
func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.teardown()
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(ctx, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage dispatches one inbound frame.
func (c *Connection) handleClientMessage(ctx context.Context, message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Msg("dropping malformed client frame")
		return
	}

	switch msg.Type {
	case msgTypeCursor:
		c.presence.PublishPosition(ctx, msg.X, msg.Y)

	case msgTypeActivity:
		c.presence.SetActivity(ctx, msg.Activity, msg.Telemetry)

	case msgTypeSession:
		if msg.Session == nil {
			return
		}
		c.session.Update(ctx, msg.Session.toChanges())

	case msgTypeChat:
		if c.Manager.chatApp == nil || msg.Chat == nil {
			return
		}
		sent, err := c.Manager.chatApp.SendMessage(ctx, *msg.Chat)
		if err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("chat send rejected")
			return
		}
		if c.Manager.feed == nil {
			c.Manager.broadcastLocal(msgTypeChat, sent)
		}

	case msgTypeCall:
		if c.Manager.chatApp == nil || msg.Call == nil {
			return
		}
		sig, err := c.Manager.chatApp.SignalCall(ctx, *msg.Call)
		if err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("call signal rejected")
			return
		}
		if c.Manager.feed == nil {
			c.Manager.broadcastLocal(msgTypeCall, sig)
		}

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", msg.Type).
			Msg("ignoring unknown client frame type")
	}
}

func (m *Manager) broadcastLocal(kind string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("type", kind).Msg("failed to marshal local broadcast")
		return
	}
	m.broadcastRaw(kind, payload)
}
