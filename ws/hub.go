package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"fairCaseServer/config"
	"fairCaseServer/events"
	"fairCaseServer/logger"
	"fairCaseServer/state"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event types pushed to subscribers
const (
	EventCommitmentPublished = "commitment_published"
	EventRoundResolved       = "round_resolved"
	EventSeedRevealed        = "seed_revealed"
)

// SessionChannel is the subscription channel for a single session.
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientConnection represents a connected client with their subscriptions
type ClientConnection struct {
	ID            string
	Conn          *websocket.Conn
	Subscriptions map[string]bool // fairness, session:<id>
	mu            sync.RWMutex
	Send          chan []byte
	closed        bool // Send is closed; guarded by mu
	hub           *Hub
}

// ClientMessage is an intent sent by a client
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is everything the hub writes to a client
type ServerMessage struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type envelope struct {
	channels []string
	data     []byte
}

// Hub fans protocol events out to websocket subscribers and accepts
// publish/open/reveal/verify intents from them.
type Hub struct {
	sessions *state.Registry

	clients      map[*ClientConnection]bool
	clientsMutex sync.RWMutex

	register   chan *ClientConnection
	unregister chan *ClientConnection
	broadcast  chan envelope
	done       chan struct{}

	clientIDCounter int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*ClientConnection]bool),
		register:   make(chan *ClientConnection),
		unregister: make(chan *ClientConnection),
		broadcast:  make(chan envelope, 100),
		done:       make(chan struct{}),
	}
}

// SetRegistry binds the sessions intents act on. The registry publishes
// through the hub, so it is created after it.
func (h *Hub) SetRegistry(sessions *state.Registry) {
	h.sessions = sessions
}

// Run is the central message dispatcher. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	logger.Info("🚀 Event hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.clientsMutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.clientsMutex.Unlock()
			logger.Info("🛑 Event hub stopped")
			return

		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.clientsMutex.Unlock()
			logger.Info("✅ Client registered", "client", client.ID, "total", total)

		case client := <-h.unregister:
			h.clientsMutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			total := len(h.clients)
			h.clientsMutex.Unlock()
			logger.Info("👋 Client unregistered", "client", client.ID, "total", total)

		case msg := <-h.broadcast:
			h.broadcastToSubscribers(msg)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// broadcastToSubscribers sends message to every client subscribed to any of
// its channels, once per client
func (h *Hub) broadcastToSubscribers(msg envelope) {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	for client := range h.clients {
		if !client.subscribedToAny(msg.channels) {
			continue
		}
		if !client.trySend(msg.data) {
			logger.Warn("⚠️  Client send buffer full, skipping message", "client", client.ID)
		}
	}
}

func (h *Hub) enqueue(eventType, sessionID string, payload any) error {
	data, err := json.Marshal(ServerMessage{Type: eventType, Data: payload})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- envelope{channels: []string{config.WSFairnessChannel, SessionChannel(sessionID)}, data: data}:
	default:
		logger.Warn("⚠️  Broadcast channel full, dropping event", "type", eventType)
	}
	return nil
}

/* =========================
   events.Publisher
========================= */

func (h *Hub) CommitmentPublished(_ context.Context, ev events.CommitmentEvent) error {
	return h.enqueue(EventCommitmentPublished, ev.SessionID, ev)
}

func (h *Hub) RoundResolved(_ context.Context, ev events.RoundEvent) error {
	return h.enqueue(EventRoundResolved, ev.SessionID, ev)
}

func (h *Hub) SeedRevealed(_ context.Context, ev events.RevealEvent) error {
	return h.enqueue(EventSeedRevealed, ev.SessionID, ev)
}

/* =========================
   CONNECTIONS
========================= */

// HandleWS is the single WebSocket endpoint
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	logger.Info("📥 WebSocket connection", "remote", r.RemoteAddr)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("❌ WebSocket upgrade failed", logger.Err(err))
		return
	}

	client := &ClientConnection{
		ID:            h.nextClientID(),
		Conn:          conn,
		Subscriptions: make(map[string]bool),
		Send:          make(chan []byte, config.WSSendBuffer),
		hub:           h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) nextClientID() string {
	n := atomic.AddInt64(&h.clientIDCounter, 1)
	return time.Now().Format("20060102-150405") + "-" + strconv.FormatInt(n, 10)
}

func (c *ClientConnection) subscribedToAny(channels []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range channels {
		if c.Subscriptions[ch] {
			return true
		}
	}
	return false
}

// reply queues a direct response to this client only
func (c *ClientConnection) reply(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("❌ Failed to marshal reply", "client", c.ID, logger.Err(err))
		return
	}
	if !c.trySend(data) {
		logger.Warn("⚠️  Client dropped or send buffer full, dropping reply", "client", c.ID)
	}
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the hub already dropped the client.
func (c *ClientConnection) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
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

// close closes Send once; later sends are dropped
func (c *ClientConnection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// writePump sends messages from the Send channel to the WebSocket
func (c *ClientConnection) writePump() {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("❌ Write error", "client", c.ID, logger.Err(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads intents from the WebSocket until the connection drops
func (c *ClientConnection) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("❌ Read error", "client", c.ID, logger.Err(err))
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.reply(ServerMessage{Type: "error", Error: "invalid message"})
			continue
		}

		c.handleMessage(msg)
	}
}
