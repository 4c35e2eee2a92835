package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/anveerz/eur-usd-trading-bot/internal/cache"
	"github.com/anveerz/eur-usd-trading-bot/pkg/models"
)

// Hub fans engine events out to WebSocket clients as JSON frames.
// Signal and sentiment events go to every client; bar events honor
// each client's timeframe filter. New clients receive a snapshot from
// the cache so dashboards render without waiting for the next seal.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound

	timeframes []string
	redis      *cache.RedisClient
	logger     *logrus.Entry
	mu         sync.RWMutex
}

// outbound pairs an encoded frame with the timeframe it concerns.
// An empty timeframe means the frame goes to every client.
type outbound struct {
	timeframe string
	data      []byte
}

// Client represents one WebSocket connection.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	lastSeen time.Time

	// nil filter means all timeframes
	timeframes map[string]bool
	mu         sync.RWMutex
}

// NewHub creates the WebSocket hub.
func NewHub(timeframes []string, redis *cache.RedisClient, logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 1000),
		timeframes: timeframes,
		redis:      redis,
		logger:     logger.WithField("component", "ws-hub"),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			go h.sendSnapshot(ctx, client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Broadcast queues an event for delivery to every interested client.
// Frames are dropped when the hub queue is full so the publisher never
// stalls on a slow dashboard.
func (h *Hub) Broadcast(event string, timeframe string, payload interface{}) {
	data, err := json.Marshal(models.WebSocketMessage{Event: event, Data: payload})
	if err != nil {
		h.logger.WithError(err).WithField("event", event).Error("Failed to encode event")
		return
	}

	select {
	case h.broadcast <- outbound{timeframe: timeframe, data: data}:
	default:
		h.logger.WithField("event", event).Warn("Broadcast queue full, dropping frame")
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanOut(msg outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if msg.timeframe != "" && !client.wantsTimeframe(msg.timeframe) {
			continue
		}
		select {
		case client.send <- msg.data:
		default:
			// Client buffer full, disconnect
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// sendSnapshot delivers cached state to a newly connected client.
func (h *Hub) sendSnapshot(ctx context.Context, client *Client) {
	if h.redis == nil {
		return
	}

	snapshot := map[string]interface{}{}

	bars := map[string][]models.Bar{}
	for _, tf := range h.timeframes {
		cached, err := h.redis.GetBars(ctx, tf)
		if err != nil {
			h.logger.WithError(err).WithField("timeframe", tf).Warn("Failed to load cached bars for snapshot")
			continue
		}
		if cached != nil {
			bars[tf] = cached
		}
	}
	snapshot["bars"] = bars

	if sentiment, err := h.redis.GetSentiment(ctx); err == nil && sentiment != nil {
		snapshot["sentiment"] = sentiment
	}
	if pending, err := h.redis.GetPendingSignals(ctx); err == nil && pending != nil {
		snapshot["pending_signals"] = pending
	}

	data, err := json.Marshal(models.WebSocketMessage{Event: models.EventSnapshot, Data: snapshot})
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode snapshot")
		return
	}

	select {
	case client.send <- data:
	default:
	}
}

// shutdown closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket handles WebSocket upgrade requests.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade connection")
		return
	}

	client := &Client{
		id:       fmt.Sprintf("client-%d", time.Now().UnixNano()),
		conn:     conn,
		send:     make(chan []byte, 256),
		hub:      h,
		lastSeen: time.Now(),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// writePump pumps frames to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
					c.hub.logger.WithError(err).Debug("Write error")
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
				websocket.CloseNormalClosure) {
				c.hub.logger.WithError(err).Debug("WebSocket closed")
			}
			break
		}

		c.lastSeen = time.Now()
		c.handleControlMessage(message)
	}
}

// handleControlMessage processes client subscription requests.
func (c *Client) handleControlMessage(data []byte) {
	type controlMessage struct {
		Type       string   `json:"type"`
		Timeframes []string `json:"timeframes,omitempty"`
	}

	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.logger.WithError(err).WithField("client", c.id).Error("Invalid control message")
		return
	}

	switch msg.Type {
	case "subscribe":
		c.setTimeframes(msg.Timeframes)
	case "unsubscribe":
		c.setTimeframes(nil)
	case "ping":
		// Application level keepalive, read deadline already extended
	default:
		c.hub.logger.WithFields(logrus.Fields{
			"client": c.id,
			"type":   msg.Type,
		}).Warn("Unknown control message type")
	}
}

func (c *Client) setTimeframes(timeframes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(timeframes) == 0 {
		c.timeframes = nil
		return
	}

	c.timeframes = make(map[string]bool, len(timeframes))
	for _, tf := range timeframes {
		c.timeframes[tf] = true
	}
}

func (c *Client) wantsTimeframe(timeframe string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeframes == nil || c.timeframes[timeframe]
}
