package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"loanportal/pkg/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// clientMessage is what subscribers send over the socket.
type clientMessage struct {
	Action string   `json:"action"`
	Tables []string `json:"tables"`
}

type serverMessage struct {
	Type   string   `json:"type"`
	Tables []string `json:"tables,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Hub keeps the websocket subscribers of this instance and pushes them the
// events they are allowed to see.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity domain.Identity
	send     chan []byte

	// mu guards tables and closed; send is only written or closed under it.
	mu     sync.RWMutex
	tables map[string]bool
	closed bool
}

// NewHub accepts websocket upgrades from allowedOrigins. An empty list
// allows any origin.
func NewHub(allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// Run feeds events from broker to local subscribers until ctx ends.
func (h *Hub) Run(ctx context.Context, broker Broker) error {
	return broker.Subscribe(ctx, h.Dispatch)
}

// ServeWS upgrades the request and serves one subscriber for id.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("realtime upgrade failed", "err", err)
		return
	}
	c := &client{
		hub:      h,
		conn:     conn,
		identity: id,
		send:     make(chan []byte, sendBuffer),
		tables:   make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	c.readPump()
}

// Dispatch delivers ev to every subscriber of its table that may see it.
// Subscribers whose buffer is full are disconnected.
func (h *Hub) Dispatch(ev ChangeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("realtime event encode failed", "err", err, "table", ev.Table)
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.subscribed(ev.Table) && Visible(ev, c.identity) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		if !c.enqueue(payload) {
			if c.isClosed() {
				continue
			}
			h.logger.Warn("realtime subscriber too slow, dropping", "user_id", c.identity.UserID)
			c.close()
		}
	}
}

// ClientCount is the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (c *client) subscribed(table string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables[table] || c.tables["*"]
}

// enqueue queues payload without blocking. It reports false when the client
// is closed or its buffer is full.
func (c *client) enqueue(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	c.hub.remove(c)
}

func (c *client) readPump() {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("realtime read failed", "err", err)
			}
			return
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg clientMessage) {
	reply := serverMessage{Tables: msg.Tables}
	switch strings.ToLower(strings.TrimSpace(msg.Action)) {
	case "subscribe":
		c.mu.Lock()
		for _, t := range msg.Tables {
			if t = strings.TrimSpace(t); t != "" {
				c.tables[t] = true
			}
		}
		c.mu.Unlock()
		reply.Type = "subscribed"
	case "unsubscribe":
		c.mu.Lock()
		for _, t := range msg.Tables {
			delete(c.tables, strings.TrimSpace(t))
		}
		c.mu.Unlock()
		reply.Type = "unsubscribed"
	default:
		reply = serverMessage{Type: "error", Error: "unknown action"}
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	c.enqueue(payload)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
