package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
	"github.com/fyrsmithlabs/errwatchd/internal/errstore"
)

const (
	// clientSendBuffer bounds each client's outbound queue. A client that
	// cannot drain it gets disconnected rather than backing up the hub.
	clientSendBuffer = 16

	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// wsMessage is the envelope for everything pushed over the socket.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage
}

// Hub fans live error events out to connected websocket clients. New
// connections receive a metrics snapshot and the recent-error backlog
// before live events start.
type Hub struct {
	store    *errstore.Store
	metrics  MetricsSource
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]bool
	closed  bool
}

// NewHub creates a Hub.
func NewHub(store *errstore.Store, metrics MetricsSource, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		store:   store,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboard runs on a different port in development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]bool),
	}
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastError pushes a detected error to every connected client.
// Clients whose send queue is full are dropped.
func (h *Hub) BroadcastError(rec *classify.ErrorRecord) {
	h.broadcast(wsMessage{Type: "error_detected", Data: rec})
}

func (h *Hub) broadcast(msg wsMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("websocket client too slow, disconnecting")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) handleConnection(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &wsClient{conn: conn, send: make(chan wsMessage, clientSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[client] = true
	h.mu.Unlock()

	// Initial state before any live event, so a fresh dashboard never
	// renders empty.
	client.send <- wsMessage{Type: "metrics", Data: h.metrics.Snapshot()}
	client.send <- wsMessage{Type: "recent_errors", Data: h.store.Recent(50)}

	go h.writePump(client)
	go h.readPump(client)
	return nil
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump discards inbound frames; the feed is one-way. It exists to
// notice disconnects and process control frames.
func (h *Hub) readPump(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client. Further connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
