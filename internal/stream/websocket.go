package stream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams snapshot frames as WebSocket text messages
type WebSocketHandler struct {
	hub      *Hub
	source   FrameSource
	interval time.Duration
	logger   *slog.Logger
}

// NewWebSocketHandler creates the WebSocket stream endpoint
func NewWebSocketHandler(hub *Hub, source FrameSource, interval time.Duration, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		source:   source,
		interval: interval,
		logger:   logger,
	}
}

// client owns one upgraded connection
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ServeHTTP upgrades the connection and blocks until the session ends
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cleanup, ok := h.hub.open(r.Context(), TransportWebSocket)
	if !ok {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer cleanup()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, 4),
		logger: h.logger,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		c.readPump()
		cancel()
	}()

	go func() {
		Run(ctx, h.interval, h.source, func(payload []byte) error {
			select {
			case c.send <- payload:
			case <-ctx.Done():
				return ctx.Err()
			default:
				c.logger.Warn("websocket client too slow, dropping frame")
			}
			return nil
		})
	}()

	c.writePump(ctx)
}

// readPump only services control frames; it returns when the peer goes away
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

// writePump is the only writer on the connection
func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
