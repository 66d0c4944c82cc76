// Package ws pushes dashboard state changes to connected browsers.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 1024
	sendBufferSize = 32
)

// Greeting produces the first message a new client receives, normally the
// current dashboard state.
type Greeting func() ([]byte, error)

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected WebSocket clients and broadcasts messages published
// on its channel to all of them as JSON text frames.
type Hub struct {
	channel    string
	greeting   Greeting
	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
	origins    map[string]struct{}
	anyOrigin  bool
	logger     *slog.Logger
}

// NewHub creates a Hub forwarding messages published on channel. greeting
// may be nil.
func NewHub(channel string, greeting Greeting, logger *slog.Logger) *Hub {
	h := &Hub{
		channel:    channel,
		greeting:   greeting,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		origins:    make(map[string]struct{}),
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// AllowOrigins admits cross-origin connections from the listed origins in
// addition to same-origin ones. "*" admits any origin. Call before serving.
func (h *Hub) AllowOrigins(origins ...string) {
	for _, o := range origins {
		if o == "*" {
			h.anyOrigin = true
		}
		h.origins[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients), same-origin requests and the allowed origins.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.anyOrigin {
		return true
	}
	if _, ok := h.origins[strings.ToLower(origin)]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Publish queues payload for every connected client. Messages for other
// channels are ignored. When the hub is saturated the message is dropped
// rather than blocking the publisher.
func (h *Hub) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel != h.channel {
		return nil
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	default:
		h.logger.WarnContext(ctx, "broadcast queue full, dropping message")
	}
	return nil
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return ctx.Err()

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Debug("client connected", slog.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.Debug("client disconnected", slog.Int("clients", len(h.clients)))

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow client; it will catch up with the next state
					h.logger.Warn("dropping message for slow client")
				}
			}
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	if h.greeting != nil {
		if msg, err := h.greeting(); err == nil {
			c.send <- msg
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump drains incoming frames so pongs and close frames are processed.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
