// Package ws streams committed contract events to websocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"rideescrow/internal/domain/entities"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 64
	backlog        = 256
)

var (
	ErrHubClosed   = errors.New("event hub closed")
	ErrBacklogFull = errors.New("event hub backlog full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Subscribers only read public event data.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to every connected subscriber. Slow subscribers whose
// buffer fills up are disconnected rather than stalling the others.
//
// Go Learning Note — Single-Owner Goroutine:
// Only the Run goroutine touches the clients map. Everyone else talks to it
// through the register/unregister/broadcast channels, so the map needs no
// mutex.
type Hub struct {
	log        *slog.Logger
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	clients    map[*client]struct{}
	done       chan struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:        log.With("component", "ws_hub"),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, backlog),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Debug("subscriber_connected", "subscribers", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Debug("subscriber_disconnected", "subscribers", len(h.clients))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.drop(c)
					h.log.Warn("subscriber_dropped", "reason", "send buffer full")
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) Name() string { return "websocket" }

// Publish queues events for broadcast without blocking on subscribers.
func (h *Hub) Publish(ctx context.Context, events []entities.Event) error {
	for _, ev := range events {
		msg, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		select {
		case <-h.done:
			return ErrHubClosed
		case <-ctx.Done():
			return ctx.Err()
		case h.broadcast <- msg:
		default:
			return ErrBacklogFull
		}
	}
	return nil
}

// ServeWS upgrades the request and streams events to it until either side
// closes the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn("websocket_upgrade_failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump(h)
}

// readPump discards inbound messages; it exists to process pongs and notice
// when the peer goes away.
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
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
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
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
