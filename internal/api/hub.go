package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/talgya/tidewater/internal/city"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Message is the envelope for everything sent over a live socket.
type Message struct {
	Type    string `json:"type"` // "connected" or "event"
	Payload any    `json:"payload"`
}

type client struct {
	id     string
	cityID int64
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans city events out to the live sockets watching each city. It
// implements engine.Notifier.
type Hub struct {
	clients    map[*client]bool
	publish    chan city.Event
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

// NewHub creates a hub. Run must be started before sockets connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		publish:    make(chan city.Event, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run is the hub loop. It blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			hello, _ := json.Marshal(Message{Type: "connected", Payload: map[string]any{
				"clientId": c.id,
				"cityId":   c.cityID,
			}})
			c.send <- hello
			slog.Debug("live client connected", "client", c.id, "city", c.cityID)

		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				slog.Debug("live client disconnected", "client", c.id, "city", c.cityID)
			}

		case e := <-h.publish:
			data, err := json.Marshal(Message{Type: "event", Payload: e})
			if err != nil {
				slog.Error("encode live event", "event", e.ID, "error", err)
				continue
			}
			for c := range h.clients {
				if c.cityID != e.CityID {
					continue
				}
				select {
				case c.send <- data:
				default:
					// Slow reader; drop it.
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Publish queues an event for delivery without blocking. Events are
// dropped while the queue is full.
func (h *Hub) Publish(e city.Event) {
	select {
	case h.publish <- e:
	default:
		slog.Warn("live event dropped", "city", e.CityID, "event", e.ID)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serve upgrades the request and attaches the socket to a city.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, cityID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{
		id:     uuid.NewString(),
		cityID: cityID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump(h)
}

// readPump discards client input and notices disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("live socket error", "client", c.id, "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
