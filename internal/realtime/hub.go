package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leadguard/scan-engine/internal/database"
)

// Message is one frame on the live threat feed
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of active feed connections and broadcasts new threat
// records to them. Slow clients are dropped rather than allowed to back up
// the broadcast loop.
type Hub struct {
	logger     *slog.Logger
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is public read-only data; origin checks belong to the edge.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewHub creates a threat feed hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run processes registrations and broadcasts. Started once from main and
// lives for the life of the process.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug("feed client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// BroadcastThreat pushes a new ledger record to every connected client.
// Best-effort: a marshal failure is logged and dropped.
func (h *Hub) BroadcastThreat(record *database.ThreatRecord) {
	msg := Message{
		Type:      "threat_detected",
		Payload:   record,
		Timestamp: time.Now().UTC(),
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal feed message", "error", err)
		return
	}

	select {
	case h.broadcast <- raw:
	default:
		h.logger.Warn("feed broadcast buffer full, dropping message")
	}
}

// HandleWebSocket upgrades an HTTP request onto the feed
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
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

// readPump drains client frames so pongs are processed and disconnects are
// noticed; the feed itself is one-way.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
