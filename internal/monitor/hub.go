package monitor

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/marcus-ai/marcus/internal/store"
)

// WebSocketBufferSize bounds the per-client send queue so a slow
// dashboard can't block a broadcast indefinitely.
const WebSocketBufferSize = 256

// WSMessageType tags a dashboard message's payload shape.
type WSMessageType string

const (
	WSTypeProjectView WSMessageType = "project_view"
	WSTypeEvent       WSMessageType = "event"
)

// WSMessage is the envelope every dashboard message carries.
type WSMessage struct {
	Type WSMessageType `json:"type"`
	Data interface{}   `json:"data"`
}

// client is one connected dashboard, adapted from the teacher's
// internal/server.Client.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans the Project Monitor's view out to every connected dashboard,
// adapted from the teacher's internal/server.Hub: the register/unregister
// channel pattern is kept verbatim, BroadcastState generalized into
// BroadcastView over store.ProjectView instead of types.DashboardState.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	upgrader   websocket.Upgrader
}

// NewHub creates a Hub with no clients. Run must be started in a
// background goroutine before clients can register.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, WebSocketBufferSize),
		upgrader:   websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Run starts the hub's main loop; call once, typically in its own
// goroutine from cmd/marcus.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ServeHTTP upgrades the request to a websocket and registers the
// resulting client with the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, WebSocketBufferSize)}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// BroadcastJSON marshals msg and queues it for every connected client.
func (h *Hub) BroadcastJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast <- data
}

// BroadcastView sends the latest ProjectView to every connected dashboard.
func (h *Hub) BroadcastView(v *store.ProjectView) {
	h.BroadcastJSON(WSMessage{Type: WSTypeProjectView, Data: v})
}

// ClientCount reports how many dashboards are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
