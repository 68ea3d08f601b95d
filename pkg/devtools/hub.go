package devtools

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/slicestore/pkg/store"
)

// Event is one message on the action stream.
type Event struct {
	ID      string       `json:"id"`
	Time    time.Time    `json:"time"`
	StoreID string       `json:"storeId"`
	Action  store.Action `json:"action"`

	// Error is set when the payload could not be encoded and was dropped.
	Error string `json:"error,omitempty"`
}

const clientBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans applied actions out to WebSocket clients. Slow clients lose
// events rather than delaying dispatch.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	upgrader websocket.Upgrader
	dropped  uint64
}

// NewHub creates a hub. checkOrigin may be nil to allow all origins.
func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// HandleWebSocket upgrades the request and streams events until the client
// disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writeLoop(c)

	// Reads only detect the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *Hub) writeLoop(c *client) {
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	c.conn.Close()
}

// Publish implements store.Subscriber.
func (h *Hub) Publish(s *store.Store, a store.Action) {
	h.Broadcast(NewEvent(s, a))
}

// NewEvent wraps an applied action for the stream. Update actions carry
// the value they produced instead of their function.
func NewEvent(s *store.Store, a store.Action) Event {
	if a.Kind == store.KindUpdate {
		a.Payload, _ = s.Value(a.Key)
	}
	return Event{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		StoreID: s.ID(),
		Action:  a,
	}
}

// Broadcast sends ev to every client.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		ev.Action.Payload = nil
		ev.Error = fmt.Sprintf("payload not encodable: %v", err)
		if data, err = json.Marshal(ev); err != nil {
			return
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped++
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were dropped for slow clients.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}
