package stream

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jptaranto/zone-bridge/internal/zones"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	sendBuffer = 64
)

// Event types sent to clients.
const (
	EventConnected    = "connected"
	EventZoneState    = "zone_state"
	EventZonesChanged = "zones_changed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local network clients
	},
}

// Event is one message on the stream.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

// Hub fans zone events out to websocket clients. It implements
// bridge.StateListener.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *log.Logger

	// snapshot, when set, supplies the payload of the connected event.
	snapshot func() any
}

// NewHub creates a hub. snapshot may be nil.
func NewHub(logger *log.Logger, snapshot func() any) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
		snapshot:   snapshot,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Printf("[STREAM] client connected from %s (total: %d)", c.remoteAddr, count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Printf("[STREAM] client disconnected from %s (total: %d)", c.remoteAddr, count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow client; drop it rather than stall everyone.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for every client. It never blocks; when the
// queue is full the event is dropped.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Printf("[STREAM] failed to marshal %s event: %v", event.Type, err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Printf("[STREAM] broadcast queue full, dropping %s event", event.Type)
	}
}

// ZoneStateChanged implements bridge.StateListener.
func (h *Hub) ZoneStateChanged(zone zones.Zone, state zones.ZoneState) {
	h.Broadcast(Event{
		Type: EventZoneState,
		Payload: map[string]any{
			"zone_id":      zone.ID,
			"accessory_id": zone.AccessoryID,
			"name":         zone.Name,
			"state":        state,
		},
	})
}

// ZonesChanged implements bridge.StateListener.
func (h *Hub) ZonesChanged(all []zones.Zone, changes zones.Changes) {
	if changes.Empty() {
		return
	}
	h.Broadcast(Event{
		Type: EventZonesChanged,
		Payload: map[string]any{
			"zones":    all,
			"added":    ids(changes.Added),
			"restored": ids(changes.Restored),
			"removed":  ids(changes.Removed),
			"renamed":  ids(changes.Renamed),
		},
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[STREAM] upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	c := &client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		remoteAddr: r.RemoteAddr,
	}

	// Queue the greeting before registering so it is the first frame.
	greeting := Event{Type: EventConnected}
	if h.snapshot != nil {
		greeting.Payload = h.snapshot()
	}
	if data, err := json.Marshal(greeting); err == nil {
		c.send <- data
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

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

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Printf("[STREAM] read error from %s: %v", c.remoteAddr, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func ids(list []zones.Zone) []string {
	result := make([]string, 0, len(list))
	for _, zone := range list {
		result = append(result, zone.ID)
	}
	return result
}
