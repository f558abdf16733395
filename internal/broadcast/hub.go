// Package broadcast fans detection events out to WebSocket subscribers. It is
// the single consumer of the event bus: events are drained in order and
// written to every connected client as JSON text frames.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tiroq/tablewatch/internal/diaglog"
	"github.com/tiroq/tablewatch/internal/events"
)

const (
	writeTimeout = 5 * time.Second
	// clientBuffer bounds per-client backlog. A client that cannot keep up
	// is dropped rather than stalling the fan-out.
	clientBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Local tooling transport; origin checks add nothing here.
	CheckOrigin: func(*http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the client set and the bus-draining loop.
type Hub struct {
	bus  *events.Bus
	dlog *diaglog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a hub draining bus. dlog may be nil.
func NewHub(bus *events.Bus, dlog *diaglog.Logger) *Hub {
	return &Hub{
		bus:     bus,
		dlog:    dlog,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the connection. The read side
// is only pumped to detect closure; inbound frames are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.dlog.Log(diaglog.LogEntry{
		Component: diaglog.ComponentBroadcast,
		Event:     diaglog.EventClientConnect,
		Payload:   map[string]interface{}{"remote": r.RemoteAddr, "clients": n},
	})

	go h.writePump(c)
	go h.readPump(c)
}

// Run drains the bus until ctx is done, broadcasting each event.
func (h *Hub) Run(ctx context.Context) {
	for {
		e, err := h.bus.Next(ctx)
		if err != nil {
			h.closeAll()
			return
		}
		payload, merr := json.Marshal(e)
		if merr != nil {
			continue
		}
		h.broadcast(payload)
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range slow {
		close(c.send)
		h.dlog.Log(diaglog.LogEntry{
			Component: diaglog.ComponentBroadcast,
			Event:     diaglog.EventClientDropped,
			Reason:    "send buffer full",
		})
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.remove(c)
			return
		}
	}
	// send channel closed: hub dropped this client.
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"))
}

func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

// remove unregisters c if still present and closes its send channel once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	cs := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		cs = append(cs, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range cs {
		close(c.send)
		_ = c.conn.Close()
	}
}
