// Package observer streams per-tick summaries to read-only websocket
// clients.
//
// Observers never influence the simulation. Each client has a bounded
// outbox; a client that falls behind loses messages rather than stalling
// the tick loop.
package observer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lbastigk/Nebulite-sub003/internal/engine"
	"github.com/lbastigk/Nebulite-sub003/internal/world"
)

// Version is the observer protocol version.
const Version = 1

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	outboxSize = 32
)

// Hello is the first message a client receives.
type Hello struct {
	Type            string `json:"type"`
	ProtocolVersion int    `json:"protocol_version"`
	RunID           string `json:"run_id"`
	SessionID       string `json:"session_id"`
}

// TickMsg summarizes one tick.
type TickMsg struct {
	Type         string       `json:"type"`
	Tick         int64        `json:"tick"`
	Center       world.Tile   `json:"center"`
	Active       int          `json:"active"`
	Batches      int          `json:"batches"`
	Moved        int          `json:"moved"`
	Deleted      int          `json:"deleted"`
	Entities     int          `json:"entities"`
	Stats        engine.Stats `json:"stats"`
	GlobalDigest string       `json:"global_digest"`
}

type client struct {
	id     string
	outbox chan []byte
	// dropped counts messages lost to a full outbox.
	dropped atomic.Uint64
}

// Hub fans tick messages out to connected observers.
type Hub struct {
	runID    string
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	closed  bool

	nextID atomic.Uint64
}

// NewHub creates a hub for the given run.
func NewHub(runID string) *Hub {
	return &Hub{
		runID:   runID,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Clients is the number of connected observers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish sends a tick summary to every observer.
func (h *Hub) Publish(rep world.Report, entities int, globalDigest string) {
	b, err := json.Marshal(TickMsg{
		Type:         "TICK",
		Tick:         rep.Tick,
		Center:       rep.Center,
		Active:       rep.Active,
		Batches:      rep.Batches,
		Moved:        rep.Moved,
		Deleted:      rep.Deleted,
		Entities:     entities,
		Stats:        rep.Stats,
		GlobalDigest: globalDigest,
	})
	if err != nil {
		slog.Error("marshal tick message", "tick", rep.Tick, "error", err)
		return
	}
	h.broadcast(b)
}

func (h *Hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.outbox <- b:
		default:
			if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
				slog.Warn("observer falling behind", "session", c.id, "dropped", n)
			}
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.outbox)
	}
}

// Close disconnects every observer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.outbox)
	}
}

// Handler upgrades requests to observer websocket sessions.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := &client{
			id:     fmt.Sprintf("O%d", h.nextID.Add(1)),
			outbox: make(chan []byte, outboxSize),
		}
		hello, _ := json.Marshal(Hello{Type: "HELLO", ProtocolVersion: Version, RunID: h.runID, SessionID: c.id})
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
			return
		}
		if !h.register(c) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		}
		slog.Debug("observer connected", "session", c.id, "remote", r.RemoteAddr)

		done := make(chan struct{})
		go h.readLoop(conn, c, done)
		h.writeLoop(conn, c, done)
		slog.Debug("observer disconnected", "session", c.id, "dropped", c.dropped.Load())
	}
}

// readLoop discards client messages and unregisters on disconnect.
func (h *Hub) readLoop(conn *websocket.Conn, c *client, done chan<- struct{}) {
	defer close(done)
	defer h.unregister(c)

	conn.SetReadLimit(4 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case b, ok := <-c.outbox:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
