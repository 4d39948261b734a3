package telemetry

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 200 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans messages out to websocket clients. Clients that cannot keep up
// are dropped.
type Hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]bool
	logger *log.Logger
}

// NewHub returns an empty hub logging to log.Default.
func NewHub() *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]bool),
		logger: log.Default(),
	}
}

// SetLogger sets the destination of connection logs and returns the previous
// logger.
func (h *Hub) SetLogger(l *log.Logger) *log.Logger {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.logger
	h.logger = l
	return old
}

func (h *Hub) printf(format string, v ...any) {
	h.mu.Lock()
	l := h.logger
	h.mu.Unlock()
	l.Printf(format, v...)
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	return clients
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast sends a text message to every client.
func (h *Hub) Broadcast(b []byte) {
	h.broadcast(websocket.TextMessage, b)
}

// BroadcastBinary sends a binary message, such as an encoded waveform, to
// every client.
func (h *Hub) BroadcastBinary(b []byte) {
	h.broadcast(websocket.BinaryMessage, b)
}

func (h *Hub) broadcast(kind int, b []byte) {
	for _, c := range h.snapshot() {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(kind, b); err != nil {
			h.printf("[WARN] telemetry: dropping client %s: %v", c.RemoteAddr(), err)
			_ = c.Close()
			h.remove(c)
		}
	}
}

// ServeHTTP upgrades the request and keeps the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.printf("[ERROR] telemetry: failed to upgrade connection: %v", err)
		return
	}
	h.add(conn)
	h.printf("[INFO] telemetry: client connected: %s", conn.RemoteAddr())
	defer func() {
		h.remove(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.printf("[ERROR] telemetry: websocket error: %v", err)
			}
			return
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	for _, c := range h.snapshot() {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(writeTimeout))
		_ = c.Close()
		h.remove(c)
	}
}
