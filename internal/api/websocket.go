package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is the envelope broadcast to every connected operator client.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsClient is one connected read-only operator websocket.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out broadcast events to every connected client, isolating one
// client's slow consumer from the rest. It is one-directional (server ->
// client) since this surface is read-only and accepts no client commands
// beyond connect.
type Hub struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	clients map[string]*wsClient
}

// NewHub constructs an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger.Named("api-hub"), clients: make(map[string]*wsClient)}
}

// Run is a no-op placeholder loop kept for symmetry with the rest of the
// server lifecycle; Hub itself is passive and needs no background loop
// beyond each client's own read/write pumps.
func (h *Hub) Run() {}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Broadcast marshals and fans an event out to every connected client,
// dropping it for any client whose send buffer is full rather than
// blocking the caller.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	evt := Event{ID: uuid.NewString(), Type: eventType, Payload: payload, Timestamp: time.Now().UnixMilli()}
	bytes, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("broadcast marshal failed", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- bytes:
		default:
			h.logger.Warn("dropping event for slow client", zap.String("client", c.id))
		}
	}
}

// CloseAll closes every connected client, used on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		_ = c.conn.Close()
	}
	h.clients = make(map[string]*wsClient)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, 256)}
	s.hub.add(client)
	s.logger.Info("operator client connected", zap.String("id", client.id))

	go s.writePump(client)
	go s.readPump(client)
}

// readPump only drains pings/close frames - the surface is read-only, so
// any inbound data frame is ignored rather than dispatched to a handler.
func (s *Server) readPump(client *wsClient) {
	defer func() {
		s.hub.remove(client.id)
		_ = client.conn.Close()
		s.logger.Info("operator client disconnected", zap.String("id", client.id))
	}()
	client.conn.SetReadLimit(64 * 1024)
	_ = client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) writePump(client *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
