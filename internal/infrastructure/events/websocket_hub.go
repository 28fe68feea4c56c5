package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketHub fans control-plane events out to connected dashboard clients.
// Clients are write-only subscribers; inbound frames are drained and dropped.
type WebSocketHub struct {
	connections map[string]*clientConn
	mu          sync.RWMutex

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

type clientConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewWebSocketHub(logger *zap.SugaredLogger) *WebSocketHub {
	return &WebSocketHub{
		connections:  make(map[string]*clientConn),
		pingInterval: 30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	h.mu.Lock()
	if existing, isReconnect := h.connections[clientID]; isReconnect && existing != nil {
		existing.conn.Close()
		h.logger.Infow("closing old connection for reconnecting client", "client_id", clientID)
	}
	client := &clientConn{conn: conn}
	h.connections[clientID] = client
	h.mu.Unlock()

	h.logger.Infow("client subscribed to events", "client_id", clientID)

	defer func() {
		h.mu.Lock()
		if h.connections[clientID] == client {
			delete(h.connections, clientID)
		}
		h.mu.Unlock()
		h.logger.Infow("client unsubscribed", "client_id", clientID)
	}()

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.pingLoop(ctx, client)

	// Drain inbound frames; exit on error to tear the connection down.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends an event to every connected client. Clients that fail
// the write are dropped.
func (h *WebSocketHub) Broadcast(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Errorw("failed to marshal event", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	clients := make(map[string]*clientConn, len(h.connections))
	for id, c := range h.connections {
		clients[id] = c
	}
	h.mu.RUnlock()

	for id, client := range clients {
		if err := h.writeMessage(client, websocket.TextMessage, data); err != nil {
			h.logger.Warnw("dropping client after failed write",
				"client_id", id,
				"error", err,
			)
			client.conn.Close()
			h.mu.Lock()
			if h.connections[id] == client {
				delete(h.connections, id)
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *WebSocketHub) writeMessage(client *clientConn, messageType int, data []byte) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return client.conn.WriteMessage(messageType, data)
}

func (h *WebSocketHub) pingLoop(ctx context.Context, client *clientConn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.writeMessage(client, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
