package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"subforge/internal/events"
	"subforge/internal/logging"
)

const (
	wsSendBuffer   = 256
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadLimit    = 4096
)

// Broadcaster is an events.Sink that forwards every event to connected
// WebSocket clients as JSON text frames. Clients that fall behind by more
// than the send buffer are disconnected.
type Broadcaster struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logging.NewComponentLogger(logger, "websocket"),
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	if !b.add(client) {
		_ = conn.Close()
		return
	}
	b.logger.Debug("websocket client connected", logging.Int("clients", b.Clients()))

	go b.writeLoop(client)

	conn.SetReadLimit(wsReadLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	b.remove(client)
	b.logger.Debug("websocket client disconnected", logging.Int("clients", b.Clients()))
}

// Publish encodes evt once and queues it for every client.
func (b *Broadcaster) Publish(evt events.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		b.logger.Warn("websocket encode failed", logging.Error(err))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		select {
		case client.send <- payload:
		default:
			logging.WarnWithContext(b.logger, "websocket client too slow; disconnecting", "websocket_dropped",
				logging.String(logging.FieldImpact, "client stops receiving live events"),
				logging.String(logging.FieldErrorHint, "reconnect and backfill from /api/events"),
			)
			b.dropLocked(client)
		}
	}
}

// Clients reports the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every client and rejects new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for client := range b.clients {
		b.dropLocked(client)
	}
}

func (b *Broadcaster) add(client *wsClient) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.clients[client] = struct{}{}
	return true
}

func (b *Broadcaster) remove(client *wsClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(client)
}

// dropLocked closes the send channel, which ends the write loop and the
// connection. It is a no-op for clients already removed.
func (b *Broadcaster) dropLocked(client *wsClient) {
	if _, ok := b.clients[client]; !ok {
		return
	}
	delete(b.clients, client)
	close(client.send)
}

func (b *Broadcaster) writeLoop(client *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
