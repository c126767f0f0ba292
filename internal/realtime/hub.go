package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/sysmetic/backend/internal/contracts"
	"github.com/wonny/sysmetic/backend/pkg/logger"
)

const (
	// Ping/Pong settings
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	// sendBuffer is how many events a slow subscriber may lag behind
	sendBuffer = 64
)

// Hub fans committed ledger events out to websocket subscribers
// ⭐ SSOT: 실시간 이벤트 브로드캐스트는 여기서만
type Hub struct {
	logger   *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
}

// subscriber is one websocket connection. An empty filter receives every event.
type subscriber struct {
	conn       *websocket.Conn
	send       chan []byte
	strategies map[int64]struct{}
}

// NewHub creates a new event hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

var _ contracts.EventSink = (*Hub)(nil)

// Publish implements contracts.EventSink. Subscribers whose buffer is full
// are disconnected instead of blocking the publisher.
func (h *Hub) Publish(_ context.Context, ev contracts.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to marshal event")
		return
	}

	h.mu.RLock()
	var slow []*subscriber
	for s := range h.clients {
		if !s.wants(ev) {
			continue
		}
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.WithField("remote", s.conn.RemoteAddr().String()).Warn("Dropping slow websocket subscriber")
		h.unregister(s)
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams events until the peer goes away.
// ?strategy=1,2 limits strategy-scoped events; scores.refreshed always passes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	s := &subscriber{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		strategies: parseStrategies(r.URL.Query().Get("strategy")),
	}

	h.mu.Lock()
	h.clients[s] = struct{}{}
	h.mu.Unlock()

	h.logger.WithFields(map[string]interface{}{
		"remote":  conn.RemoteAddr().String(),
		"clients": h.ClientCount(),
	}).Debug("Websocket subscriber connected")

	go h.writeLoop(s)
	h.readLoop(s)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*subscriber, 0, len(h.clients))
	for s := range h.clients {
		all = append(all, s)
	}
	h.mu.RUnlock()

	for _, s := range all {
		h.unregister(s)
	}
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.clients[s]; ok {
		delete(h.clients, s)
		close(s.send)
	}
	h.mu.Unlock()
}

// readLoop only consumes control frames; it returns when the peer closes
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *subscriber) wants(ev contracts.Event) bool {
	if len(s.strategies) == 0 || ev.StrategyID == 0 {
		return true
	}
	_, ok := s.strategies[ev.StrategyID]
	return ok
}

func parseStrategies(raw string) map[int64]struct{} {
	ids := make(map[int64]struct{})
	for _, part := range strings.Split(raw, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil && id > 0 {
			ids[id] = struct{}{}
		}
	}
	return ids
}
