package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WatchHub fans phase transition events out to WebSocket subscribers.
// Subscriptions are keyed by session id; a session with no watchers costs
// nothing.
type WatchHub struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	watches map[string]map[*websocket.Conn]bool
}

// NewWatchHub creates an empty hub.
func NewWatchHub(logger *logrus.Logger) *WatchHub {
	return &WatchHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		watches: make(map[string]map[*websocket.Conn]bool),
	}
}

// Serve upgrades the request and registers the connection as a watcher of
// the session. The read loop exists only to detect the client going away.
func (h *WatchHub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	if h.watches[sessionID] == nil {
		h.watches[sessionID] = make(map[*websocket.Conn]bool)
	}
	h.watches[sessionID][conn] = true
	h.mu.Unlock()

	h.logger.WithField("session_id", sessionID).Debug("Watcher connected")

	go func() {
		defer h.drop(sessionID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends an event to every watcher of the session. Connections that
// fail to accept the write are dropped.
func (h *WatchHub) Broadcast(sessionID string, event interface{}) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.watches[sessionID]))
	for conn := range h.watches[sessionID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.WithError(err).WithField("session_id", sessionID).Debug("Dropping failed watcher")
			h.drop(sessionID, conn)
		}
	}
}

// CloseAll closes every watcher connection, used during shutdown.
func (h *WatchHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, conns := range h.watches {
		for conn := range conns {
			conn.Close()
		}
		delete(h.watches, sessionID)
	}
}

// drop removes and closes one watcher connection.
func (h *WatchHub) drop(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	if conns, ok := h.watches[sessionID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.watches, sessionID)
		}
	}
	h.mu.Unlock()
	conn.Close()
}
