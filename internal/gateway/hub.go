package gateway

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/shopclerk/shopclerk/internal/domain"
	"github.com/shopclerk/shopclerk/internal/logging"
)

// progressHub fans bulk progress events out to WebSocket subscribers.
// Writes are serialized per connection; a failed write drops the client.
type progressHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
	log   *logging.Logger
}

func newProgressHub(log *logging.Logger) *progressHub {
	return &progressHub{
		conns: make(map[*websocket.Conn]bool),
		log:   log,
	}
}

func (h *progressHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = true
}

func (h *progressHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

func (h *progressHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *progressHub) broadcast(p domain.BulkProgress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(p); err != nil {
			h.log.Debug().Err(err).Msg("dropping progress subscriber")
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *progressHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		delete(h.conns, conn)
	}
}
