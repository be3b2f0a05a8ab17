// Package gateway is the real-time push layer: it upgrades authenticated
// websocket connections, bridges client frames onto the bus and delivers
// fanout events back to the live connections.
package gateway

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/contract"

	"github.com/gorilla/websocket"
)

// outbound is the wire frame pushed to a client.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type connection struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan outbound
}

// Hub owns the physical connections and implements the fanout emitter on
// top of the registry's bookkeeping: per-user delivery iterates the
// registry's connection set, global broadcast iterates every attached
// connection.
//
// Delivery never blocks a handler: each connection has a buffered send
// channel and a full buffer loses the event.
type Hub struct {
	log        *slog.Logger
	registry   contract.IRegistry
	bufferSize int

	mu    sync.RWMutex
	conns map[string]*connection
}

func NewHub(log *slog.Logger, registry contract.IRegistry, bufferSize int) *Hub {
	return &Hub{
		log:        log,
		registry:   registry,
		bufferSize: bufferSize,
		conns:      make(map[string]*connection),
	}
}

func (h *Hub) EmitToUser(ctx context.Context, userID, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, connectionID := range h.registry.Connections(userID) {
		if conn, ok := h.conns[connectionID]; ok {
			h.push(conn, outbound{Event: event, Data: payload})
		}
	}
}

func (h *Hub) Broadcast(ctx context.Context, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.conns {
		h.push(conn, outbound{Event: event, Data: payload})
	}
}

// push is non-blocking; a slow consumer loses the event rather than
// stalling the emitting handler.
func (h *Hub) push(conn *connection, out outbound) {
	select {
	case conn.send <- out:
	default:
		h.log.Warn("Connection buffer full, event dropped",
			"connectionId", conn.id, "userId", conn.userID, "event", out.Event)
	}
}

func (h *Hub) attach(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.id] = conn
}

// detach removes the connection and closes its send channel. Emitters send
// under the read lock and detach holds the write lock, so no send can race
// the close.
func (h *Hub) detach(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[connectionID]; ok {
		delete(h.conns, connectionID)
		close(conn.send)
	}
}

func (h *Hub) connectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
