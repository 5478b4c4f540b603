// Package realtime streams ledger changes to websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"jizhang/internal/ledger"
	"jizhang/internal/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Message types sent to clients.
const (
	TypeSnapshot = "snapshot"
	TypeChange   = "change"
)

// Message is the JSON frame written to clients. A new client first receives a
// snapshot of the ledger, then one change frame per mutation committed after
// it. A change already contained in the snapshot may still arrive as a frame;
// clients apply changes idempotently or skip events with Seq at or below the
// last one they applied.
type Message struct {
	Type     string              `json:"type"`
	Snapshot *ledger.Snapshot    `json:"snapshot,omitempty"`
	Event    *ledger.ChangeEvent `json:"event,omitempty"`
}

// SnapshotSource provides the state sent to newly connected clients. *ledger.Store implements it.
type SnapshotSource interface {
	Snapshot() ledger.Snapshot
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans change events out to connected websocket clients. It implements ledger.Observer.
type Hub struct {
	source     SnapshotSource
	logger     *log.Logger
	upgrader   websocket.Upgrader
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	count      atomic.Int32
}

// NewHub creates a hub. A nil logger logs through the default slog logger.
func NewHub(source SnapshotSource, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &Hub{
		source: source,
		logger: logger.WithComponent(log.ComponentRealtime),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			// The snapshot is taken here so no broadcast can slip in between it
			// and the registration.
			h.sendSnapshot(ctx, c)
			h.clients[c] = struct{}{}
			h.count.Store(int32(len(h.clients)))
			h.logger.DebugContext(ctx, "Websocket client connected", "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.DebugContext(ctx, "Websocket client disconnected", "clients", len(h.clients))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.WarnContext(ctx, "Websocket client too slow, disconnecting")
					h.drop(c)
				}
			}
		}
	}
}

// sendSnapshot queues the current ledger state as c's first frame. c.send is
// still empty at this point, so the send never blocks.
func (h *Hub) sendSnapshot(ctx context.Context, c *client) {
	if h.source == nil {
		return
	}
	snap := h.source.Snapshot()
	data, err := json.Marshal(Message{Type: TypeSnapshot, Snapshot: &snap})
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to marshal snapshot", log.FieldError, err)
		return
	}
	c.send <- data
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int32(len(h.clients)))
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Notify queues ev for every connected client. It never blocks the caller.
func (h *Hub) Notify(ctx context.Context, ev ledger.ChangeEvent) {
	data, err := json.Marshal(Message{Type: TypeChange, Event: &ev})
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to marshal change event", log.FieldError, err, "kind", ev.Kind)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.logger.WarnContext(ctx, "Websocket broadcast queue full, dropping event", "kind", ev.Kind, "seq", ev.Seq)
	}
}

// ServeHTTP upgrades the request and streams messages until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Failed to upgrade to websocket", log.FieldError, err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump(h)
}

// readPump discards client frames and unregisters the client once the connection fails.
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
