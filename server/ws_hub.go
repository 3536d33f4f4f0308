package main

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/termsync/termsync/engine"
	"github.com/termsync/termsync/observability"
)

const maxFeedConnections = 50

// feedEvent is the JSON shape broadcast to activity feed clients.
type feedEvent struct {
	Status  string `json:"status"`
	Command string `json:"command"`
	Tool    string `json:"tool,omitempty"`
	GwID    *int   `json:"gw_id,omitempty"`
	UUID    string `json:"uuid,omitempty"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// ActivityHub fans delivery outcomes out to websocket clients, giving an
// operator a live view of what is being logged. Single broadcaster
// goroutine; handlers only enqueue.
type ActivityHub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	events     chan feedEvent
	mu         sync.Mutex
	upgrader   websocket.Upgrader
}

func NewActivityHub() *ActivityHub {
	return &ActivityHub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		events:     make(chan feedEvent, 64),
		upgrader:   websocket.Upgrader{},
	}
}

// Publish enqueues an outcome for broadcast. Never blocks: if the feed
// cannot keep up, events are dropped, not deliveries.
func (h *ActivityHub) Publish(out engine.Outcome) {
	if out.Entry == nil {
		return
	}
	ev := feedEvent{
		Status:  statusLabel(out.Status),
		Command: out.Entry.Command,
		Tool:    out.Entry.Tool,
		GwID:    out.Entry.GwID,
		UUID:    out.Entry.UUID,
		Message: out.Message,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	select {
	case h.events <- ev:
	default:
	}
}

func statusLabel(s engine.Status) string {
	switch s {
	case engine.StatusCreated:
		return "created"
	case engine.StatusUpdated:
		return "updated"
	case engine.StatusSavedLocally:
		return "saved_locally"
	case engine.StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Run drives the hub until ctx is cancelled.
func (h *ActivityHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxFeedConnections {
				h.mu.Unlock()
				conn.Close()
				log.Printf("[feed] connection rejected: max connections (%d) reached", maxFeedConnections)
				continue
			}
			h.clients[conn] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			observability.FeedClients.Set(float64(total))
			log.Printf("[feed] client connected, total: %d", total)

		case conn := <-h.unregister:
			h.drop(conn)

		case ev := <-h.events:
			h.broadcast(ev)
		}
	}
}

func (h *ActivityHub) broadcast(ev feedEvent) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("[feed] write failed, dropping client: %v", err)
			h.drop(conn)
		}
	}
}

func (h *ActivityHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	total := len(h.clients)
	h.mu.Unlock()
	observability.FeedClients.Set(float64(total))
}

func (h *ActivityHub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
	observability.FeedClients.Set(0)
}

// handleFeed upgrades the connection and hands it to the hub. Reads are
// drained only to notice disconnects; the feed is one-way.
func (h *ActivityHub) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[feed] upgrade failed: %v", err)
		return
	}
	h.register <- conn

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unregister <- conn
				return
			}
		}
	}()
}
