// Package websocket feeds live telemetry to attached dashboards: sync
// progress, discovered peers, pairing activity and conflicts. The feed is
// broadcast-only; clients never steer the sync core through it.
package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Event is one telemetry message pushed to every attached client
type Event struct {
	Source  string      `json:"source"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
	Time    time.Time   `json:"time"`
}

// Hub maintains the set of attached clients and fans events out to them
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

// Run starts the hub's main loop until the context is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("WS: client attached (%d total)", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop the event for it
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish fans a telemetry event out to every attached client. Safe to
// call from any goroutine; events are dropped when no hub loop runs.
func (h *Hub) Publish(source, event string, payload interface{}) {
	msg, err := json.Marshal(Event{
		Source:  source,
		Event:   event,
		Payload: payload,
		Time:    time.Now(),
	})
	if err != nil {
		log.Printf("WS: could not encode %s/%s event: %v", source, event, err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
	}
}

// ClientCount reports how many clients are attached
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
