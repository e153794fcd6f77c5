// Package realtime maintains the set of live WebSocket connections and fans
// events out to them. A single dispatch goroutine owns the client set, so
// every client observes broadcasts in the same total order.
package realtime

import (
	"context"
	"encoding/json"

	"github.com/wayfarerhq/wayfarer/internal/logging"
)

// InboundMessage is what clients send over the socket
type InboundMessage struct {
	Type    string `json:"type"` // "chat" or "reset"
	Message string `json:"message,omitempty"`
}

// MessageHandler processes one inbound client message
type MessageHandler func(c *Client, msg *InboundMessage)

// Hub tracks connected clients and broadcasts events to them
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	chatHandler  MessageHandler
	resetHandler MessageHandler
}

// NewHub creates a hub. Call Run to start dispatching.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// SetChatHandler sets the handler for inbound chat messages
func (h *Hub) SetChatHandler(handler MessageHandler) {
	h.chatHandler = handler
}

// SetResetHandler sets the handler for inbound reset messages
func (h *Hub) SetResetHandler(handler MessageHandler) {
	h.resetHandler = handler
}

// Run drains the hub channels until ctx is cancelled. It is the only
// goroutine that touches the client set.
func (h *Hub) Run(ctx context.Context) {
	// Once Run returns nothing drains the channels; done unblocks any
	// straggler Register, Unregister, or Broadcast from connection
	// goroutines still winding down.
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			logging.Debugf("realtime: client %s connected (%d total)", client.ID, len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}

		case data := <-h.broadcast:
			for client := range h.clients {
				if err := client.sendRaw(data); err != nil {
					// Slow or dead client; drop it, never the broadcast.
					logging.Debugf("realtime: dropping client %s: %v", client.ID, err)
					delete(h.clients, client)
					client.Close()
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				client.Close()
			}
			return
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister removes a client. Safe to call for clients already gone, and
// after the hub has shut down.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast delivers an event to every connected client, best effort. There
// is no error to report: clients that cannot keep up are dropped.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logging.Errorf("realtime: marshal event: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}
