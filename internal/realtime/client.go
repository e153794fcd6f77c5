package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wayfarerhq/wayfarer/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 32768 // 32KB
)

var (
	ErrClientSendBufferFull = errors.New("client send buffer full")
	ErrClientClosed         = errors.New("client connection closed")
)

// Client represents one websocket connection. writePump is the only
// goroutine that writes the socket; everything else goes through the
// buffered send channel.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	ID string

	closed   bool
	closedMu sync.RWMutex
}

// NewClient creates a client for an upgraded connection
func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		conn: conn,
		hub:  hub,
		send: make(chan []byte, 256),
		ID:   "client-" + uuid.New().String()[:8],
	}
}

// readPump pumps messages from the websocket connection to the hub handlers.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Errorf("websocket read error: %v", err)
			}
			break
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Errorf("websocket: bad message from %s: %v", c.ID, err)
			continue
		}
		c.handleMessage(&msg)
	}
}

// writePump pumps messages from the send channel to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// handleMessage dispatches one inbound message on the readPump goroutine, so
// a client's own messages are processed strictly in order.
func (c *Client) handleMessage(msg *InboundMessage) {
	switch msg.Type {
	case "chat":
		if c.hub.chatHandler != nil {
			c.hub.chatHandler(c, msg)
		} else {
			logging.Error("realtime: chat handler not registered")
		}
	case "reset":
		if c.hub.resetHandler != nil {
			c.hub.resetHandler(c, msg)
		} else {
			logging.Error("realtime: reset handler not registered")
		}
	default:
		logging.Infof("realtime: unknown message type %q from %s", msg.Type, c.ID)
	}
}

// Send queues an event for this client only
func (c *Client) Send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.sendRaw(data)
}

// sendRaw queues bytes without blocking. A full buffer is an error so the
// hub can drop the client rather than stall a broadcast.
func (c *Client) sendRaw(data []byte) (err error) {
	// recover handles the race where the channel closes between the flag
	// check and the send
	defer func() {
		if r := recover(); r != nil {
			err = ErrClientClosed
		}
	}()

	c.closedMu.RLock()
	if c.closed {
		c.closedMu.RUnlock()
		return ErrClientClosed
	}
	c.closedMu.RUnlock()

	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientSendBufferFull
	}
}

// IsClosed returns whether the client connection is closed
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// Close closes the client connection. Idempotent.
func (c *Client) Close() {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return
	}
	c.closed = true
	c.closedMu.Unlock()

	close(c.send)
	if c.conn != nil {
		c.conn.Close()
	}
}

// ServeWS registers an upgraded connection and starts its pumps
func ServeWS(hub *Hub, conn *websocket.Conn) {
	client := NewClient(conn, hub)
	hub.Register(client)

	go client.writePump()
	go client.readPump()
}
