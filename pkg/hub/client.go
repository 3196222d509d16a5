package hub

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Outbound queue depth before a slow consumer is evicted.
	sendBuffer = 256
)

// Dispatcher handles one inbound frame from a connection. Frames from a
// single connection are dispatched in arrival order by its read pump.
type Dispatcher interface {
	Dispatch(c *Client, data []byte)
}

// Client is a middleman between one websocket connection and the hub.
// Identity is (UserID, ConnID); multiple connections per user are legal.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	dispatcher Dispatcher

	// sendMu guards send against a close racing a concurrent broadcast.
	sendMu sync.Mutex
	closed bool

	UserID string
	ConnID string

	// rooms this connection joined; guarded by hub.mu.
	rooms map[string]bool
}

func NewClient(h *Hub, conn *websocket.Conn, userID, connID string, d Dispatcher) *Client {
	return &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		dispatcher: d,
		UserID:     userID,
		ConnID:     connID,
		rooms:      make(map[string]bool),
	}
}

// Outbound exposes the pending outbound frames. The write pump drains it;
// tests read it directly.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// enqueue queues a frame without blocking. A consumer that cannot keep
// up gets its queue closed, which tears the connection down through the
// write pump.
func (c *Client) enqueue(payload []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.closed = true
		close(c.send)
	}
}

func (c *Client) evict() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump pumps frames from the websocket connection to the dispatcher.
// It returns when the connection drops; the caller runs teardown after.
func (c *Client) ReadPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("read error for user %s conn %s: %v", c.UserID, c.ConnID, err)
			}
			return
		}
		c.dispatcher.Dispatch(c, data)
	}
}

// WritePump pumps frames from the send queue to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Evicted or unregistered.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
