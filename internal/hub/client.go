package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 10 * time.Second
	sendBuffer        = 16
)

// Connection is an interface that abstracts the websocket connection.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// Client is one websocket watching a session. Only clients holding the
// session's token may send moves.
type Client struct {
	ID         string
	SessionID  string
	CanControl bool

	conn   Connection
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient wraps a websocket connection.
func NewClient(sessionID string, conn Connection, canControl bool) *Client {
	return &Client{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		CanControl: canControl,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
	}
}

// Send queues a message. It returns false when the client is closed or too
// far behind to accept more.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close stops the write pump, which then closes the connection.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump is the only goroutine writing to the connection.
func (c *Client) writePump() {
	pingTicker := time.NewTicker(heartbeatInterval)
	defer func() {
		pingTicker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
