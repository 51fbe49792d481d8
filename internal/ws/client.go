package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 16
	sendBuffer     = 32
)

// Client is one live connection. The read loop in Hub.Serve is the only
// goroutine that mutates userID/roomID/peerID; mu guards them because hub
// broadcasts read them from room goroutines. send is
// a buffered channel drained by the single writePump goroutine, matching
// the "buffered per-client outbound channel, single writer goroutine per
// connection" requirement.
type Client struct {
	handle string
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	mu     sync.RWMutex
	userID string
	roomID string
	peerID int
}

func newClient(handle string, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		handle: handle,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger,
	}
}

func (c *Client) Handle() string { return c.handle }

func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) SetUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

func (c *Client) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Client) setRoomID(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
}

func (c *Client) PeerID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerID
}

func (c *Client) SetPeerID(peerID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerID = peerID
}

// enqueue never blocks the caller on a slow client: a full send buffer
// means the connection is unhealthy and gets dropped rather than stalling
// the room mailbox goroutine that called ToRoom/ToRoomExcept/ToHandle.
func (c *Client) enqueue(raw []byte) {
	select {
	case c.send <- raw:
	default:
		c.logger.Warn("ws: dropping client with full send buffer", zap.String("handle", c.handle))
		go c.conn.Close()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
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
